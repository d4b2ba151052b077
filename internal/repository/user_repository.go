package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lanchat/internal/model"
	"lanchat/pkg/password"

	"gorm.io/gorm"
)

// UserRepository 用户数据仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建UserRepository实例
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindUserByCredentials 用户名存在且密码匹配时返回用户，否则返回 ErrNotFound
func (r *UserRepository) FindUserByCredentials(ctx context.Context, username, plain string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	if !password.Verify(plain, u.PasswordHash) {
		return nil, ErrNotFound
	}
	return &u, nil
}

// CountUsersByUsername 统计用户名数量
func (r *UserRepository) CountUsersByUsername(ctx context.Context, username string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count, err
}

// InsertUser 创建离线状态的新用户，用户名冲突返回 ErrDuplicateUsername
func (r *UserRepository) InsertUser(ctx context.Context, username, plain, nickname, avatarPath string) (*model.User, error) {
	hash, err := password.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Username:     username,
		PasswordHash: hash,
		Nickname:     nickname,
		AvatarPath:   avatarPath,
		Status:       model.StatusOffline,
	}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, err
	}
	return u, nil
}

// GetByID 根据ID获取用户
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UserExists 用户是否存在
func (r *UserRepository) UserExists(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// UpdateUserStatus 更新在线状态，用户不存在不算错误
func (r *UserRepository) UpdateUserStatus(ctx context.Context, id uint, status int) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// UpdateLastLogin 更新最近登录时间
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("last_login", at).Error
}

// ResetStatuses 进程启动时把所有用户置为离线
func (r *UserRepository) ResetStatuses(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("status <> ?", model.StatusOffline).
		Update("status", model.StatusOffline)
	return res.RowsAffected, res.Error
}

// ListOnline 在线用户列表
func (r *UserRepository) ListOnline(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusOnline).
		Order("nickname ASC, id ASC").
		Find(&users).Error
	return users, err
}

// SearchUsersByNickname 昵称不区分大小写子串匹配，排除自己，可选排除已有好友
func (r *UserRepository) SearchUsersByNickname(ctx context.Context, userID uint, keyword string, excludeFriends bool) ([]model.User, error) {
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"

	q := r.db.WithContext(ctx).
		Where("id <> ?", userID).
		Where("LOWER(nickname) LIKE ? ESCAPE '!'", pattern)

	if excludeFriends {
		q = q.Where("id NOT IN (SELECT user_id2 FROM friendships WHERE user_id1 = ? UNION SELECT user_id1 FROM friendships WHERE user_id2 = ?)",
			userID, userID)
	}

	var users []model.User
	err := q.Order("nickname ASC, id ASC").Find(&users).Error
	return users, err
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
