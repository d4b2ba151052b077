package repository

import (
	"context"

	"lanchat/internal/model"

	"gorm.io/gorm"
)

// FriendshipRepository 好友关系仓储，所有写入都使用规范顺序
type FriendshipRepository struct {
	db *gorm.DB
}

// NewFriendshipRepository 创建FriendshipRepository实例
func NewFriendshipRepository(db *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

type friendRow struct {
	ID         uint
	Username   string
	Nickname   string
	AvatarPath string
	Status     int
	RemarkName string
}

// ListFriends 好友列表，在线优先、昵称升序
func (r *FriendshipRepository) ListFriends(ctx context.Context, userID uint) ([]model.Friend, error) {
	var rows []friendRow
	err := r.db.WithContext(ctx).
		Table("friendships AS f").
		Select("u.id, u.username, u.nickname, u.avatar_path, u.status, f.remark_name").
		Joins("JOIN users u ON u.id = CASE WHEN f.user_id1 = ? THEN f.user_id2 ELSE f.user_id1 END", userID).
		Where("f.user_id1 = ? OR f.user_id2 = ?", userID, userID).
		Order("u.status DESC, u.nickname ASC, u.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	friends := make([]model.Friend, 0, len(rows))
	for _, row := range rows {
		friends = append(friends, model.Friend{
			User: model.User{
				ID:         row.ID,
				Username:   row.Username,
				Nickname:   row.Nickname,
				AvatarPath: row.AvatarPath,
				Status:     row.Status,
			},
			RemarkName: row.RemarkName,
		})
	}
	return friends, nil
}

// IsFriend 两个用户是否已是好友（与参数顺序无关）
func (r *FriendshipRepository) IsFriend(ctx context.Context, a, b uint) (bool, error) {
	low, high := model.CanonicalPair(a, b)
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id1 = ? AND user_id2 = ?", low, high).
		Count(&count).Error
	return count > 0, err
}

// InsertFriendship 按规范顺序插入好友对，已存在返回 ErrAlreadyFriends
func (r *FriendshipRepository) InsertFriendship(ctx context.Context, a, b uint, remarkName string) error {
	low, high := model.CanonicalPair(a, b)
	f := &model.Friendship{UserID1: low, UserID2: high, RemarkName: remarkName}
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		if isDuplicate(err) {
			return ErrAlreadyFriends
		}
		return err
	}
	return nil
}

// DeleteFriendship 删除好友对，不存在返回 ErrNotFound
func (r *FriendshipRepository) DeleteFriendship(ctx context.Context, a, b uint) error {
	low, high := model.CanonicalPair(a, b)
	res := r.db.WithContext(ctx).
		Where("user_id1 = ? AND user_id2 = ?", low, high).
		Delete(&model.Friendship{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
