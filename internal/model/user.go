package model

import (
	"strconv"
	"time"
)

// 用户在线状态
const (
	StatusOffline = 0
	StatusOnline  = 1
)

// DefaultAvatar 注册时未提供头像使用的占位图
const DefaultAvatar = "default_avatar.png"

// User 用户模型
// 用户名唯一约束由存储层保证，重复注册以唯一索引冲突为准
// 密码仅存储 bcrypt 哈希
// Status 为在线状态缓存，登录置 1，登出或断线置 0
type User struct {
	ID           uint       `gorm:"primaryKey"`
	Username     string     `gorm:"type:varchar(64);not null;uniqueIndex;comment:用户名"`
	PasswordHash string     `gorm:"type:varchar(255);not null;comment:密码哈希"`
	Nickname     string     `gorm:"type:varchar(64);not null;index;comment:昵称"`
	AvatarPath   string     `gorm:"type:varchar(255);comment:头像路径"`
	Status       int        `gorm:"type:int;not null;default:0;comment:状态(0离线,1在线)"`
	LastLogin    *time.Time `gorm:"comment:最近登录时间"`
	CreatedAt    time.Time  `gorm:"comment:创建时间"`
	UpdatedAt    time.Time  `gorm:"comment:更新时间"`
}

func (User) TableName() string { return "users" }

// Record 用户记录的线上字段：id, username, nickname, avatarPath, status
func (u *User) Record() []string {
	return []string{
		strconv.FormatUint(uint64(u.ID), 10),
		u.Username,
		u.Nickname,
		u.AvatarPath,
		strconv.Itoa(u.Status),
	}
}

// Online 是否在线
func (u *User) Online() bool { return u.Status == StatusOnline }
