package model

import "time"

// Friendship 好友关系（无向）
// 以 UserID1 < UserID2 的规范顺序存储，联合唯一索引防止重复或镜像行
type Friendship struct {
	ID         uint      `gorm:"primaryKey"`
	UserID1    uint      `gorm:"column:user_id1;not null;uniqueIndex:idx_friend_pair,priority:1;comment:较小的用户ID"`
	UserID2    uint      `gorm:"column:user_id2;not null;uniqueIndex:idx_friend_pair,priority:2;index;comment:较大的用户ID"`
	RemarkName string    `gorm:"type:varchar(64);comment:备注名"`
	CreatedAt  time.Time `gorm:"comment:创建时间"`
}

func (Friendship) TableName() string { return "friendships" }

// CanonicalPair 返回规范顺序的用户对（小ID在前）
func CanonicalPair(a, b uint) (low, high uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// Friend 好友列表中的一项：好友资料加上备注名
type Friend struct {
	User
	RemarkName string
}

// DisplayUser 有备注名时以备注名替换昵称
func (f *Friend) DisplayUser() User {
	u := f.User
	if f.RemarkName != "" {
		u.Nickname = f.RemarkName
	}
	return u
}
