package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store 聚合三个仓储，共享同一个连接池
type Store struct {
	*UserRepository
	*FriendshipRepository
	*MessageRepository

	db *gorm.DB
}

// NewStore 创建Store实例
func NewStore(db *gorm.DB) *Store {
	return &Store{
		UserRepository:       NewUserRepository(db),
		FriendshipRepository: NewFriendshipRepository(db),
		MessageRepository:    NewMessageRepository(db),
		db:                   db,
	}
}

// Ping 存储健康检查
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
