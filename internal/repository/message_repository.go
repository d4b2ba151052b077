package repository

import (
	"context"
	"time"

	"lanchat/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 消息数据仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// InsertMessage 保存消息，未设置发送时间时使用当前时间
func (r *MessageRepository) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.SendTime.IsZero() {
		m.SendTime = time.Now()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages 两个用户之间的消息（双向），按发送时间、ID 升序
// limit > 0 时只返回最新的 limit 条，仍按升序排列
func (r *MessageRepository) ListMessages(ctx context.Context, a, b uint, limit int) ([]model.Message, error) {
	q := r.db.WithContext(ctx).Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		a, b, b, a,
	)

	var messages []model.Message
	if limit <= 0 {
		err := q.Order("send_time ASC, id ASC").Find(&messages).Error
		return messages, err
	}

	if err := q.Order("send_time DESC, id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// MarkMessagesRead 把 sender 发给 receiver 的未读消息标记为已读，返回影响行数
func (r *MessageRepository) MarkMessagesRead(ctx context.Context, receiverID, senderID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", receiverID, senderID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// CountUnread 获取与特定用户的未读消息数量
func (r *MessageRepository) CountUnread(ctx context.Context, receiverID, senderID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", receiverID, senderID, false).
		Count(&count).Error
	return count, err
}
