package model

import (
	"strconv"
	"time"
)

// 消息内容类型
const (
	ContentText = 1
	ContentFile = 2
)

// SendTimeLayout 消息发送时间的线上格式
const SendTimeLayout = "2006-01-02 15:04:05"

// Message 消息模型
// 创建后不可变（已读标记除外），历史按 SendTime 升序、同一时刻按 ID 升序
type Message struct {
	ID          uint      `gorm:"primaryKey"`
	SenderID    uint      `gorm:"not null;index:idx_msg_pair,priority:1;comment:发送者ID"`
	ReceiverID  uint      `gorm:"not null;index:idx_msg_pair,priority:2;comment:接收者ID"`
	ContentType int       `gorm:"type:int;not null;default:1;comment:内容类型(1文本,2文件)"`
	Content     string    `gorm:"type:text;not null;comment:消息内容"`
	FileName    string    `gorm:"type:varchar(255);comment:文件名"`
	FileSize    int64     `gorm:"not null;default:0;comment:文件大小"`
	IsRead      bool      `gorm:"not null;default:false;comment:是否已读"`
	SendTime    time.Time `gorm:"not null;index;comment:发送时间"`
}

func (Message) TableName() string { return "messages" }

// ValidContentType 内容类型是否受支持
func ValidContentType(t int) bool {
	return t == ContentText || t == ContentFile
}

// Record 消息记录的线上字段：id, senderId, receiverId, contentType, content, fileName, fileSize, sendTime
func (m *Message) Record() []string {
	return []string{
		strconv.FormatUint(uint64(m.ID), 10),
		strconv.FormatUint(uint64(m.SenderID), 10),
		strconv.FormatUint(uint64(m.ReceiverID), 10),
		strconv.Itoa(m.ContentType),
		m.Content,
		m.FileName,
		strconv.FormatInt(m.FileSize, 10),
		m.SendTime.Format(SendTimeLayout),
	}
}
