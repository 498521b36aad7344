package models

import (
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// 消息状态
const (
	MessageStatusCompleted = "completed"
	MessageStatusFailed    = "failed"
)

// Conversation 会话表
type Conversation struct {
	ID            string     `gorm:"primaryKey;column:id;size:64" json:"id"`
	UserID        uint       `gorm:"column:user_id;not null;index" json:"user_id"`
	Title         string     `gorm:"column:title;size:200" json:"title"`
	LastMessageAt time.Time  `gorm:"column:last_message_at;index" json:"last_message_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 会话消息表，Metadata保存检索来源等附加信息
type Message struct {
	ID             uint      `gorm:"primaryKey;column:id" json:"id"`
	ConversationID string    `gorm:"column:conversation_id;size:64;not null;index" json:"conversation_id"`
	UserID         uint      `gorm:"column:user_id;not null;index" json:"user_id"`
	Role           string    `gorm:"column:role;size:20;not null" json:"role"`
	Content        string    `gorm:"column:content;type:text;not null" json:"content"`
	Model          string    `gorm:"column:model;size:100" json:"model"`
	Metadata       string    `gorm:"column:metadata;type:jsonb" json:"metadata"`
	Status         string    `gorm:"column:status;size:20;not null;default:completed" json:"status"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index;autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
