package models

import (
	"time"
)

// 知识库来源类型
const (
	SourceKindFile = "file"
	SourceKindURL  = "url"
	SourceKindText = "text"
)

// 知识库状态
const (
	KBStatusActive   = "active"
	KBStatusInactive = "inactive"
)

// KnowledgeBase 知识库表
type KnowledgeBase struct {
	ID          uint       `gorm:"primaryKey;column:id" json:"id"`
	UserID      uint       `gorm:"column:user_id;not null;index" json:"user_id"`
	Title       string     `gorm:"column:title;size:200;not null" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	SourceKind  string     `gorm:"column:source_kind;size:20;not null;default:text" json:"source_kind"`
	SourceRef   string     `gorm:"column:source_ref;size:500" json:"source_ref"`
	Status      string     `gorm:"column:status;size:20;not null;default:active" json:"status"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (KnowledgeBase) TableName() string {
	return "knowledge_bases"
}

// IsActive 判断知识库是否处于可检索状态
func (kb *KnowledgeBase) IsActive() bool {
	return kb.Status == KBStatusActive
}

// VectorDocument 向量文档表：一条记录对应一个切分后的文本块及其向量
type VectorDocument struct {
	ID              uint      `gorm:"primaryKey;column:id" json:"id"`
	KnowledgeBaseID uint      `gorm:"column:knowledge_base_id;not null;index" json:"knowledge_base_id"`
	Content         string    `gorm:"column:content;type:text;not null" json:"content"`
	Embedding       string    `gorm:"column:embedding;type:json" json:"-"`
	Metadata        string    `gorm:"column:metadata;type:jsonb" json:"metadata"`
	TokenCount      int       `gorm:"column:token_count;default:0" json:"token_count"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (VectorDocument) TableName() string {
	return "vector_documents"
}
