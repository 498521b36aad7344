package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/aichat/backend-go/internal/errors"
	"github.com/aichat/backend-go/internal/logger"
	"github.com/aichat/backend-go/internal/models"
)

// RagDocView 消息元数据中的检索来源
type RagDocView struct {
	DocumentID         uint   `json:"documentId"`
	Content            string `json:"content"`
	KnowledgeBaseTitle string `json:"knowledgeBaseTitle"`
}

// MessageView 对外返回的消息，检索来源已解析为结构化字段
type MessageView struct {
	ID             uint         `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	Model          string       `json:"model,omitempty"`
	Status         string       `json:"status"`
	RagDocs        []RagDocView `json:"rag_docs,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// ConversationService 会话与消息服务
type ConversationService struct {
	db *gorm.DB
}

// NewConversationService 创建会话服务
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// CreateConversation 创建会话
func (s *ConversationService) CreateConversation(ctx context.Context, userID uint, title string) (*models.Conversation, error) {
	if title == "" {
		title = "新对话"
	}
	conv := &models.Conversation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Title:         title,
		LastMessageAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "创建会话失败").WithCause(err)
	}
	logger.Info("conversation created", zap.String("id", conv.ID), zap.Uint("user_id", userID))
	return conv, nil
}

// ListConversations 按最近活跃排序返回用户的会话
func (s *ConversationService) ListConversations(ctx context.Context, userID uint, page, limit int) ([]models.Conversation, int64, error) {
	var conversations []models.Conversation
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	err := query.Order("last_message_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&conversations).Error
	if err != nil {
		return nil, 0, err
	}
	return conversations, total, nil
}

// ValidateOwnership 校验会话归属
func (s *ConversationService) ValidateOwnership(ctx context.Context, conversationID string, userID uint) error {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewAccessDeniedError("会话")
		}
		return err
	}
	return nil
}

// SaveUserMessage 保存用户消息
func (s *ConversationService) SaveUserMessage(ctx context.Context, conversationID string, userID uint, content string) error {
	msg := &models.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleUser,
		Content:        content,
		Status:         models.MessageStatusCompleted,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodePersistenceFailed, "保存用户消息失败").WithCause(err)
	}
	return nil
}

// SaveAssistantMessage 保存助手消息，metadata为检索来源JSON，可为空
func (s *ConversationService) SaveAssistantMessage(ctx context.Context, conversationID string, userID uint, content, model, metadata string) error {
	msg := &models.Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleAssistant,
		Content:        content,
		Model:          model,
		Metadata:       metadata,
		Status:         models.MessageStatusCompleted,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodePersistenceFailed, "保存助手消息失败").WithCause(err)
	}
	return nil
}

// RecentMessages 返回会话最近limit条消息，按时间升序
func (s *ConversationService) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 10
	}
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// 倒序查询后翻转为时间升序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// UpdateLastMessageTime 刷新会话最近活跃时间
func (s *ConversationService) UpdateLastMessageTime(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_at", time.Now()).Error
}

// ListMessages 返回会话全部消息，解析检索来源元数据
func (s *ConversationService) ListMessages(ctx context.Context, conversationID string, userID uint) ([]MessageView, error) {
	if err := s.ValidateOwnership(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		view := MessageView{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			Model:          msg.Model,
			Status:         msg.Status,
			CreatedAt:      msg.CreatedAt,
		}
		if msg.Metadata != "" {
			var parsed struct {
				RagDocs []RagDocView `json:"ragDocs"`
			}
			if err := json.Unmarshal([]byte(msg.Metadata), &parsed); err == nil {
				view.RagDocs = parsed.RagDocs
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// DeleteConversation 删除会话及其全部消息
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string, userID uint) error {
	if err := s.ValidateOwnership(ctx, conversationID, userID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&models.Message{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("id = ?", conversationID).
		Delete(&models.Conversation{}).Error
}
