package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aichat/backend-go/internal/config"
	apperrors "github.com/aichat/backend-go/internal/errors"
	"github.com/aichat/backend-go/internal/kafka"
	"github.com/aichat/backend-go/internal/logger"
	"github.com/aichat/backend-go/internal/models"
)

// StreamEventType 流式事件类型
type StreamEventType string

const (
	// EventDelta 增量文本
	EventDelta StreamEventType = "delta"
	// EventFinal 完整回复，供客户端一次性重渲染
	EventFinal StreamEventType = "final"
	// EventError 结构化错误
	EventError StreamEventType = "error"
	// EventDone 流结束哨兵
	EventDone StreamEventType = "done"
)

// StreamEvent 推送给调用方的流式事件
type StreamEvent struct {
	Type    StreamEventType
	Content string
	// 以下仅错误事件使用
	ErrType string
	Status  int
	Message string
	Body    string
}

// ErrorPayload 序列化错误事件负载
func (e StreamEvent) ErrorPayload() string {
	payload := map[string]interface{}{
		"type":    e.ErrType,
		"message": e.Message,
	}
	if e.Status != 0 {
		payload["status"] = e.Status
	}
	if e.Body != "" {
		payload["body"] = e.Body
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

// ChatStreamRequest 流式聊天请求
//
// FileName/FileContent为随消息附带的纯文本资料：提示词使用结构化模板
// 拼装，落库只保留展示用的问题本身。
type ChatStreamRequest struct {
	ConversationID   string   `json:"conversation_id" validate:"required"`
	Content          string   `json:"content"`
	Model            string   `json:"model"`
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	KnowledgeBaseIDs []uint   `json:"knowledge_base_ids"`
	RagTopK          int      `json:"rag_top_k"`
	FileName         string   `json:"file_name"`
	FileContent      string   `json:"file_content"`
}

// ConversationStore 会话持久化抽象
type ConversationStore interface {
	ValidateOwnership(ctx context.Context, conversationID string, userID uint) error
	SaveUserMessage(ctx context.Context, conversationID string, userID uint, content string) error
	SaveAssistantMessage(ctx context.Context, conversationID string, userID uint, content, model, metadata string) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	UpdateLastMessageTime(ctx context.Context, conversationID string) error
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStreamService 流式聊天编排
//
// 每次请求：校验会话归属 → 落库用户消息 → 检索知识库上下文 →
// 组装消息列表 → 路由上游提供商 → 推送增量 → [DONE]时恰好一次
// 落库助手回复。重试只发生在收到首字节之前。
type ChatStreamService struct {
	store      ConversationStore
	retriever  Retriever
	router     *ProviderRouter
	history    HistoryIndexer
	cfg        config.ChatConfig
	httpClient *http.Client
}

// NewChatStreamService 创建流式聊天服务，history可为nil
func NewChatStreamService(store ConversationStore, retriever Retriever, router *ProviderRouter, history HistoryIndexer, cfg config.ChatConfig) *ChatStreamService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if history == nil {
		history = &NoopHistoryIndexer{}
	}
	return &ChatStreamService{
		store:      store,
		retriever:  retriever,
		router:     router,
		history:    history,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// StreamChat 发起一次流式对话
//
// 返回的通道在流结束后关闭。同步阶段的错误（校验、归属、检索归属）
// 直接返回，不会产生事件。
func (s *ChatStreamService) StreamChat(ctx context.Context, userID uint, req ChatStreamRequest) (<-chan StreamEvent, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && strings.TrimSpace(req.FileContent) == "" {
		return nil, apperrors.NewValidationError("content cannot be empty")
	}

	if err := s.store.ValidateOwnership(ctx, req.ConversationID, userID); err != nil {
		return nil, err
	}

	// 落库的用户消息只保留展示内容
	displayContent := req.Content
	if req.FileName != "" && strings.TrimSpace(req.Content) == "" {
		displayContent = "上传了文件: " + req.FileName
	}
	if err := s.store.SaveUserMessage(ctx, req.ConversationID, userID, displayContent); err != nil {
		return nil, err
	}
	if err := s.store.UpdateLastMessageTime(ctx, req.ConversationID); err != nil {
		logger.Warn("failed to update conversation activity", zap.Error(err))
	}
	s.history.IndexMessage(ctx, ChatHistoryDoc{
		ConversationID: req.ConversationID,
		UserID:         userID,
		Role:           models.RoleUser,
		Content:        displayContent,
		CreatedAt:      time.Now(),
	})

	// 检索知识库上下文：归属错误直接失败，其余已在检索层降级
	var ragDocs []RetrievedDocument
	if len(req.KnowledgeBaseIDs) > 0 {
		docs, err := s.retriever.Retrieve(ctx, userID, req.KnowledgeBaseIDs, req.Content, req.RagTopK)
		if err != nil {
			return nil, err
		}
		ragDocs = docs
	}

	messages, err := s.buildMessages(ctx, req, ragDocs)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}
	temperature := s.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := s.cfg.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	maxTokens = ClampMaxTokens(maxTokens, s.cfg.MaxTokensLimit)

	body, err := json.Marshal(map[string]interface{}{
		"model":       model,
		"stream":      true,
		"temperature": temperature,
		"max_tokens":  maxTokens,
		"messages":    messages,
	})
	if err != nil {
		return nil, err
	}

	endpoint := s.router.Resolve(model)
	events := make(chan StreamEvent, 16)
	go s.run(ctx, events, endpoint, body, req.ConversationID, userID, model, ragDocs)
	return events, nil
}

// buildMessages 组装上游消息列表：可选系统上下文 + 最近历史 + 当前用户消息
func (s *ChatStreamService) buildMessages(ctx context.Context, req ChatStreamRequest, ragDocs []RetrievedDocument) ([]chatMessage, error) {
	historyLimit := s.cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	history, err := s.store.RecentMessages(ctx, req.ConversationID, historyLimit)
	if err != nil {
		return nil, err
	}

	var messages []chatMessage
	if len(ragDocs) > 0 {
		messages = append(messages, chatMessage{
			Role:    models.RoleSystem,
			Content: "以下是相关的知识库内容，请基于这些内容回答用户的问题：\n\n" + BuildContextFromDocuments(ragDocs),
		})
	}

	if req.FileContent == "" {
		// 历史已包含刚保存的用户消息
		for _, msg := range history {
			messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
		}
		return messages, nil
	}

	// 附带文件时：历史中去掉刚保存的展示消息，改用结构化模板
	if len(history) > 0 && history[len(history)-1].Role == models.RoleUser {
		history = history[:len(history)-1]
	}
	for _, msg := range history {
		messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	combined := fmt.Sprintf("【用户上传了文件: %s】\n\n【文件内容】：\n%s\n\n【用户问题】：\n%s",
		req.FileName, req.FileContent, req.Content)
	messages = append(messages, chatMessage{Role: models.RoleUser, Content: combined})
	return messages, nil
}

// run 消费上游事件流并转发，goroutine内执行
func (s *ChatStreamService) run(ctx context.Context, events chan<- StreamEvent, endpoint ProviderEndpoint, body []byte, conversationID string, userID uint, model string, ragDocs []RetrievedDocument) {
	defer close(events)

	resp, ok := s.connect(ctx, events, endpoint, body)
	if !ok {
		chatStreamTotal.WithLabelValues(endpoint.Name, "network_error").Inc()
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		logger.Error("upstream returned error status",
			zap.String("provider", endpoint.Name),
			zap.Int("status", resp.StatusCode))
		s.send(ctx, events, StreamEvent{
			Type:    EventError,
			ErrType: "http",
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
			Body:    strings.TrimSpace(string(respBody)),
		})
		chatStreamTotal.WithLabelValues(endpoint.Name, "http_error").Inc()
		return
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data := line
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(line[len("data: "):])
		}

		if data == "[DONE]" {
			s.finish(ctx, events, conversationID, userID, model, full.String(), ragDocs)
			chatStreamTotal.WithLabelValues(endpoint.Name, "completed").Inc()
			return
		}

		var frame struct {
			Choices []struct {
				Delta struct {
					Content *string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			logger.Error("failed to parse stream frame", zap.String("data", data), zap.Error(err))
			continue
		}
		if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == nil {
			continue
		}

		delta := *frame.Choices[0].Delta.Content
		full.WriteString(delta)
		if !s.send(ctx, events, StreamEvent{Type: EventDelta, Content: delta}) {
			chatStreamTotal.WithLabelValues(endpoint.Name, "canceled").Inc()
			return
		}
	}

	// 未收到[DONE]即中断：已转发的内容不作为完成轮次落库
	message := "stream closed unexpectedly"
	if err := scanner.Err(); err != nil {
		message = translateNetworkError(err.Error())
	}
	logger.Error("stream interrupted before completion",
		zap.String("conversation_id", conversationID),
		zap.Int("partial_length", full.Len()))
	s.send(ctx, events, StreamEvent{
		Type:    EventError,
		ErrType: "network",
		Message: message,
	})
	chatStreamTotal.WithLabelValues(endpoint.Name, "network_error").Inc()
}

// connect 建立上游连接，仅在收到响应前做有界指数退避重试
func (s *ChatStreamService) connect(ctx context.Context, events chan<- StreamEvent, endpoint ProviderEndpoint, body []byte) (*http.Response, bool) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryBase := time.Duration(s.cfg.RetryBaseSeconds) * time.Second

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			chatStreamRetries.Inc()
			backoff := retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.BaseURL+endpoint.Path, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")

		resp, err := s.httpClient.Do(req)
		if err == nil {
			return resp, true
		}
		lastErr = err
		logger.Warn("upstream connect failed",
			zap.String("provider", endpoint.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if ctx.Err() != nil {
			return nil, false
		}
	}

	message := "upstream connection failed"
	if lastErr != nil {
		message = translateNetworkError(lastErr.Error())
	}
	s.send(ctx, events, StreamEvent{
		Type:    EventError,
		ErrType: "network",
		Message: message,
	})
	return nil, false
}

// finish 完成一轮对话：恰好一次落库助手回复并发出final与[DONE]
func (s *ChatStreamService) finish(ctx context.Context, events chan<- StreamEvent, conversationID string, userID uint, model, content string, ragDocs []RetrievedDocument) {
	if content != "" {
		metadata := BuildRagMetadata(ragDocs)
		if err := s.store.SaveAssistantMessage(ctx, conversationID, userID, content, model, metadata); err != nil {
			// 落库失败不影响调用方视角的完成
			logger.Error("failed to persist assistant turn",
				zap.String("conversation_id", conversationID),
				zap.Error(err))
		} else {
			if err := s.store.UpdateLastMessageTime(ctx, conversationID); err != nil {
				logger.Warn("failed to update conversation activity", zap.Error(err))
			}
			if err := kafka.SendTurnMessage(conversationID, userID, model, models.RoleAssistant, content, len(ragDocs)); err != nil {
				logger.Warn("failed to publish turn message", zap.Error(err))
			}
			s.history.IndexMessage(ctx, ChatHistoryDoc{
				ConversationID: conversationID,
				UserID:         userID,
				Role:           models.RoleAssistant,
				Content:        content,
				Model:          model,
				CreatedAt:      time.Now(),
			})
		}

		logger.Info("stream completed",
			zap.String("conversation_id", conversationID),
			zap.Int("length", len(content)))
		if !s.send(ctx, events, StreamEvent{Type: EventFinal, Content: content}) {
			return
		}
	}
	s.send(ctx, events, StreamEvent{Type: EventDone})
}

// send 推送事件，调用方取消时返回false
func (s *ChatStreamService) send(ctx context.Context, events chan<- StreamEvent, event StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// translateNetworkError 把常见网络错误翻译为用户可读的提示
func translateNetworkError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timed out") || strings.Contains(lower, "timeout"):
		return "连接AI服务超时，请检查网络连接或稍后重试"
	case strings.Contains(lower, "connection refused"):
		return "无法连接到AI服务，请检查网络配置"
	default:
		return msg
	}
}
