package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/aichat/backend-go/internal/logger"
)

// HistoryIndexer 聊天记录全文索引抽象
type HistoryIndexer interface {
	IndexMessage(ctx context.Context, doc ChatHistoryDoc)
}

// ChatHistoryDoc 写入全文索引的消息文档
type ChatHistoryDoc struct {
	ConversationID string    `json:"conversation_id"`
	UserID         uint      `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	Model          string    `json:"model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NoopHistoryIndexer ES未启用时的占位实现
type NoopHistoryIndexer struct{}

func (n *NoopHistoryIndexer) IndexMessage(ctx context.Context, doc ChatHistoryDoc) {}

// ChatHistoryService 将聊天消息写入Elasticsearch供全文检索
//
// 纯旁路：索引失败只告警，绝不影响聊天主流程。
type ChatHistoryService struct {
	client     *elasticsearch.Client
	index      string
	indexReady bool
	mu         sync.Mutex
}

// NewChatHistoryService 创建聊天记录索引服务
func NewChatHistoryService(addresses []string, username, password, index string) (HistoryIndexer, error) {
	if len(addresses) == 0 {
		return &NoopHistoryIndexer{}, nil
	}

	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  username,
		Password:  password,
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	if index == "" {
		index = "chat_messages"
	}

	return &ChatHistoryService{
		client: client,
		index:  index,
	}, nil
}

func (s *ChatHistoryService) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexReady {
		return nil
	}

	existsReq := esapi.IndicesExistsRequest{Index: []string{s.index}}
	resp, err := existsReq.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == 200 {
		s.indexReady = true
		return nil
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"conversation_id": map[string]interface{}{"type": "keyword"},
				"user_id":         map[string]interface{}{"type": "keyword"},
				"role":            map[string]interface{}{"type": "keyword"},
				"model":           map[string]interface{}{"type": "keyword"},
				"content":         map[string]interface{}{"type": "text"},
				"created_at":      map[string]interface{}{"type": "date"},
			},
		},
	}
	body, _ := json.Marshal(mapping)
	createReq := esapi.IndicesCreateRequest{
		Index: s.index,
		Body:  bytes.NewReader(body),
	}
	createResp, err := createReq.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer createResp.Body.Close()

	if createResp.IsError() && createResp.StatusCode != 400 {
		return fmt.Errorf("create index failed: %s", createResp.String())
	}
	s.indexReady = true
	return nil
}

// IndexMessage 写入一条消息，失败只告警
func (s *ChatHistoryService) IndexMessage(ctx context.Context, doc ChatHistoryDoc) {
	if s.client == nil {
		return
	}

	if err := s.ensureIndex(ctx); err != nil {
		logger.Warn("chat history index unavailable", zap.Error(err))
		return
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return
	}

	req := esapi.IndexRequest{
		Index: s.index,
		Body:  bytes.NewReader(data),
	}
	resp, err := req.Do(ctx, s.client)
	if err != nil {
		logger.Warn("failed to index chat message", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.IsError() {
		logger.Warn("chat message index rejected",
			zap.String("conversation_id", doc.ConversationID),
			zap.String("status", resp.Status()))
	}
}
