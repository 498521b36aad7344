package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aichat/backend-go/internal/config"
	"github.com/aichat/backend-go/internal/models"
	"github.com/aichat/backend-go/internal/services"
)

type stubStore struct {
	mu           sync.Mutex
	userContents []string
	assistant    []string
}

func (s *stubStore) ValidateOwnership(ctx context.Context, conversationID string, userID uint) error {
	return nil
}

func (s *stubStore) SaveUserMessage(ctx context.Context, conversationID string, userID uint, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userContents = append(s.userContents, content)
	return nil
}

func (s *stubStore) SaveAssistantMessage(ctx context.Context, conversationID string, userID uint, content, model, metadata string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = append(s.assistant, content)
	return nil
}

func (s *stubStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]models.Message, 0, len(s.userContents))
	for _, content := range s.userContents {
		messages = append(messages, models.Message{Role: models.RoleUser, Content: content})
	}
	return messages, nil
}

func (s *stubStore) UpdateLastMessageTime(ctx context.Context, conversationID string) error {
	return nil
}

type stubRetriever struct{}

func (s *stubRetriever) Retrieve(ctx context.Context, userID uint, knowledgeBaseIDs []uint, query string, topK int) ([]services.RetrievedDocument, error) {
	return nil, nil
}

// 经过beego路由分发：每次请求beego会复制注册的控制器实例，
// 只有导出字段能带到请求副本上，这里验证注入的服务在副本里仍然可用。
func TestStreamRouteThroughBeego(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range []string{"Hel", "lo", "!"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", frame)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	cfg := config.ChatConfig{
		Providers: []config.ProviderEntry{{
			Name:    "deepseek",
			BaseURL: upstream.URL,
			APIKey:  "test-key",
			Path:    "/v1/chat/completions",
		}},
		DefaultProvider:  "deepseek",
		DefaultModel:     "deepseek-chat",
		TimeoutSeconds:   5,
		DefaultMaxTokens: 3500,
		MaxTokensLimit:   32768,
		Temperature:      0.7,
		HistoryLimit:     10,
	}
	store := &stubStore{}
	chatService := services.NewChatStreamService(store, &stubRetriever{}, services.NewProviderRouter(cfg), nil, cfg)

	web.BConfig.CopyRequestBody = true
	web.Router("/api/chat/stream", NewChatController(chatService), "post:Stream")

	body, err := json.Marshal(map[string]interface{}{
		"conversation_id": "conv-1",
		"content":         "你好",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/chat/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "1")
	w := httptest.NewRecorder()
	web.BeeApp.Handlers.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	output := w.Body.String()
	assert.Contains(t, output, "data: Hel\n")
	assert.Contains(t, output, "event: final\ndata: Hello!\n")
	assert.Contains(t, output, "data: [DONE]\n")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []string{"你好"}, store.userContents)
	assert.Equal(t, []string{"Hello!"}, store.assistant)
}
