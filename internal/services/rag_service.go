package services

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/aichat/backend-go/internal/errors"
	"github.com/aichat/backend-go/internal/knowledge"
	"github.com/aichat/backend-go/internal/logger"
)

// 检索结果中知识库标题缺失时的占位
const unknownKnowledgeBaseTitle = "未知知识库"

// 写入消息元数据的片段长度上限（字符）
const provenanceSnippetLimit = 200

// RetrievedDocument 一条检索命中，Content为完整内容（用于拼装提示词），
// Snippet为截断后的内容（用于来源展示与持久化）
type RetrievedDocument struct {
	DocumentID         uint    `json:"documentId"`
	Content            string  `json:"-"`
	Snippet            string  `json:"content"`
	KnowledgeBaseTitle string  `json:"knowledgeBaseTitle"`
	Score              float64 `json:"-"`
}

// Retriever 知识库检索抽象
type Retriever interface {
	Retrieve(ctx context.Context, userID uint, knowledgeBaseIDs []uint, query string, topK int) ([]RetrievedDocument, error)
}

// MultiSearcher 跨知识库向量检索抽象
type MultiSearcher interface {
	SearchInMultiple(ctx context.Context, knowledgeBaseIDs []uint, userID uint, query string, topK int) ([]knowledge.SearchMatch, error)
}

// RagService 检索增强服务
//
// 归属校验失败直接返回错误；其余任何失败都降级为空结果并告警，
// 聊天主流程不因检索问题中断。
type RagService struct {
	searcher    MultiSearcher
	cache       *redis.Client
	cacheTTL    time.Duration
	defaultTopK int
}

// NewRagService 创建检索增强服务，cache可为nil
func NewRagService(searcher MultiSearcher, cache *redis.Client, cacheTTL time.Duration, defaultTopK int) *RagService {
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &RagService{
		searcher:    searcher,
		cache:       cache,
		cacheTTL:    cacheTTL,
		defaultTopK: defaultTopK,
	}
}

// Retrieve 在用户的知识库中检索与query相关的文档
func (s *RagService) Retrieve(ctx context.Context, userID uint, knowledgeBaseIDs []uint, query string, topK int) ([]RetrievedDocument, error) {
	if len(knowledgeBaseIDs) == 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	cacheKey := s.cacheKey(userID, knowledgeBaseIDs, query, topK)
	if cached, ok := s.fromCache(ctx, cacheKey); ok {
		return cached, nil
	}

	matches, err := s.searcher.SearchInMultiple(ctx, knowledgeBaseIDs, userID, query, topK)
	if err != nil {
		if apperrors.IsAccessDenied(err) {
			return nil, err
		}
		logger.Warn("rag retrieval failed, continuing without context",
			zap.Uint("user_id", userID),
			zap.Error(err))
		ragRetrievalTotal.WithLabelValues("degraded").Inc()
		return []RetrievedDocument{}, nil
	}

	docs := make([]RetrievedDocument, 0, len(matches))
	for _, match := range matches {
		docs = append(docs, RetrievedDocument{
			DocumentID:         match.DocumentID,
			Content:            match.Content,
			Snippet:            truncateSnippet(match.Content),
			KnowledgeBaseTitle: titleFromMetadata(match.Metadata),
			Score:              match.Score,
		})
	}

	s.toCache(ctx, cacheKey, docs)
	ragRetrievalTotal.WithLabelValues("ok").Inc()
	ragRetrievedDocs.Observe(float64(len(docs)))
	return docs, nil
}

func (s *RagService) cacheKey(userID uint, ids []uint, query string, topK int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%v|%s", ids, query)
	return fmt.Sprintf("rag:%d:%d:%x", userID, topK, h.Sum64())
}

func (s *RagService) fromCache(ctx context.Context, key string) ([]RetrievedDocument, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var docs []cachedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, false
	}
	result := make([]RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		result = append(result, RetrievedDocument(d))
	}
	return result, true
}

func (s *RagService) toCache(ctx context.Context, key string, docs []RetrievedDocument) {
	if s.cache == nil {
		return
	}
	cached := make([]cachedDocument, 0, len(docs))
	for _, d := range docs {
		cached = append(cached, cachedDocument(d))
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
		logger.Debug("rag cache write failed", zap.Error(err))
	}
}

// cachedDocument 缓存序列化用，保留完整内容
type cachedDocument struct {
	DocumentID         uint    `json:"documentId"`
	Content            string  `json:"fullContent"`
	Snippet            string  `json:"content"`
	KnowledgeBaseTitle string  `json:"knowledgeBaseTitle"`
	Score              float64 `json:"score"`
}

func truncateSnippet(content string) string {
	content = strings.ReplaceAll(content, "\r", "")
	runes := []rune(content)
	if len(runes) > provenanceSnippetLimit {
		return string(runes[:provenanceSnippetLimit]) + "..."
	}
	return content
}

func titleFromMetadata(metadata map[string]interface{}) string {
	if metadata != nil {
		if title, ok := metadata["knowledgeBaseTitle"].(string); ok && title != "" {
			return title
		}
	}
	return unknownKnowledgeBaseTitle
}

// BuildRagMetadata 将检索来源编码为消息元数据JSON，无命中时返回空串
func BuildRagMetadata(docs []RetrievedDocument) string {
	if len(docs) == 0 {
		return ""
	}
	payload := struct {
		RagDocs []RetrievedDocument `json:"ragDocs"`
	}{RagDocs: docs}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(data)
}

// BuildContextFromDocuments 将检索命中拼装为提示词上下文，使用完整内容
func BuildContextFromDocuments(docs []RetrievedDocument) string {
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "【文档%d】\n%s\n\n", i+1, doc.Content)
	}
	return strings.TrimSpace(b.String())
}
