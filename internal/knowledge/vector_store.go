package knowledge

import (
	"context"
	"sort"
)

// VectorRecord 一个已向量化的文本块
type VectorRecord struct {
	DocumentID      uint
	KnowledgeBaseID uint
	Content         string
	Embedding       []float32
}

// SearchMatch 向量检索命中结果
type SearchMatch struct {
	DocumentID      uint
	KnowledgeBaseID uint
	Content         string
	Score           float64
	Metadata        map[string]interface{}
}

// VectorSearchRequest 向量检索请求，支持跨多个知识库检索
type VectorSearchRequest struct {
	KnowledgeBaseIDs []uint
	QueryEmbedding   []float32
	Limit            int
	CandidateLimit   int
}

// VectorStore 向量存储抽象
type VectorStore interface {
	Upsert(ctx context.Context, record VectorRecord) (string, error)
	Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error)
	DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID uint) error
	Ready() bool
}

// sortMatchesByScore 按相似度降序排序，分数相同时文档ID小者在前保证稳定
func sortMatchesByScore(matches []SearchMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].DocumentID < matches[j].DocumentID
		}
		return matches[i].Score > matches[j].Score
	})
}
