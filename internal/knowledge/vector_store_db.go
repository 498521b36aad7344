package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gorm.io/gorm"
)

// DatabaseVectorStore 基于PostgreSQL的退化向量存储
//
// 向量以JSON列存于vector_documents表，检索时在内存中计算余弦相似度。
// 数据量大时应切换到Milvus实现。
type DatabaseVectorStore struct {
	db *gorm.DB
}

func NewDatabaseVectorStore(db *gorm.DB) VectorStore {
	return &DatabaseVectorStore{db: db}
}

func (s *DatabaseVectorStore) Upsert(ctx context.Context, record VectorRecord) (string, error) {
	if len(record.Embedding) == 0 {
		return "", fmt.Errorf("embedding is empty")
	}

	embeddingJSON, err := json.Marshal(record.Embedding)
	if err != nil {
		return "", err
	}

	vectorID := fmt.Sprintf("db_%d", record.DocumentID)
	err = s.db.WithContext(ctx).Table("vector_documents").
		Where("id = ?", record.DocumentID).
		Update("embedding", string(embeddingJSON)).Error
	if err != nil {
		return "", err
	}
	return vectorID, nil
}

func (s *DatabaseVectorStore) DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID uint) error {
	return s.db.WithContext(ctx).Table("vector_documents").
		Where("knowledge_base_id = ?", knowledgeBaseID).
		Delete(nil).Error
}

func (s *DatabaseVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 || len(req.KnowledgeBaseIDs) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if req.CandidateLimit == 0 {
		req.CandidateLimit = req.Limit * 20
	}

	var rows []documentEmbeddingRecord
	err := s.db.WithContext(ctx).
		Table("vector_documents").
		Select("id, knowledge_base_id, content, embedding, metadata").
		Where("knowledge_base_id IN ?", req.KnowledgeBaseIDs).
		Where("embedding IS NOT NULL AND embedding::text <> ''").
		Limit(req.CandidateLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	queryNorm := vectorNorm(req.QueryEmbedding)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query embedding norm is zero")
	}

	results := make([]SearchMatch, 0, req.Limit)
	for _, row := range rows {
		var embedding []float32
		if err := json.Unmarshal([]byte(row.EmbeddingJSON), &embedding); err != nil {
			continue
		}
		var metadata map[string]interface{}
		if row.MetadataJSON != "" {
			_ = json.Unmarshal([]byte(row.MetadataJSON), &metadata)
		}
		score := cosineSimilarity(req.QueryEmbedding, embedding, queryNorm)
		results = append(results, SearchMatch{
			DocumentID:      row.ID,
			KnowledgeBaseID: row.KnowledgeBaseID,
			Content:         row.Content,
			Score:           score,
			Metadata:        metadata,
		})
	}

	sortMatchesByScore(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

func (s *DatabaseVectorStore) Ready() bool {
	return s.db != nil
}

type documentEmbeddingRecord struct {
	ID              uint
	KnowledgeBaseID uint
	Content         string
	EmbeddingJSON   string `gorm:"column:embedding"`
	MetadataJSON    string `gorm:"column:metadata"`
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		// 尝试对齐长度
		minLen := len(a)
		if len(b) < minLen {
			minLen = len(b)
		}
		a = a[:minLen]
		b = b[:minLen]
	}

	var dot float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (normA * math.Sqrt(normB))
}
