package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/aichat/backend-go/internal/errors"
	"github.com/aichat/backend-go/internal/knowledge"
	"github.com/aichat/backend-go/internal/logger"
	"github.com/aichat/backend-go/internal/models"
	"github.com/aichat/backend-go/internal/repository"
)

// CreateKnowledgeBaseRequest 创建知识库请求
type CreateKnowledgeBaseRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	SourceKind  string `json:"source_kind" validate:"omitempty,oneof=file url text"`
	SourceRef   string `json:"source_ref" validate:"max=500"`
}

// AddDocumentsRequest 从文本添加文档请求
type AddDocumentsRequest struct {
	Text          string `json:"text" validate:"required"`
	SplitStrategy string `json:"split_strategy"`
	ChunkSize     int    `json:"chunk_size" validate:"omitempty,min=1"`
	OverlapSize   int    `json:"overlap_size" validate:"omitempty,min=0"`
}

// PreviewSplitRequest 切分预览请求
type PreviewSplitRequest struct {
	Text          string `json:"text" validate:"required"`
	SplitStrategy string `json:"split_strategy"`
	ChunkSize     int    `json:"chunk_size" validate:"omitempty,min=1"`
	OverlapSize   int    `json:"overlap_size" validate:"omitempty,min=0"`
}

// VectorService 知识库与向量文档服务
type VectorService struct {
	db       *gorm.DB
	repo     repository.KnowledgeBaseRepository
	splitter *knowledge.Splitter
	embedder knowledge.Embedder
	store    knowledge.VectorStore
}

// NewVectorService 创建向量服务
func NewVectorService(db *gorm.DB, repo repository.KnowledgeBaseRepository, embedder knowledge.Embedder, store knowledge.VectorStore) *VectorService {
	return &VectorService{
		db:       db,
		repo:     repo,
		splitter: knowledge.NewSplitter(),
		embedder: embedder,
		store:    store,
	}
}

// CreateKnowledgeBase 创建知识库
func (s *VectorService) CreateKnowledgeBase(ctx context.Context, userID uint, req CreateKnowledgeBaseRequest) (*models.KnowledgeBase, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}

	sourceKind := req.SourceKind
	if sourceKind == "" {
		sourceKind = models.SourceKindText
	}

	kb := &models.KnowledgeBase{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		SourceKind:  sourceKind,
		SourceRef:   req.SourceRef,
		Status:      models.KBStatusActive,
	}
	if err := s.repo.Create(ctx, kb); err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "创建知识库失败").WithCause(err)
	}

	logger.Info("knowledge base created",
		zap.Uint("id", kb.ID),
		zap.Uint("user_id", userID),
		zap.String("title", kb.Title))
	return kb, nil
}

// ListKnowledgeBases 分页获取用户的知识库
func (s *VectorService) ListKnowledgeBases(ctx context.Context, userID uint, page, limit int, search string) ([]models.KnowledgeBase, int64, error) {
	return s.repo.ListByUser(ctx, userID, page, limit, search)
}

// GetKnowledgeBase 获取知识库，校验归属
func (s *VectorService) GetKnowledgeBase(ctx context.Context, id uint, userID uint) (*models.KnowledgeBase, error) {
	kb, err := s.repo.GetOwned(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewAccessDeniedError("知识库")
		}
		return nil, err
	}
	return kb, nil
}

// UpdateKnowledgeBase 更新知识库标题/描述/状态
func (s *VectorService) UpdateKnowledgeBase(ctx context.Context, id uint, userID uint, updates map[string]interface{}) (*models.KnowledgeBase, error) {
	if _, err := s.GetKnowledgeBase(ctx, id, userID); err != nil {
		return nil, err
	}

	if status, ok := updates["status"].(string); ok {
		if status != models.KBStatusActive && status != models.KBStatusInactive {
			return nil, apperrors.NewValidationError(fmt.Sprintf("invalid status: %s", status))
		}
	}

	if err := s.repo.Update(ctx, id, userID, updates); err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "更新知识库失败").WithCause(err)
	}
	return s.GetKnowledgeBase(ctx, id, userID)
}

// DeleteKnowledgeBase 删除知识库及其全部向量文档
func (s *VectorService) DeleteKnowledgeBase(ctx context.Context, id uint, userID uint) error {
	if _, err := s.GetKnowledgeBase(ctx, id, userID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("knowledge_base_id = ?", id).
		Delete(&models.VectorDocument{}).Error; err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "删除知识库文档失败").WithCause(err)
	}

	// 向量索引清理失败不阻塞删除
	if err := s.store.DeleteByKnowledgeBase(ctx, id); err != nil {
		logger.Warn("failed to delete vectors from store", zap.Uint("knowledge_base_id", id), zap.Error(err))
	}

	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "删除知识库失败").WithCause(err)
	}

	logger.Info("knowledge base deleted", zap.Uint("id", id), zap.Uint("user_id", userID))
	return nil
}

// GetDocuments 获取知识库的全部文档
func (s *VectorService) GetDocuments(ctx context.Context, knowledgeBaseID uint, userID uint) ([]models.VectorDocument, error) {
	if _, err := s.GetKnowledgeBase(ctx, knowledgeBaseID, userID); err != nil {
		return nil, err
	}

	var docs []models.VectorDocument
	err := s.db.WithContext(ctx).
		Where("knowledge_base_id = ?", knowledgeBaseID).
		Order("id ASC").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// PreviewSplit 预览切分结果，不落库
func (s *VectorService) PreviewSplit(req PreviewSplitRequest) ([]string, error) {
	if err := ValidateStruct(req); err != nil {
		return nil, err
	}

	strategy, err := knowledge.ParseStrategy(req.SplitStrategy)
	if err != nil {
		return nil, err
	}
	return s.splitter.Split(req.Text, strategy, req.ChunkSize, req.OverlapSize)
}

// AddDocumentsFromText 切分文本并写入知识库
func (s *VectorService) AddDocumentsFromText(ctx context.Context, knowledgeBaseID uint, userID uint, req AddDocumentsRequest) (int, error) {
	if err := ValidateStruct(req); err != nil {
		return 0, err
	}

	kb, err := s.GetKnowledgeBase(ctx, knowledgeBaseID, userID)
	if err != nil {
		return 0, err
	}

	strategy, err := knowledge.ParseStrategy(req.SplitStrategy)
	if err != nil {
		return 0, err
	}

	chunks, err := s.splitter.Split(req.Text, strategy, req.ChunkSize, req.OverlapSize)
	if err != nil {
		return 0, err
	}

	baseMetadata := map[string]interface{}{
		"source":             "text",
		"splitStrategy":      string(strategy),
		"knowledgeBaseTitle": kb.Title,
	}
	if err := s.insertChunks(ctx, knowledgeBaseID, chunks, baseMetadata); err != nil {
		return 0, err
	}

	logger.Info("documents added from text",
		zap.Uint("knowledge_base_id", knowledgeBaseID),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// ReplaceDocuments 以新内容整体替换知识库文档
func (s *VectorService) ReplaceDocuments(ctx context.Context, knowledgeBaseID uint, userID uint, contents []string) (int, error) {
	kb, err := s.GetKnowledgeBase(ctx, knowledgeBaseID, userID)
	if err != nil {
		return 0, err
	}

	if err := s.db.WithContext(ctx).
		Where("knowledge_base_id = ?", knowledgeBaseID).
		Delete(&models.VectorDocument{}).Error; err != nil {
		return 0, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "清空知识库文档失败").WithCause(err)
	}
	if err := s.store.DeleteByKnowledgeBase(ctx, knowledgeBaseID); err != nil {
		logger.Warn("failed to delete vectors from store", zap.Uint("knowledge_base_id", knowledgeBaseID), zap.Error(err))
	}

	baseMetadata := map[string]interface{}{
		"source":             "text",
		"knowledgeBaseTitle": kb.Title,
	}
	if err := s.insertChunks(ctx, knowledgeBaseID, contents, baseMetadata); err != nil {
		return 0, err
	}
	return len(contents), nil
}

// insertChunks 逐块写入文档并建立向量索引
func (s *VectorService) insertChunks(ctx context.Context, knowledgeBaseID uint, chunks []string, baseMetadata map[string]interface{}) error {
	for i, content := range chunks {
		metadata := make(map[string]interface{}, len(baseMetadata)+2)
		for k, v := range baseMetadata {
			metadata[k] = v
		}
		metadata["chunkIndex"] = i
		metadata["totalChunks"] = len(chunks)

		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return err
		}

		doc := &models.VectorDocument{
			KnowledgeBaseID: knowledgeBaseID,
			Content:         content,
			Metadata:        string(metadataJSON),
			TokenCount:      EstimateTokens(content),
		}
		if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
			return apperrors.NewSystemError(apperrors.ErrCodePersistenceFailed, "写入文档失败").WithCause(err)
		}

		embedding, err := s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("生成嵌入向量失败: %w", err)
		}

		if _, err := s.store.Upsert(ctx, knowledge.VectorRecord{
			DocumentID:      doc.ID,
			KnowledgeBaseID: knowledgeBaseID,
			Content:         content,
			Embedding:       embedding,
		}); err != nil {
			return fmt.Errorf("写入向量索引失败: %w", err)
		}
	}
	return nil
}

// Search 在单个知识库中检索相似文档
func (s *VectorService) Search(ctx context.Context, knowledgeBaseID uint, userID uint, query string, topK int) ([]knowledge.SearchMatch, error) {
	return s.SearchInMultiple(ctx, []uint{knowledgeBaseID}, userID, query, topK)
}

// SearchInMultiple 跨多个知识库检索相似文档
//
// 归属校验在生成查询向量之前完成，任何一个知识库不属于调用者都直接失败。
func (s *VectorService) SearchInMultiple(ctx context.Context, knowledgeBaseIDs []uint, userID uint, query string, topK int) ([]knowledge.SearchMatch, error) {
	if len(knowledgeBaseIDs) == 0 {
		return nil, nil
	}

	owned, err := s.repo.FilterOwned(ctx, knowledgeBaseIDs, userID)
	if err != nil {
		return nil, err
	}
	ownedSet := make(map[uint]bool, len(owned))
	for _, kb := range owned {
		ownedSet[kb.ID] = true
	}
	for _, id := range knowledgeBaseIDs {
		if !ownedSet[id] {
			return nil, apperrors.NewAccessDeniedError("知识库")
		}
	}

	queryEmbedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("生成查询向量失败: %w", err)
	}

	if topK <= 0 {
		topK = 3
	}
	matches, err := s.store.Search(ctx, knowledge.VectorSearchRequest{
		KnowledgeBaseIDs: knowledgeBaseIDs,
		QueryEmbedding:   queryEmbedding,
		Limit:            topK,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("vector search completed",
		zap.Uints("knowledge_base_ids", knowledgeBaseIDs),
		zap.Int("results", len(matches)))
	return matches, nil
}

// EstimateTokens 粗略估算token数：中文约1.5字符/token，英文约4字符/token
func EstimateTokens(text string) int {
	return int(float64(len([]rune(text))) / 2.5)
}
