package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/aichat/backend-go/internal/models"
)

// KnowledgeBaseRepository 知识库数据访问接口
type KnowledgeBaseRepository interface {
	Create(ctx context.Context, kb *models.KnowledgeBase) error
	GetOwned(ctx context.Context, id uint, userID uint) (*models.KnowledgeBase, error)
	ListByUser(ctx context.Context, userID uint, page, limit int, search string) ([]models.KnowledgeBase, int64, error)
	Update(ctx context.Context, id uint, userID uint, updates map[string]interface{}) error
	Delete(ctx context.Context, id uint, userID uint) error
	FilterOwned(ctx context.Context, ids []uint, userID uint) ([]models.KnowledgeBase, error)
}

// knowledgeBaseRepository 知识库仓库实现
type knowledgeBaseRepository struct {
	db *gorm.DB
}

// NewKnowledgeBaseRepository 创建知识库仓库
func NewKnowledgeBaseRepository(db *gorm.DB) KnowledgeBaseRepository {
	return &knowledgeBaseRepository{db: db}
}

// Create 创建知识库
func (r *knowledgeBaseRepository) Create(ctx context.Context, kb *models.KnowledgeBase) error {
	return r.db.WithContext(ctx).Create(kb).Error
}

// GetOwned 获取属于指定用户的知识库
func (r *knowledgeBaseRepository) GetOwned(ctx context.Context, id uint, userID uint) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&kb).Error
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

// ListByUser 分页获取用户的知识库列表
func (r *knowledgeBaseRepository) ListByUser(ctx context.Context, userID uint, page, limit int, search string) ([]models.KnowledgeBase, int64, error) {
	var knowledgeBases []models.KnowledgeBase
	var total int64

	query := r.db.WithContext(ctx).Model(&models.KnowledgeBase{}).Where("user_id = ?", userID)

	if search != "" {
		query = query.Where("title ILIKE ? OR description ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&knowledgeBases).Error; err != nil {
		return nil, 0, err
	}

	return knowledgeBases, total, nil
}

// Update 更新知识库
func (r *knowledgeBaseRepository) Update(ctx context.Context, id uint, userID uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.KnowledgeBase{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates).Error
}

// Delete 删除知识库
func (r *knowledgeBaseRepository) Delete(ctx context.Context, id uint, userID uint) error {
	return r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.KnowledgeBase{}).Error
}

// FilterOwned 过滤出属于指定用户的知识库，用于检索前的归属校验
func (r *knowledgeBaseRepository) FilterOwned(ctx context.Context, ids []uint, userID uint) ([]models.KnowledgeBase, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var knowledgeBases []models.KnowledgeBase
	err := r.db.WithContext(ctx).
		Where("id IN ? AND user_id = ?", ids, userID).
		Find(&knowledgeBases).Error
	if err != nil {
		return nil, err
	}
	return knowledgeBases, nil
}
