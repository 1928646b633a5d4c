package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/cache"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

type QuestionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (q *QuestionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := q.getDB(tx).WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ID, question.PoolID)
	return nil
}

func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var question models.Question

	err := q.cacheManager.Question.CacheOrExecute(ctx, cacheKey, &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.Question
		if err := q.getDB(tx).WithContext(ctx).First(&dbQuestion, id).Error; err != nil {
			return nil, err
		}
		return &dbQuestion, nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return &question, nil
}

func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var questions []*models.Question
	err := q.getDB(tx).WithContext(ctx).
		Preload("Pool").
		Where("id IN ?", ids).
		Find(&questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get questions by ids: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	if err := q.getDB(tx).WithContext(ctx).Save(question).Error; err != nil {
		return fmt.Errorf("failed to update question: %w", err)
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ID, question.PoolID)
	return nil
}

func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.getDB(tx).WithContext(ctx)

	var question models.Question
	if err := db.First(&question, id).Error; err != nil {
		return err
	}
	if err := db.Delete(&models.Question{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, id, question.PoolID)
	return nil
}

func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	query := q.getDB(tx).WithContext(ctx).Model(&models.Question{})

	if filters.PoolID != nil {
		query = query.Where("pool_id = ?", *filters.PoolID)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.IsSurvey != nil {
		query = query.Where("is_survey = ?", *filters.IsSurvey)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count questions: %w", err)
	}

	query = applySort(query, filters.SortBy, filters.SortOrder, map[string]string{
		"created_at": "created_at",
		"type":       "type",
	})
	query = applyPagination(query, filters.Limit, filters.Offset)

	var questions []*models.Question
	if err := query.Find(&questions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, total, nil
}

// CopyToPool clones a question into another pool. The copy gets a fresh id
// and the caller's authorship; the source is untouched.
func (q *QuestionPostgreSQL) CopyToPool(ctx context.Context, tx *gorm.DB, questionID, poolID uint, createdBy string) (*models.Question, error) {
	db := q.getDB(tx).WithContext(ctx)

	var source models.Question
	if err := db.First(&source, questionID).Error; err != nil {
		return nil, err
	}

	copy := source
	copy.ID = 0
	copy.PoolID = poolID
	copy.CreatedBy = createdBy
	if err := db.Create(&copy).Error; err != nil {
		return nil, fmt.Errorf("failed to copy question: %w", err)
	}
	cache.InvalidateQuestionCache(ctx, q.cacheManager, copy.ID, poolID)
	return &copy, nil
}

func (q *QuestionPostgreSQL) IsUsedByParts(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	var count int64
	err := q.getDB(tx).WithContext(ctx).
		Model(&models.PartPick{}).
		Where("question_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check question usage: %w", err)
	}
	return count > 0, nil
}
