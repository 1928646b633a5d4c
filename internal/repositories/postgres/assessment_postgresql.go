package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/cache"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

type AssessmentPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAssessmentPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{db: db, cacheManager: cacheManager}
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AssessmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

func (a *AssessmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	if err := a.getDB(tx).WithContext(ctx).Create(assessment).Error; err != nil {
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Assessment, fmt.Sprintf("creator:%s:*", assessment.CreatedBy))
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Assessment, "list:*")
	return nil
}

func (a *AssessmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var assessment models.Assessment

	err := a.cacheManager.Assessment.CacheOrExecute(ctx, cacheKey, &assessment, cache.AssessmentCacheConfig.TTL, func() (interface{}, error) {
		var dbAssessment models.Assessment
		if err := a.getDB(tx).WithContext(ctx).First(&dbAssessment, id).Error; err != nil {
			return nil, err
		}
		return &dbAssessment, nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) GetByIDWithParts(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error) {
	var assessment models.Assessment
	err := a.getDB(tx).WithContext(ctx).
		Preload("Parts", func(db *gorm.DB) *gorm.DB {
			return db.Order("assessment_parts.position ASC")
		}).
		Preload("Parts.Picks", func(db *gorm.DB) *gorm.DB {
			return db.Order("part_picks.position ASC")
		}).
		Preload("Parts.Draws", func(db *gorm.DB) *gorm.DB {
			return db.Order("part_draws.position ASC")
		}).
		First(&assessment, id).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get assessment with parts: %w", err)
	}
	return &assessment, nil
}

func (a *AssessmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error {
	if err := a.getDB(tx).WithContext(ctx).Save(assessment).Error; err != nil {
		return fmt.Errorf("failed to update assessment: %w", err)
	}
	cache.InvalidateAssessmentCache(ctx, a.cacheManager, assessment.ID, assessment.CreatedBy)
	return nil
}

func (a *AssessmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	result := a.getDB(tx).WithContext(ctx).Delete(&models.Assessment{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete assessment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, a.cacheManager.Assessment, fmt.Sprintf("id:%d", id))
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Assessment, "list:*")
	return nil
}

func (a *AssessmentPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	query := a.getDB(tx).WithContext(ctx).Model(&models.Assessment{})

	if filters.Context != nil {
		query = query.Where("context = ?", *filters.Context)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assessments: %w", err)
	}

	query = applySort(query, filters.SortBy, filters.SortOrder, map[string]string{
		"created_at": "created_at",
		"title":      "title",
		"due_date":   "due_date",
	})
	query = applyPagination(query, filters.Limit, filters.Offset)

	var assessments []*models.Assessment
	if err := query.Find(&assessments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list assessments: %w", err)
	}
	return assessments, total, nil
}

func (a *AssessmentPostgreSQL) GetByContext(ctx context.Context, tx *gorm.DB, context string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	filters.Context = &context
	return a.List(ctx, tx, filters)
}

// BumpVersion advances the structural version and marks the live definition
// as ahead of its latest snapshot, in one UPDATE so concurrent edits cannot
// lose an increment.
func (a *AssessmentPostgreSQL) BumpVersion(ctx context.Context, tx *gorm.DB, id uint) error {
	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"version":      gorm.Expr("version + 1"),
			"live_changed": true,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to bump assessment version: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, a.cacheManager.Assessment, fmt.Sprintf("id:%d", id))
	return nil
}

func (a *AssessmentPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error {
	result := a.getDB(tx).WithContext(ctx).
		Model(&models.Assessment{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update assessment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, a.cacheManager.Assessment, fmt.Sprintf("id:%d", id))
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Assessment, "list:*")
	return nil
}

func (a *AssessmentPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.AssessmentStats, error) {
	cacheKey := fmt.Sprintf("assessment:%d:stats", id)
	var stats repositories.AssessmentStats

	err := a.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		db := a.getDB(tx).WithContext(ctx)
		var dbStats repositories.AssessmentStats

		var total, completed, inProgress int64
		if err := db.Model(&models.Submission{}).Where("assessment_id = ?", id).Count(&total).Error; err != nil {
			return nil, err
		}
		if err := db.Model(&models.Submission{}).
			Where("assessment_id = ? AND status IN ?", id, []models.SubmissionStatus{models.SubmissionComplete, models.SubmissionReleased}).
			Count(&completed).Error; err != nil {
			return nil, err
		}
		if err := db.Model(&models.Submission{}).
			Where("assessment_id = ? AND status = ?", id, models.SubmissionInProgress).
			Count(&inProgress).Error; err != nil {
			return nil, err
		}

		dbStats.TotalSubmissions = int(total)
		dbStats.CompletedSubmissions = int(completed)
		dbStats.InProgress = int(inProgress)

		if completed > 0 {
			row := db.Model(&models.Submission{}).
				Select("COALESCE(AVG(total_score), 0), COALESCE(MAX(total_score), 0), COALESCE(MIN(total_score), 0)").
				Where("assessment_id = ? AND status IN ?", id, []models.SubmissionStatus{models.SubmissionComplete, models.SubmissionReleased}).
				Row()
			if err := row.Scan(&dbStats.AverageScore, &dbStats.HighestScore, &dbStats.LowestScore); err != nil {
				return nil, err
			}
		}
		return &dbStats, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get assessment stats: %w", err)
	}
	return &stats, nil
}

func (a *AssessmentPostgreSQL) HasSubmissions(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	var count int64
	err := a.getDB(tx).WithContext(ctx).
		Model(&models.Submission{}).
		Where("assessment_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count submissions: %w", err)
	}
	return count > 0, nil
}
