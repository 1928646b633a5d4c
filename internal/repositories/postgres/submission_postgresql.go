package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/cache"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

type SubmissionPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewSubmissionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db, cacheManager: cacheManager}
}

func (s *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	if err := s.getDB(tx).WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.getDB(tx).WithContext(ctx).First(&submission, id).Error; err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error) {
	var submission models.Submission
	err := s.getDB(tx).WithContext(ctx).
		Preload("Answers").
		First(&submission, id).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get submission with answers: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	if err := s.getDB(tx).WithContext(ctx).Save(submission).Error; err != nil {
		return fmt.Errorf("failed to update submission: %w", err)
	}
	cache.InvalidateSubmissionCache(ctx, s.cacheManager, submission.ID)
	return nil
}

func (s *SubmissionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	query := s.getDB(tx).WithContext(ctx).Model(&models.Submission{})

	if filters.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filters.AssessmentID)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.IsGraded != nil {
		query = query.Where("is_graded = ?", *filters.IsGraded)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	query = applySort(query, filters.SortBy, filters.SortOrder, map[string]string{
		"created_at":   "created_at",
		"submitted_at": "submitted_at",
		"total_score":  "total_score",
	})
	query = applyPagination(query, filters.Limit, filters.Offset)

	var submissions []*models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) GetByUserAndAssessment(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := s.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Order("created_at ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user submissions: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) GetInProgress(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) (*models.Submission, error) {
	var submission models.Submission
	err := s.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND assessment_id = ? AND status = ?", userID, assessmentID, models.SubmissionInProgress).
		First(&submission).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get in-progress submission: %w", err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) CountByUserAndAssessment(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) (int64, error) {
	var count int64
	err := s.getDB(tx).WithContext(ctx).
		Model(&models.Submission{}).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count user submissions: %w", err)
	}
	return count, nil
}

func (s *SubmissionPostgreSQL) GetExpired(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := s.getDB(tx).WithContext(ctx).
		Where("status = ? AND deadline IS NOT NULL AND deadline < ?", models.SubmissionInProgress, cutoff).
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get expired submissions: %w", err)
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) GetCompletedByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := s.getDB(tx).WithContext(ctx).
		Where("assessment_id = ? AND status IN ?", assessmentID,
			[]models.SubmissionStatus{models.SubmissionComplete, models.SubmissionReleased}).
		Order("user_id ASC, submitted_at ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get completed submissions: %w", err)
	}
	return submissions, nil
}
