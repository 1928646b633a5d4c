package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakai-mirror/mneme/internal/cache"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

type AnswerPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewAnswerPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db, cacheManager: cacheManager}
}

func (a *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// Upsert writes an answer, replacing any existing row for the same
// submission and question. Saving twice overwrites, it never duplicates.
func (a *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	err := a.getDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"data", "auto_score", "answered_at", "updated_at",
			}),
		}).
		Create(answer).Error
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	cache.InvalidateSubmissionCache(ctx, a.cacheManager, answer.SubmissionID)
	return nil
}

func (a *AnswerPostgreSQL) GetBySubmission(ctx context.Context, tx *gorm.DB, submissionID uint) ([]*models.Answer, error) {
	var answers []*models.Answer
	err := a.getDB(tx).WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetBySubmissionAndQuestion(ctx context.Context, tx *gorm.DB, submissionID, questionID uint) (*models.Answer, error) {
	var answer models.Answer
	err := a.getDB(tx).WithContext(ctx).
		Where("submission_id = ? AND question_id = ?", submissionID, questionID).
		First(&answer).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &answer, nil
}

func (a *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	if err := a.getDB(tx).WithContext(ctx).Save(answer).Error; err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}
	cache.InvalidateSubmissionCache(ctx, a.cacheManager, answer.SubmissionID)
	return nil
}

// GetPendingEvaluation returns answers on completed submissions that have no
// automatic score and no evaluator score yet.
func (a *AnswerPostgreSQL) GetPendingEvaluation(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Answer, error) {
	var answers []*models.Answer
	err := a.getDB(tx).WithContext(ctx).
		Joins("JOIN submissions ON submissions.id = submission_answers.submission_id").
		Where("submissions.assessment_id = ?", assessmentID).
		Where("submissions.status IN ?", []models.SubmissionStatus{models.SubmissionComplete, models.SubmissionReleased}).
		Where("submission_answers.auto_score IS NULL AND submission_answers.eval_score IS NULL").
		Find(&answers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending answers: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) GetGradingStats(ctx context.Context, tx *gorm.DB, assessmentID uint) (*repositories.GradingStats, error) {
	db := a.getDB(tx).WithContext(ctx)
	base := db.Model(&models.Answer{}).
		Joins("JOIN submissions ON submissions.id = submission_answers.submission_id").
		Where("submissions.assessment_id = ?", assessmentID)

	stats := &repositories.GradingStats{}
	var total, auto, evaluated, pending int64

	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count answers: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("submission_answers.auto_score IS NOT NULL").Count(&auto).Error; err != nil {
		return nil, fmt.Errorf("failed to count auto-scored answers: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("submission_answers.eval_score IS NOT NULL").Count(&evaluated).Error; err != nil {
		return nil, fmt.Errorf("failed to count evaluated answers: %w", err)
	}
	if err := base.Session(&gorm.Session{}).Where("submission_answers.auto_score IS NULL AND submission_answers.eval_score IS NULL").Count(&pending).Error; err != nil {
		return nil, fmt.Errorf("failed to count pending answers: %w", err)
	}

	stats.TotalAnswers = int(total)
	stats.AutoScored = int(auto)
	stats.Evaluated = int(evaluated)
	stats.PendingAnswers = int(pending)
	return stats, nil
}
