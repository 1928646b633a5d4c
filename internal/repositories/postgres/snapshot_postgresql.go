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

type SnapshotPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewSnapshotPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.SnapshotRepository {
	return &SnapshotPostgreSQL{db: db, cacheManager: cacheManager}
}

func (s *SnapshotPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// Create inserts a snapshot. The unique index on (assessment_id, version)
// makes concurrent creates race safely: the insert runs with ON CONFLICT DO
// NOTHING, so a lost race reports zero affected rows instead of aborting the
// surrounding transaction. Losers get a duplicate key error the caller
// detects via repositories.IsDuplicateKeyError and resolves with a re-read.
func (s *SnapshotPostgreSQL) Create(ctx context.Context, tx *gorm.DB, snapshot *models.AssessmentSnapshot) error {
	result := s.getDB(tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "assessment_id"}, {Name: "version"}},
		DoNothing: true,
	}).Create(snapshot)
	if result.Error != nil {
		return fmt.Errorf("failed to create snapshot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrDuplicatedKey
	}
	return nil
}

func (s *SnapshotPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentSnapshot, error) {
	// Snapshots never change after insert, so the cache needs no
	// invalidation path.
	cacheKey := fmt.Sprintf("id:%d", id)
	var snapshot models.AssessmentSnapshot

	err := s.cacheManager.Snapshot.CacheOrExecute(ctx, cacheKey, &snapshot, cache.SnapshotCacheConfig.TTL, func() (interface{}, error) {
		var dbSnapshot models.AssessmentSnapshot
		if err := s.getDB(tx).WithContext(ctx).First(&dbSnapshot, id).Error; err != nil {
			return nil, err
		}
		return &dbSnapshot, nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *SnapshotPostgreSQL) GetByAssessmentVersion(ctx context.Context, tx *gorm.DB, assessmentID uint, version int) (*models.AssessmentSnapshot, error) {
	var snapshot models.AssessmentSnapshot
	err := s.getDB(tx).WithContext(ctx).
		Where("assessment_id = ? AND version = ?", assessmentID, version).
		First(&snapshot).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get snapshot for version: %w", err)
	}
	return &snapshot, nil
}

func (s *SnapshotPostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.AssessmentSnapshot, error) {
	var snapshots []*models.AssessmentSnapshot
	err := s.getDB(tx).WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("version ASC").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots for assessment: %w", err)
	}
	return snapshots, nil
}

func (s *SnapshotPostgreSQL) HasReferences(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	var count int64
	err := s.getDB(tx).WithContext(ctx).
		Model(&models.Submission{}).
		Where("snapshot_id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count snapshot references: %w", err)
	}
	return count > 0, nil
}

// Delete removes a snapshot. Callers must check HasReferences first; a
// snapshot bound to any submission is permanent.
func (s *SnapshotPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	result := s.getDB(tx).WithContext(ctx).Delete(&models.AssessmentSnapshot{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete snapshot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.SafeDelete(ctx, s.cacheManager.Snapshot, fmt.Sprintf("id:%d", id))
	return nil
}
