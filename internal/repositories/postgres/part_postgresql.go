package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/cache"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

type PartPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewPartPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.PartRepository {
	return &PartPostgreSQL{db: db, cacheManager: cacheManager}
}

func (p *PartPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}

func (p *PartPostgreSQL) Create(ctx context.Context, tx *gorm.DB, part *models.Part) error {
	if err := p.getDB(tx).WithContext(ctx).Create(part).Error; err != nil {
		return fmt.Errorf("failed to create part: %w", err)
	}
	cache.SafeDelete(ctx, p.cacheManager.Assessment, fmt.Sprintf("parts:%d", part.AssessmentID))
	return nil
}

func (p *PartPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Part, error) {
	var part models.Part
	err := p.getDB(tx).WithContext(ctx).
		Preload("Picks", func(db *gorm.DB) *gorm.DB {
			return db.Order("part_picks.position ASC")
		}).
		Preload("Draws", func(db *gorm.DB) *gorm.DB {
			return db.Order("part_draws.position ASC")
		}).
		First(&part, id).Error
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get part: %w", err)
	}
	return &part, nil
}

func (p *PartPostgreSQL) GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Part, error) {
	var parts []*models.Part
	err := p.getDB(tx).WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("position ASC").
		Preload("Picks", func(db *gorm.DB) *gorm.DB {
			return db.Order("part_picks.position ASC")
		}).
		Preload("Draws", func(db *gorm.DB) *gorm.DB {
			return db.Order("part_draws.position ASC")
		}).
		Find(&parts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get parts for assessment: %w", err)
	}
	return parts, nil
}

func (p *PartPostgreSQL) Update(ctx context.Context, tx *gorm.DB, part *models.Part) error {
	if err := p.getDB(tx).WithContext(ctx).Save(part).Error; err != nil {
		return fmt.Errorf("failed to update part: %w", err)
	}
	cache.SafeDelete(ctx, p.cacheManager.Assessment, fmt.Sprintf("parts:%d", part.AssessmentID))
	return nil
}

func (p *PartPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := p.getDB(tx).WithContext(ctx)

	var part models.Part
	if err := db.First(&part, id).Error; err != nil {
		return err
	}

	if err := db.Where("part_id = ?", id).Delete(&models.PartPick{}).Error; err != nil {
		return fmt.Errorf("failed to delete part picks: %w", err)
	}
	if err := db.Where("part_id = ?", id).Delete(&models.PoolDrawSpec{}).Error; err != nil {
		return fmt.Errorf("failed to delete part draws: %w", err)
	}
	if err := db.Delete(&models.Part{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete part: %w", err)
	}
	cache.SafeDelete(ctx, p.cacheManager.Assessment, fmt.Sprintf("parts:%d", part.AssessmentID))
	return nil
}

// ReplacePicks swaps the manual question selection of a part wholesale.
// Position comes from slice order.
func (p *PartPostgreSQL) ReplacePicks(ctx context.Context, tx *gorm.DB, partID uint, picks []models.PartPick) error {
	db := p.getDB(tx).WithContext(ctx)

	if err := db.Where("part_id = ?", partID).Delete(&models.PartPick{}).Error; err != nil {
		return fmt.Errorf("failed to clear part picks: %w", err)
	}
	if len(picks) == 0 {
		return nil
	}
	for i := range picks {
		picks[i].ID = 0
		picks[i].PartID = partID
		picks[i].Position = i
	}
	if err := db.Create(&picks).Error; err != nil {
		return fmt.Errorf("failed to create part picks: %w", err)
	}
	return nil
}

// ReplaceDraws swaps the pool draw rules of a part wholesale.
func (p *PartPostgreSQL) ReplaceDraws(ctx context.Context, tx *gorm.DB, partID uint, draws []models.PoolDrawSpec) error {
	db := p.getDB(tx).WithContext(ctx)

	if err := db.Where("part_id = ?", partID).Delete(&models.PoolDrawSpec{}).Error; err != nil {
		return fmt.Errorf("failed to clear part draws: %w", err)
	}
	if len(draws) == 0 {
		return nil
	}
	for i := range draws {
		draws[i].ID = 0
		draws[i].PartID = partID
		draws[i].Position = i
	}
	if err := db.Create(&draws).Error; err != nil {
		return fmt.Errorf("failed to create part draws: %w", err)
	}
	return nil
}

// Reorder rewrites part positions to match the given id order.
func (p *PartPostgreSQL) Reorder(ctx context.Context, tx *gorm.DB, assessmentID uint, partIDs []uint) error {
	db := p.getDB(tx).WithContext(ctx)
	for position, id := range partIDs {
		result := db.Model(&models.Part{}).
			Where("id = ? AND assessment_id = ?", id, assessmentID).
			Update("position", position)
		if result.Error != nil {
			return fmt.Errorf("failed to reorder part %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("part %d does not belong to assessment %d: %w", id, assessmentID, gorm.ErrRecordNotFound)
		}
	}
	cache.SafeDelete(ctx, p.cacheManager.Assessment, fmt.Sprintf("parts:%d", assessmentID))
	return nil
}
