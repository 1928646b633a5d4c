package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/cache"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

type PoolPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewPoolPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.PoolRepository {
	return &PoolPostgreSQL{db: db, cacheManager: cacheManager}
}

func (p *PoolPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return p.db
}

func (p *PoolPostgreSQL) Create(ctx context.Context, tx *gorm.DB, pool *models.Pool) error {
	if err := p.getDB(tx).WithContext(ctx).Create(pool).Error; err != nil {
		return fmt.Errorf("failed to create pool: %w", err)
	}
	cache.SafeInvalidatePattern(ctx, p.cacheManager.Pool, "list:*")
	return nil
}

func (p *PoolPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Pool, error) {
	cacheKey := fmt.Sprintf("id:%d", id)
	var pool models.Pool

	err := p.cacheManager.Pool.CacheOrExecute(ctx, cacheKey, &pool, cache.PoolCacheConfig.TTL, func() (interface{}, error) {
		var dbPool models.Pool
		if err := p.getDB(tx).WithContext(ctx).First(&dbPool, id).Error; err != nil {
			return nil, err
		}
		return &dbPool, nil
	})
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return &pool, nil
}

func (p *PoolPostgreSQL) Update(ctx context.Context, tx *gorm.DB, pool *models.Pool) error {
	if err := p.getDB(tx).WithContext(ctx).Save(pool).Error; err != nil {
		return fmt.Errorf("failed to update pool: %w", err)
	}
	cache.InvalidatePoolCache(ctx, p.cacheManager, pool.ID)
	return nil
}

func (p *PoolPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	result := p.getDB(tx).WithContext(ctx).Delete(&models.Pool{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete pool: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	cache.InvalidatePoolCache(ctx, p.cacheManager, id)
	return nil
}

func (p *PoolPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.PoolFilters) ([]*models.Pool, int64, error) {
	query := p.getDB(tx).WithContext(ctx).Model(&models.Pool{})

	if filters.Context != nil {
		query = query.Where("context = ?", *filters.Context)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.Difficulty != nil {
		query = query.Where("difficulty = ?", *filters.Difficulty)
	}
	if filters.Title != nil {
		query = query.Where("title ILIKE ?", "%"+*filters.Title+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pools: %w", err)
	}

	query = applySort(query, filters.SortBy, filters.SortOrder, map[string]string{
		"created_at": "created_at",
		"title":      "title",
		"difficulty": "difficulty",
	})
	query = applyPagination(query, filters.Limit, filters.Offset)

	var pools []*models.Pool
	if err := query.Find(&pools).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list pools: %w", err)
	}
	return pools, total, nil
}

func (p *PoolPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.PoolStats, error) {
	db := p.getDB(tx).WithContext(ctx)
	stats := &repositories.PoolStats{
		QuestionsByType: make(map[models.QuestionType]int),
	}

	type typeCount struct {
		Type  models.QuestionType
		Count int
	}
	var counts []typeCount
	err := db.Model(&models.Question{}).
		Select("type, COUNT(*) as count").
		Where("pool_id = ?", id).
		Group("type").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pool question counts: %w", err)
	}
	for _, c := range counts {
		stats.QuestionsByType[c.Type] = c.Count
		stats.QuestionCount += c.Count
	}

	var drawnBy int64
	err = db.Model(&models.PoolDrawSpec{}).
		Where("pool_id = ?", id).
		Count(&drawnBy).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pool draws: %w", err)
	}
	stats.DrawnBy = int(drawnBy)

	return stats, nil
}

// QuestionIDs returns the pool's question id set. Cached briefly; pool
// content changes invalidate through InvalidatePoolCache.
func (p *PoolPostgreSQL) QuestionIDs(ctx context.Context, tx *gorm.DB, poolID uint) ([]uint, error) {
	cacheKey := fmt.Sprintf("questions:%d", poolID)
	var ids []uint

	err := p.cacheManager.Pool.CacheOrExecute(ctx, cacheKey, &ids, cache.PoolCacheConfig.TTL, func() (interface{}, error) {
		var dbIDs []uint
		err := p.getDB(tx).WithContext(ctx).
			Model(&models.Question{}).
			Where("pool_id = ?", poolID).
			Pluck("id", &dbIDs).Error
		if err != nil {
			return nil, err
		}
		return dbIDs, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pool question ids: %w", err)
	}
	return ids, nil
}

func (p *PoolPostgreSQL) IsDrawnBy(ctx context.Context, tx *gorm.DB, poolID uint) (bool, error) {
	var count int64
	err := p.getDB(tx).WithContext(ctx).
		Model(&models.PoolDrawSpec{}).
		Where("pool_id = ?", poolID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check pool draws: %w", err)
	}
	return count > 0, nil
}
