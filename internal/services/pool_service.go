package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// DefaultPoolService implements PoolService.
type DefaultPoolService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewPoolService(repo repositories.Repository, logger *slog.Logger, v *validator.Validator) *DefaultPoolService {
	return &DefaultPoolService{repo: repo, logger: logger, validator: v}
}

func (s *DefaultPoolService) Create(ctx context.Context, userID string, req *CreatePoolRequest) (*models.Pool, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, nil, "pool", "create"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	pool := &models.Pool{
		Title:       req.Title,
		Description: req.Description,
		Points:      req.Points,
		Difficulty:  req.Difficulty,
		Context:     req.Context,
		CreatedBy:   userID,
	}
	if pool.Points == 0 {
		pool.Points = 1
	}
	if pool.Difficulty == 0 {
		pool.Difficulty = models.DifficultyMedium
	}

	if err := s.repo.Pool().Create(ctx, nil, pool); err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	s.logger.Info("pool created", "pool_id", pool.ID, "context", pool.Context, "created_by", userID)
	return pool, nil
}

func (s *DefaultPoolService) GetByID(ctx context.Context, userID string, id uint) (*models.Pool, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "pool", "read"); err != nil {
		return nil, err
	}
	pool, err := s.repo.Pool().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	ids, err := s.repo.Pool().QuestionIDs(ctx, nil, id)
	if err == nil {
		pool.QuestionCount = len(ids)
	}
	return pool, nil
}

func (s *DefaultPoolService) List(ctx context.Context, userID string, filters repositories.PoolFilters) ([]*models.Pool, int64, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, nil, "pool", "list"); err != nil {
		return nil, 0, err
	}
	return s.repo.Pool().List(ctx, nil, filters)
}

func (s *DefaultPoolService) Update(ctx context.Context, userID string, id uint, req *UpdatePoolRequest) (*models.Pool, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "pool", "update"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	pool, err := s.repo.Pool().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}

	if req.Title != nil {
		pool.Title = *req.Title
	}
	if req.Description != nil {
		pool.Description = req.Description
	}
	if req.Points != nil {
		pool.Points = *req.Points
	}
	if req.Difficulty != nil {
		pool.Difficulty = *req.Difficulty
	}

	if err := s.repo.Pool().Update(ctx, nil, pool); err != nil {
		return nil, fmt.Errorf("failed to update pool: %w", err)
	}

	s.logger.Info("pool updated", "pool_id", id, "updated_by", userID)
	return pool, nil
}

func (s *DefaultPoolService) Delete(ctx context.Context, userID string, id uint) error {
	user, err := requireAuthor(ctx, s.repo, userID, id, "pool", "delete")
	if err != nil {
		return err
	}
	pool, err := s.repo.Pool().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrPoolNotFound
		}
		return err
	}
	if pool.CreatedBy != userID && user.Role != models.RoleAdmin {
		return NewPermissionError(userID, id, "pool", "delete", "only the creator or an admin may delete")
	}

	drawn, err := s.repo.Pool().IsDrawnBy(ctx, nil, id)
	if err != nil {
		return err
	}
	if drawn {
		return ErrPoolInUse
	}

	if err := s.repo.Pool().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete pool: %w", err)
	}
	s.logger.Info("pool deleted", "pool_id", id, "deleted_by", userID)
	return nil
}

func (s *DefaultPoolService) GetStats(ctx context.Context, userID string, id uint) (*repositories.PoolStats, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "pool", "stats"); err != nil {
		return nil, err
	}
	return s.repo.Pool().GetStats(ctx, nil, id)
}
