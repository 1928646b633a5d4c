package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/qtype"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// DefaultQuestionService implements QuestionService. Content payloads are
// validated by the question type's plugin, never inspected here.
type DefaultQuestionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, logger *slog.Logger, v *validator.Validator) *DefaultQuestionService {
	return &DefaultQuestionService{repo: repo, logger: logger, validator: v}
}

func (s *DefaultQuestionService) Create(ctx context.Context, userID string, req *CreateQuestionRequest) (*models.Question, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, nil, "question", "create"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	plugin, err := qtype.Get(req.Type)
	if err != nil {
		return nil, NewValidationError("type", "unknown question type", req.Type)
	}
	if err := plugin.ValidateContent(req.Content); err != nil {
		return nil, NewValidationError("content", err.Error(), nil)
	}

	if _, err := s.repo.Pool().GetByID(ctx, nil, req.PoolID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}

	question := &models.Question{
		Type:         req.Type,
		PoolID:       req.PoolID,
		Presentation: req.Presentation,
		Content:      []byte(req.Content),
		IsSurvey:     req.IsSurvey,
		Hints:        req.Hints,
		Feedback:     req.Feedback,
		CreatedBy:    userID,
	}
	if err := s.repo.Question().Create(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	s.logger.Info("question created",
		"question_id", question.ID,
		"type", question.Type,
		"pool_id", question.PoolID,
		"created_by", userID)
	return question, nil
}

func (s *DefaultQuestionService) GetByID(ctx context.Context, userID string, id uint) (*models.Question, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "question", "read"); err != nil {
		return nil, err
	}
	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}
	return question, nil
}

func (s *DefaultQuestionService) List(ctx context.Context, userID string, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, nil, "question", "list"); err != nil {
		return nil, 0, err
	}
	return s.repo.Question().List(ctx, nil, filters)
}

func (s *DefaultQuestionService) Update(ctx context.Context, userID string, id uint, req *UpdateQuestionRequest) (*models.Question, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "question", "update"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	question, err := s.repo.Question().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	if req.Content != nil {
		plugin, err := qtype.Get(question.Type)
		if err != nil {
			return nil, err
		}
		if err := plugin.ValidateContent(req.Content); err != nil {
			return nil, NewValidationError("content", err.Error(), nil)
		}
		question.Content = []byte(req.Content)
	}
	if req.Presentation != nil {
		question.Presentation = *req.Presentation
	}
	if req.IsSurvey != nil {
		question.IsSurvey = *req.IsSurvey
	}
	if req.Hints != nil {
		question.Hints = req.Hints
	}
	if req.Feedback != nil {
		question.Feedback = req.Feedback
	}

	if err := s.repo.Question().Update(ctx, nil, question); err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}

	s.logger.Info("question updated", "question_id", id, "updated_by", userID)
	return question, nil
}

func (s *DefaultQuestionService) Delete(ctx context.Context, userID string, id uint) error {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "question", "delete"); err != nil {
		return err
	}

	used, err := s.repo.Question().IsUsedByParts(ctx, nil, id)
	if err != nil {
		return err
	}
	if used {
		return ErrQuestionInUse
	}

	if err := s.repo.Question().Delete(ctx, nil, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to delete question: %w", err)
	}
	s.logger.Info("question deleted", "question_id", id, "deleted_by", userID)
	return nil
}

func (s *DefaultQuestionService) CopyToPool(ctx context.Context, userID string, questionID, poolID uint) (*models.Question, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, questionID, "question", "copy"); err != nil {
		return nil, err
	}
	if _, err := s.repo.Pool().GetByID(ctx, nil, poolID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}

	copied, err := s.repo.Question().CopyToPool(ctx, nil, questionID, poolID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to copy question: %w", err)
	}

	s.logger.Info("question copied",
		"question_id", questionID,
		"copy_id", copied.ID,
		"pool_id", poolID,
		"copied_by", userID)
	return copied, nil
}
