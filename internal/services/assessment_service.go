package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sakai-mirror/mneme/internal/events"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/shuffle"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// DefaultAssessmentService implements AssessmentService.
type DefaultAssessmentService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewAssessmentService(repo repositories.Repository, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) *DefaultAssessmentService {
	return &DefaultAssessmentService{
		repo:      repo,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== LIFECYCLE =====

func (s *DefaultAssessmentService) Create(ctx context.Context, userID string, req *CreateAssessmentRequest) (*models.Assessment, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, nil, "assessment", "create"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	assessment := &models.Assessment{
		Title:           req.Title,
		Type:            req.Type,
		Status:          models.AssessmentDraft,
		Context:         req.Context,
		Presentation:    req.Presentation,
		OpenDate:        req.OpenDate,
		DueDate:         req.DueDate,
		AcceptUntilDate: req.AcceptUntil,
		TimeLimit:       req.TimeLimit,
		TriesAllowed:    req.TriesAllowed,
		Grouping:        req.Grouping,
		Version:         1,
		CreatedBy:       userID,
	}
	if assessment.Type == "" {
		assessment.Type = models.TypeTest
	}
	if assessment.Grouping == "" {
		assessment.Grouping = models.GroupByQuestion
	}

	if err := s.repo.Assessment().Create(ctx, nil, assessment); err != nil {
		return nil, fmt.Errorf("failed to create assessment: %w", err)
	}

	s.logger.Info("assessment created",
		"assessment_id", assessment.ID,
		"context", assessment.Context,
		"created_by", userID)
	return assessment, nil
}

func (s *DefaultAssessmentService) GetByID(ctx context.Context, userID string, id uint) (*models.Assessment, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "read"); err != nil {
		return nil, err
	}
	assessment, err := s.repo.Assessment().GetByIDWithParts(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	return assessment, nil
}

func (s *DefaultAssessmentService) List(ctx context.Context, userID string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, nil, "assessment", "list"); err != nil {
		return nil, 0, err
	}
	return s.repo.Assessment().List(ctx, nil, filters)
}

func (s *DefaultAssessmentService) Update(ctx context.Context, userID string, id uint, req *UpdateAssessmentRequest) (*models.Assessment, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "update"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	var updated *models.Assessment
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		assessment, err := txRepo.Assessment().GetByID(ctx, nil, id)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAssessmentNotFound
			}
			return err
		}

		structural := applyAssessmentUpdate(assessment, req)
		if err := txRepo.Assessment().Update(ctx, nil, assessment); err != nil {
			return fmt.Errorf("failed to update assessment: %w", err)
		}
		// Structural edits get a new version so in-progress submissions
		// keep reading their frozen snapshot.
		if structural {
			if err := txRepo.Assessment().BumpVersion(ctx, nil, id); err != nil {
				return err
			}
		}
		updated, err = txRepo.Assessment().GetByIDWithParts(ctx, nil, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("assessment updated", "assessment_id", id, "updated_by", userID)
	return updated, nil
}

func (s *DefaultAssessmentService) Delete(ctx context.Context, userID string, id uint) error {
	user, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "delete")
	if err != nil {
		return err
	}
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return err
	}
	if assessment.CreatedBy != userID && user.Role != models.RoleAdmin {
		return NewPermissionError(userID, id, "assessment", "delete", "only the creator or an admin may delete")
	}

	hasSubmissions, err := s.repo.Assessment().HasSubmissions(ctx, nil, id)
	if err != nil {
		return err
	}
	if hasSubmissions {
		return NewValidationError("assessment", "cannot delete an assessment with submissions", id)
	}

	if err := s.repo.Assessment().Delete(ctx, nil, id); err != nil {
		return fmt.Errorf("failed to delete assessment: %w", err)
	}
	s.logger.Info("assessment deleted", "assessment_id", id, "deleted_by", userID)
	return nil
}

// ===== STATUS =====

func (s *DefaultAssessmentService) Publish(ctx context.Context, userID string, id uint) error {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "publish"); err != nil {
		return err
	}
	assessment, err := s.repo.Assessment().GetByIDWithParts(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return err
	}

	poolCounts, err := s.drawPoolCounts(ctx, assessment)
	if err != nil {
		return err
	}
	if errs := s.validator.ValidatePublish(assessment, poolCounts); len(errs) > 0 {
		return errs
	}

	if err := s.repo.Assessment().UpdateStatus(ctx, nil, id, models.AssessmentPublished); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events.AssessmentPublished, events.AssessmentEvent{
		AssessmentID: id,
		Context:      assessment.Context,
		Title:        assessment.Title,
		ActorID:      userID,
	}); err != nil {
		s.logger.Error("failed to publish assessment event", "assessment_id", id, "error", err)
	}

	s.logger.Info("assessment published", "assessment_id", id, "published_by", userID)
	return nil
}

func (s *DefaultAssessmentService) Retract(ctx context.Context, userID string, id uint) error {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "retract"); err != nil {
		return err
	}
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return err
	}
	if assessment.Status != models.AssessmentPublished {
		return NewValidationError("status", "only a published assessment can be retracted", assessment.Status)
	}

	if err := s.repo.Assessment().UpdateStatus(ctx, nil, id, models.AssessmentDraft); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events.AssessmentRetracted, events.AssessmentEvent{
		AssessmentID: id,
		Context:      assessment.Context,
		Title:        assessment.Title,
		ActorID:      userID,
	}); err != nil {
		s.logger.Error("failed to publish assessment event", "assessment_id", id, "error", err)
	}

	s.logger.Info("assessment retracted", "assessment_id", id, "retracted_by", userID)
	return nil
}

func (s *DefaultAssessmentService) Archive(ctx context.Context, userID string, id uint) error {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "archive"); err != nil {
		return err
	}
	if err := s.repo.Assessment().UpdateStatus(ctx, nil, id, models.AssessmentArchived); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return err
	}
	s.logger.Info("assessment archived", "assessment_id", id, "archived_by", userID)
	return nil
}

// ===== PREVIEW AND STATS =====

// Preview composes the assessment with a stable per-part authoring seed, so
// authors see one representative draw rather than a reshuffle per request.
func (s *DefaultAssessmentService) Preview(ctx context.Context, userID string, id uint) (*SubmissionQuestions, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "preview"); err != nil {
		return nil, err
	}
	assessment, err := s.repo.Assessment().GetByIDWithParts(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}

	poolQuestions, err := poolQuestionSets(ctx, s.repo, assessment)
	if err != nil {
		return nil, err
	}
	snapshot, err := models.FreezeAssessment(assessment, poolQuestions)
	if err != nil {
		return nil, err
	}
	content, err := snapshot.Decode()
	if err != nil {
		return nil, err
	}

	composed, err := composeQuestions(ctx, s.repo, content, shuffle.AuthoringSeed, true, nil)
	if err != nil {
		return nil, err
	}
	composed.SubmissionID = 0
	return composed, nil
}

func (s *DefaultAssessmentService) GetStats(ctx context.Context, userID string, id uint) (*repositories.AssessmentStats, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, id, "assessment", "stats"); err != nil {
		return nil, err
	}
	return s.repo.Assessment().GetStats(ctx, nil, id)
}

// ===== INTERNAL =====

// applyAssessmentUpdate copies request fields onto the model and reports
// whether any snapshot-frozen field changed.
func applyAssessmentUpdate(a *models.Assessment, req *UpdateAssessmentRequest) bool {
	structural := false

	if req.Title != nil && *req.Title != a.Title {
		a.Title = *req.Title
		structural = true
	}
	if req.Presentation != nil {
		a.Presentation = req.Presentation
		structural = true
	}
	if req.TimeLimit != nil {
		a.TimeLimit = req.TimeLimit
		structural = true
	}
	if req.TriesAllowed != nil {
		a.TriesAllowed = req.TriesAllowed
		structural = true
	}
	if req.Grouping != nil && *req.Grouping != a.Grouping {
		a.Grouping = *req.Grouping
		structural = true
	}
	if req.SpecialAccess != nil {
		if raw, err := json.Marshal(req.SpecialAccess); err == nil {
			a.SpecialAccess = raw
			structural = true
		}
	}

	// Dates and policy settings apply live; bound submissions already hold
	// their own deadline.
	if req.OpenDate != nil {
		a.OpenDate = req.OpenDate
	}
	if req.DueDate != nil {
		a.DueDate = req.DueDate
	}
	if req.AcceptUntil != nil {
		a.AcceptUntilDate = req.AcceptUntil
	}
	if req.AutoRelease != nil {
		a.AutoRelease = *req.AutoRelease
	}
	if req.AnonymousGrading != nil {
		a.AnonymousGrading = *req.AnonymousGrading
	}
	if req.ReviewTiming != nil {
		a.ReviewTiming = *req.ReviewTiming
	}
	if req.ReviewDate != nil {
		a.ReviewDate = req.ReviewDate
	}
	if req.ReviewShowCorrect != nil {
		a.ReviewShowCorrect = *req.ReviewShowCorrect
	}

	return structural
}

// drawPoolCounts counts the questions in every pool any part draws from.
func (s *DefaultAssessmentService) drawPoolCounts(ctx context.Context, assessment *models.Assessment) (map[uint]int, error) {
	byPool, err := poolQuestionSets(ctx, s.repo, assessment)
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int, len(byPool))
	for poolID, ids := range byPool {
		counts[poolID] = len(ids)
	}
	return counts, nil
}
