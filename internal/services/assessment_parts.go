package services

import (
	"context"
	"fmt"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

// ===== PART MANAGEMENT =====

// Every part edit is structural and bumps the assessment version inside the
// same transaction.

func (s *DefaultAssessmentService) AddPart(ctx context.Context, userID string, assessmentID uint, req *PartRequest) (*models.Part, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, assessmentID, "assessment", "edit_parts"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	if err := validatePartKind(req); err != nil {
		return nil, err
	}

	var part *models.Part
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		assessment, err := txRepo.Assessment().GetByID(ctx, nil, assessmentID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAssessmentNotFound
			}
			return err
		}

		existing, err := txRepo.Part().GetByAssessment(ctx, nil, assessmentID)
		if err != nil {
			return err
		}

		part = &models.Part{
			AssessmentID: assessment.ID,
			Kind:         req.Kind,
			Title:        req.Title,
			Presentation: req.Presentation,
			Randomize:    req.Randomize,
			Position:     len(existing),
		}
		if err := txRepo.Part().Create(ctx, nil, part); err != nil {
			return fmt.Errorf("failed to create part: %w", err)
		}
		if err := s.replacePartContent(ctx, txRepo, part.ID, req); err != nil {
			return err
		}
		return txRepo.Assessment().BumpVersion(ctx, nil, assessmentID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("part added",
		"assessment_id", assessmentID,
		"part_id", part.ID,
		"kind", part.Kind,
		"added_by", userID)
	return part, nil
}

func (s *DefaultAssessmentService) UpdatePart(ctx context.Context, userID string, assessmentID, partID uint, req *PartRequest) (*models.Part, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, assessmentID, "assessment", "edit_parts"); err != nil {
		return nil, err
	}
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}
	if err := validatePartKind(req); err != nil {
		return nil, err
	}

	var part *models.Part
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		var err error
		part, err = txRepo.Part().GetByID(ctx, nil, partID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrPartNotFound
			}
			return err
		}
		if part.AssessmentID != assessmentID {
			return ErrPartNotFound
		}

		part.Kind = req.Kind
		part.Title = req.Title
		part.Presentation = req.Presentation
		part.Randomize = req.Randomize
		if err := txRepo.Part().Update(ctx, nil, part); err != nil {
			return fmt.Errorf("failed to update part: %w", err)
		}
		if err := s.replacePartContent(ctx, txRepo, part.ID, req); err != nil {
			return err
		}
		return txRepo.Assessment().BumpVersion(ctx, nil, assessmentID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("part updated", "assessment_id", assessmentID, "part_id", partID, "updated_by", userID)
	return part, nil
}

func (s *DefaultAssessmentService) DeletePart(ctx context.Context, userID string, assessmentID, partID uint) error {
	if _, err := requireAuthor(ctx, s.repo, userID, assessmentID, "assessment", "edit_parts"); err != nil {
		return err
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		part, err := txRepo.Part().GetByID(ctx, nil, partID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrPartNotFound
			}
			return err
		}
		if part.AssessmentID != assessmentID {
			return ErrPartNotFound
		}
		if err := txRepo.Part().Delete(ctx, nil, partID); err != nil {
			return fmt.Errorf("failed to delete part: %w", err)
		}
		return txRepo.Assessment().BumpVersion(ctx, nil, assessmentID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("part deleted", "assessment_id", assessmentID, "part_id", partID, "deleted_by", userID)
	return nil
}

func (s *DefaultAssessmentService) ReorderParts(ctx context.Context, userID string, assessmentID uint, partIDs []uint) error {
	if _, err := requireAuthor(ctx, s.repo, userID, assessmentID, "assessment", "edit_parts"); err != nil {
		return err
	}
	if len(partIDs) == 0 {
		return NewValidationError("part_ids", "part order must not be empty", nil)
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		existing, err := txRepo.Part().GetByAssessment(ctx, nil, assessmentID)
		if err != nil {
			return err
		}
		if len(existing) != len(partIDs) {
			return NewValidationError("part_ids", "part order must name every part exactly once", partIDs)
		}
		known := make(map[uint]bool, len(existing))
		for _, part := range existing {
			known[part.ID] = true
		}
		for _, id := range partIDs {
			if !known[id] {
				return NewValidationError("part_ids", "unknown part id", id)
			}
		}

		if err := txRepo.Part().Reorder(ctx, nil, assessmentID, partIDs); err != nil {
			return fmt.Errorf("failed to reorder parts: %w", err)
		}
		return txRepo.Assessment().BumpVersion(ctx, nil, assessmentID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("parts reordered", "assessment_id", assessmentID, "reordered_by", userID)
	return nil
}

// ===== INTERNAL =====

func validatePartKind(req *PartRequest) error {
	switch req.Kind {
	case models.PartManual:
		if len(req.Draws) > 0 {
			return NewValidationError("draws", "manual parts cannot carry draw rules", nil)
		}
	case models.PartDraw:
		if len(req.Picks) > 0 {
			return NewValidationError("picks", "draw parts cannot carry manual picks", nil)
		}
	}
	return nil
}

// replacePartContent swaps a part's picks or draws with the request's,
// verifying every referenced question and pool exists.
func (s *DefaultAssessmentService) replacePartContent(ctx context.Context, txRepo repositories.Repository, partID uint, req *PartRequest) error {
	switch req.Kind {
	case models.PartManual:
		picks := make([]models.PartPick, 0, len(req.Picks))
		for _, p := range req.Picks {
			if _, err := txRepo.Question().GetByID(ctx, nil, p.QuestionID); err != nil {
				if repositories.IsNotFoundError(err) {
					return NewValidationError("picks", "question does not exist", p.QuestionID)
				}
				return err
			}
			picks = append(picks, models.PartPick{QuestionID: p.QuestionID, PoolID: p.PoolID})
		}
		return txRepo.Part().ReplacePicks(ctx, nil, partID, picks)

	case models.PartDraw:
		draws := make([]models.PoolDrawSpec, 0, len(req.Draws))
		for _, d := range req.Draws {
			if _, err := txRepo.Pool().GetByID(ctx, nil, d.PoolID); err != nil {
				if repositories.IsNotFoundError(err) {
					return NewValidationError("draws", "pool does not exist", d.PoolID)
				}
				return err
			}
			draws = append(draws, models.PoolDrawSpec{PoolID: d.PoolID, Count: d.Count})
		}
		return txRepo.Part().ReplaceDraws(ctx, nil, partID, draws)
	}
	return nil
}
