package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

// ===== AUTHORED VIEW =====

// GetPartQuestions lists a part's questions the way the author arranged
// them. Manual parts follow pick position; draw parts list every candidate
// of each draw spec in ascending id order. Nothing is shuffled.
func (s *DefaultAssessmentService) GetPartQuestions(ctx context.Context, userID string, assessmentID, partID uint) (*PartQuestions, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, assessmentID, "assessment", "view_part"); err != nil {
		return nil, err
	}
	part, err := s.findPart(ctx, assessmentID, partID)
	if err != nil {
		return nil, err
	}

	ids, err := s.authoredQuestionIDs(ctx, part)
	if err != nil {
		return nil, err
	}

	result := &PartQuestions{
		PartID:       part.ID,
		Title:        part.Title,
		Presentation: part.Presentation,
		Position:     part.Position,
		Questions:    make([]QuestionForDelivery, 0, len(ids)),
	}
	if len(ids) == 0 {
		return result, nil
	}

	questions, err := s.repo.Question().GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load part questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("question %d: %w", id, ErrQuestionNotFound)
		}
		result.Questions = append(result.Questions, *authorView(q))
	}
	return result, nil
}

// GetValidity checks every part's composition and reports problems without
// failing. An assessment with invalid parts can still be edited, just not
// published.
func (s *DefaultAssessmentService) GetValidity(ctx context.Context, userID string, id uint) ([]PartValidity, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "assessment", "validate"); err != nil {
		return nil, err
	}
	assessment, err := s.repo.Assessment().GetByIDWithParts(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}

	parts := make([]models.Part, len(assessment.Parts))
	copy(parts, assessment.Parts)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Position < parts[j].Position })

	result := make([]PartValidity, 0, len(parts))
	for i := range parts {
		part := &parts[i]
		validity := PartValidity{PartID: part.ID, Title: part.Title}
		validity.Problems = append(validity.Problems, s.pickProblems(ctx, part)...)
		validity.Problems = append(validity.Problems, s.drawProblems(ctx, part)...)
		validity.Valid = len(validity.Problems) == 0
		result = append(result, validity)
	}
	return result, nil
}

// ===== INTERNAL =====

func (s *DefaultAssessmentService) findPart(ctx context.Context, assessmentID, partID uint) (*models.Part, error) {
	assessment, err := s.repo.Assessment().GetByIDWithParts(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}
	for i := range assessment.Parts {
		if assessment.Parts[i].ID == partID {
			return &assessment.Parts[i], nil
		}
	}
	return nil, ErrPartNotFound
}

func (s *DefaultAssessmentService) authoredQuestionIDs(ctx context.Context, part *models.Part) ([]uint, error) {
	if part.Kind == models.PartManual {
		picks := make([]models.PartPick, len(part.Picks))
		copy(picks, part.Picks)
		sort.SliceStable(picks, func(i, j int) bool { return picks[i].Position < picks[j].Position })

		ids := make([]uint, 0, len(picks))
		for _, pick := range picks {
			ids = append(ids, pick.QuestionID)
		}
		return ids, nil
	}

	draws := make([]models.PoolDrawSpec, len(part.Draws))
	copy(draws, part.Draws)
	sort.SliceStable(draws, func(i, j int) bool { return draws[i].Position < draws[j].Position })

	var ids []uint
	for _, draw := range draws {
		poolIDs, err := s.repo.Pool().QuestionIDs(ctx, nil, draw.PoolID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pool %d: %w", draw.PoolID, err)
		}
		sort.Slice(poolIDs, func(i, j int) bool { return poolIDs[i] < poolIDs[j] })
		ids = append(ids, poolIDs...)
	}
	return ids, nil
}

func (s *DefaultAssessmentService) pickProblems(ctx context.Context, part *models.Part) []string {
	if len(part.Picks) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(part.Picks))
	for _, pick := range part.Picks {
		ids = append(ids, pick.QuestionID)
	}
	questions, err := s.repo.Question().GetByIDs(ctx, nil, ids)
	if err != nil {
		return []string{fmt.Sprintf("failed to check questions: %v", err)}
	}
	found := make(map[uint]bool, len(questions))
	for _, q := range questions {
		found[q.ID] = true
	}

	var problems []string
	for _, id := range ids {
		if !found[id] {
			problems = append(problems, fmt.Sprintf("question %d no longer exists", id))
		}
	}
	return problems
}

func (s *DefaultAssessmentService) drawProblems(ctx context.Context, part *models.Part) []string {
	var problems []string
	for _, draw := range part.Draws {
		if _, err := s.repo.Pool().GetByID(ctx, nil, draw.PoolID); err != nil {
			if repositories.IsNotFoundError(err) {
				problems = append(problems, fmt.Sprintf("pool %d no longer exists", draw.PoolID))
				continue
			}
			problems = append(problems, fmt.Sprintf("failed to check pool %d: %v", draw.PoolID, err))
			continue
		}
		ids, err := s.repo.Pool().QuestionIDs(ctx, nil, draw.PoolID)
		if err != nil {
			problems = append(problems, fmt.Sprintf("failed to check pool %d: %v", draw.PoolID, err))
			continue
		}
		if len(ids) < draw.Count {
			problems = append(problems, fmt.Sprintf("draw of %d exceeds pool %d size %d", draw.Count, draw.PoolID, len(ids)))
		}
	}
	return problems
}

// authorView keeps the full question content; authors see correct answers.
func authorView(q *models.Question) *QuestionForDelivery {
	return &QuestionForDelivery{
		ID:           q.ID,
		Type:         q.Type,
		Presentation: q.Presentation,
		Content:      json.RawMessage(q.Content),
		Points:       q.Pool.Points,
		IsSurvey:     q.IsSurvey,
		Hints:        q.Hints,
	}
}
