package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/qtype"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/shuffle"
)

// poolQuestionSets loads the question id set of every pool any part draws
// from, keyed by pool id.
func poolQuestionSets(ctx context.Context, repo repositories.Repository, assessment *models.Assessment) (map[uint][]uint, error) {
	byPool := make(map[uint][]uint)
	for _, part := range assessment.Parts {
		for _, draw := range part.Draws {
			if _, ok := byPool[draw.PoolID]; ok {
				continue
			}
			ids, err := repo.Pool().QuestionIDs(ctx, nil, draw.PoolID)
			if err != nil {
				return nil, fmt.Errorf("failed to load pool %d: %w", draw.PoolID, err)
			}
			byPool[draw.PoolID] = ids
		}
	}
	return byPool, nil
}

// resolvedPart pairs a frozen part with the concrete question ids one
// viewer sees in it, in delivery order.
type resolvedPart struct {
	part models.SnapshotPart
	ids  []uint
}

// resolveParts turns frozen snapshot content into per-part question id
// lists. seedFor supplies the per-part seed; the same seed always yields the
// same questions in the same order. authoring keeps manual parts in their
// authored order regardless of the randomize flag; draw parts still draw
// and shuffle, just with a stable seed.
func resolveParts(content *models.SnapshotContent, seedFor func(partID uint) int64, authoring bool) ([]resolvedPart, error) {
	parts := make([]models.SnapshotPart, len(content.Parts))
	copy(parts, content.Parts)
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Position < parts[j].Position })

	excludeByPool := make(map[uint]map[uint]bool)
	for poolID, picked := range content.ManualPicksByPool() {
		set := make(map[uint]bool, len(picked))
		for _, id := range picked {
			set[id] = true
		}
		excludeByPool[poolID] = set
	}

	// used keeps every delivered question distinct across draws, even when
	// two parts draw from the same pool.
	used := make(map[uint]bool)

	resolved := make([]resolvedPart, 0, len(parts))
	for _, part := range parts {
		seed := seedFor(part.ID)

		var ids []uint
		switch part.Kind {
		case models.PartManual:
			for _, pick := range part.Picks {
				ids = append(ids, pick.QuestionID)
			}
			if part.Randomize && !authoring {
				shuffle.Shuffle(seed, ids)
			}
		case models.PartDraw:
			for _, draw := range part.Draws {
				exclude := make(map[uint]bool, len(used)+len(excludeByPool[draw.PoolID]))
				for id := range used {
					exclude[id] = true
				}
				for id := range excludeByPool[draw.PoolID] {
					exclude[id] = true
				}
				drawn, err := shuffle.Draw(seed, draw.QuestionIDs, draw.Count, exclude)
				if err != nil {
					return nil, fmt.Errorf("failed to draw from pool %d for part %d: %w", draw.PoolID, part.ID, err)
				}
				for _, id := range drawn {
					used[id] = true
				}
				ids = append(ids, drawn...)
			}
			// The concatenated draws shuffle as one list, so questions
			// from different pools interleave per viewer.
			shuffle.Shuffle(seed, ids)
		}

		resolved = append(resolved, resolvedPart{part: part, ids: ids})
	}
	return resolved, nil
}

// partForQuestion reports which frozen part delivers the question, or zero
// when the question is not part of this composition.
func partForQuestion(content *models.SnapshotContent, seedFor func(partID uint) int64, questionID uint) (uint, error) {
	resolved, err := resolveParts(content, seedFor, false)
	if err != nil {
		return 0, err
	}
	for _, rp := range resolved {
		for _, id := range rp.ids {
			if id == questionID {
				return rp.part.ID, nil
			}
		}
	}
	return 0, nil
}

// composeQuestions resolves frozen snapshot content into the ordered
// question list one viewer sees. answers, when given, overlays each
// question with its saved response.
func composeQuestions(ctx context.Context, repo repositories.Repository, content *models.SnapshotContent, seedFor func(partID uint) int64, authoring bool, answers map[uint]*models.Answer) (*SubmissionQuestions, error) {
	resolved, err := resolveParts(content, seedFor, authoring)
	if err != nil {
		return nil, err
	}

	var allIDs []uint
	for _, rp := range resolved {
		allIDs = append(allIDs, rp.ids...)
	}

	questions, err := repo.Question().GetByIDs(ctx, nil, allIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	result := &SubmissionQuestions{
		Title:     content.Title,
		Grouping:  content.Grouping,
		TimeLimit: content.TimeLimit,
		Parts:     make([]PartQuestions, 0, len(resolved)),
	}

	for _, rp := range resolved {
		pq := PartQuestions{
			PartID:       rp.part.ID,
			Title:        rp.part.Title,
			Presentation: rp.part.Presentation,
			Position:     rp.part.Position,
			Questions:    make([]QuestionForDelivery, 0, len(rp.ids)),
		}
		for _, id := range rp.ids {
			q, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("question %d: %w", id, ErrQuestionNotFound)
			}
			delivered, err := deliveryView(q)
			if err != nil {
				return nil, err
			}
			if answers != nil {
				if a, ok := answers[q.ID]; ok {
					delivered.AnswerData = decodeAnswerData(a)
				}
			}
			pq.Questions = append(pq.Questions, *delivered)
			result.TotalPoints += q.Pool.Points
		}
		result.Parts = append(result.Parts, pq)
	}

	return result, nil
}

// deliveryView sanitizes a question for learner delivery through its
// type plugin.
func deliveryView(q *models.Question) (*QuestionForDelivery, error) {
	plugin, err := qtype.Get(q.Type)
	if err != nil {
		return nil, err
	}
	sanitized, err := plugin.Sanitize(json.RawMessage(q.Content))
	if err != nil {
		return nil, fmt.Errorf("failed to sanitize question %d: %w", q.ID, err)
	}
	return &QuestionForDelivery{
		ID:           q.ID,
		Type:         q.Type,
		Presentation: q.Presentation,
		Content:      sanitized,
		Points:       q.Pool.Points,
		IsSurvey:     q.IsSurvey,
		Hints:        q.Hints,
	}, nil
}

// snapshotTotalPoints totals the points a composition of the frozen content
// is worth. Pool points are uniform per pool, so the total is the same for
// every submission bound to the snapshot regardless of which questions were
// drawn.
func snapshotTotalPoints(ctx context.Context, repo repositories.Repository, content *models.SnapshotContent) (float64, error) {
	var pickIDs []uint
	for _, part := range content.Parts {
		for _, pick := range part.Picks {
			pickIDs = append(pickIDs, pick.QuestionID)
		}
	}

	total := 0.0
	if len(pickIDs) > 0 {
		questions, err := repo.Question().GetByIDs(ctx, nil, pickIDs)
		if err != nil {
			return 0, err
		}
		for _, q := range questions {
			total += q.Pool.Points
		}
	}

	poolPoints := make(map[uint]float64)
	for _, part := range content.Parts {
		for _, draw := range part.Draws {
			points, ok := poolPoints[draw.PoolID]
			if !ok {
				pool, err := repo.Pool().GetByID(ctx, nil, draw.PoolID)
				if err != nil {
					return 0, err
				}
				points = pool.Points
				poolPoints[draw.PoolID] = points
			}
			total += float64(draw.Count) * points
		}
	}
	return total, nil
}

// decodeAnswerData unpacks the stored response values.
func decodeAnswerData(a *models.Answer) []string {
	if len(a.Data) == 0 {
		return nil
	}
	var data []string
	if err := json.Unmarshal(a.Data, &data); err != nil {
		return nil
	}
	return data
}
