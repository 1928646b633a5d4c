package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// AssessmentSnapshot is the frozen historical record of an assessment's
// structural content, captured at one live version. Submissions bind to a
// snapshot id, never to the live parts, so later edits cannot change what an
// existing submission sees. Rows are immutable once written; the unique index
// on (assessment_id, version) is the compare-and-swap guard against two
// concurrent writers creating divergent snapshots for the same version.
type AssessmentSnapshot struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	AssessmentID uint           `json:"assessment_id" gorm:"not null;uniqueIndex:idx_snapshot_assessment_version"`
	Version      int            `json:"version" gorm:"not null;uniqueIndex:idx_snapshot_assessment_version"`
	Content      datatypes.JSON `json:"content" gorm:"type:jsonb;not null"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SnapshotContent is the frozen structural content: everything that
// determines question identity, order and scoring eligibility.
type SnapshotContent struct {
	Title         string           `json:"title"`
	Presentation  *string          `json:"presentation"`
	TimeLimit     *int             `json:"time_limit"`
	TriesAllowed  *int             `json:"tries_allowed"`
	Grouping      QuestionGrouping `json:"grouping"`
	SpecialAccess []SpecialAccess  `json:"special_access"`
	Parts         []SnapshotPart   `json:"parts"`
}

type SnapshotPart struct {
	ID           uint           `json:"id"`
	Kind         PartKind       `json:"kind"`
	Title        string         `json:"title"`
	Presentation *string        `json:"presentation"`
	Position     int            `json:"position"`
	Randomize    bool           `json:"randomize"`
	Picks        []SnapshotPick `json:"picks,omitempty"`
	Draws        []SnapshotDraw `json:"draws,omitempty"`
}

type SnapshotPick struct {
	QuestionID uint  `json:"question_id"`
	PoolID     *uint `json:"pool_id,omitempty"`
}

// SnapshotDraw freezes a draw rule together with the pool's question id
// set at freeze time, so later pool edits cannot shift what a bound
// submission draws.
type SnapshotDraw struct {
	PoolID      uint   `json:"pool_id"`
	Count       int    `json:"count"`
	QuestionIDs []uint `json:"question_ids"`
}

func (AssessmentSnapshot) TableName() string {
	return "assessment_snapshots"
}

// FreezeAssessment deep-copies the live structural graph into snapshot form.
// Parts, picks and draws are copied by value in position order.
// poolQuestions maps each drawn pool to its current question id set; the
// set is frozen into the snapshot alongside the rule.
func FreezeAssessment(a *Assessment, poolQuestions map[uint][]uint) (*AssessmentSnapshot, error) {
	content := SnapshotContent{
		Title:        a.Title,
		Presentation: a.Presentation,
		TimeLimit:    a.TimeLimit,
		TriesAllowed: a.TriesAllowed,
		Grouping:     a.Grouping,
	}

	if len(a.SpecialAccess) > 0 {
		if err := json.Unmarshal(a.SpecialAccess, &content.SpecialAccess); err != nil {
			return nil, fmt.Errorf("failed to decode special access: %w", err)
		}
	}

	content.Parts = make([]SnapshotPart, len(a.Parts))
	for i, part := range a.Parts {
		sp := SnapshotPart{
			ID:           part.ID,
			Kind:         part.Kind,
			Title:        part.Title,
			Presentation: part.Presentation,
			Position:     part.Position,
			Randomize:    part.Randomize,
		}
		for _, pick := range part.Picks {
			sp.Picks = append(sp.Picks, SnapshotPick{QuestionID: pick.QuestionID, PoolID: pick.PoolID})
		}
		for _, draw := range part.Draws {
			ids := append([]uint(nil), poolQuestions[draw.PoolID]...)
			sp.Draws = append(sp.Draws, SnapshotDraw{PoolID: draw.PoolID, Count: draw.Count, QuestionIDs: ids})
		}
		content.Parts[i] = sp
	}

	raw, err := json.Marshal(&content)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot content: %w", err)
	}

	return &AssessmentSnapshot{
		AssessmentID: a.ID,
		Version:      a.Version,
		Content:      raw,
	}, nil
}

// Decode unpacks the frozen content.
func (s *AssessmentSnapshot) Decode() (*SnapshotContent, error) {
	var content SnapshotContent
	if err := json.Unmarshal(s.Content, &content); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot content: %w", err)
	}
	return &content, nil
}

// Part finds a frozen part by id.
func (c *SnapshotContent) Part(partID uint) *SnapshotPart {
	for i := range c.Parts {
		if c.Parts[i].ID == partID {
			return &c.Parts[i]
		}
	}
	return nil
}

// ManualPicksByPool collects, per pool, the question ids manually picked
// anywhere in the assessment. Draw parts exclude these from their draws.
func (c *SnapshotContent) ManualPicksByPool() map[uint][]uint {
	byPool := make(map[uint][]uint)
	for _, part := range c.Parts {
		if part.Kind != PartManual {
			continue
		}
		for _, pick := range part.Picks {
			if pick.PoolID != nil {
				byPool[*pick.PoolID] = append(byPool[*pick.PoolID], pick.QuestionID)
			}
		}
	}
	return byPool
}
