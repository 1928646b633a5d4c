package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionComplete   SubmissionStatus = "complete"
	SubmissionReleased   SubmissionStatus = "released"
)

const SubmissionEndReasonTimeout = "time_out"

// Submission is one user's attempt against an assessment. It references both
// the live assessment id and the frozen snapshot it was delivered from; all
// question composition for the submission reads through the snapshot.
type Submission struct {
	ID           uint             `json:"id" gorm:"primaryKey"`
	AssessmentID uint             `json:"assessment_id" gorm:"not null;index"`
	SnapshotID   uint             `json:"snapshot_id" gorm:"not null;index"`
	UserID       string           `json:"user_id" gorm:"not null;index;size:255"`
	Status       SubmissionStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	Deadline    *time.Time `json:"deadline"`
	EndReason   *string    `json:"end_reason" gorm:"size:50"`

	// Scoring
	TotalScore float64 `json:"total_score"`
	IsGraded   bool    `json:"is_graded"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Assessment Assessment          `json:"assessment" gorm:"foreignKey:AssessmentID"`
	Snapshot   *AssessmentSnapshot `json:"snapshot,omitempty" gorm:"foreignKey:SnapshotID"`
	Answers    []Answer            `json:"answers" gorm:"foreignKey:SubmissionID"`
}

// Answer is the response to one question within a submission. Data holds the
// flat string-array serialization produced by the question type's plugin.
type Answer struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;index;uniqueIndex:idx_answer_submission_question"`
	PartID       uint `json:"part_id" gorm:"not null;index"`
	QuestionID   uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_answer_submission_question"`

	Data datatypes.JSON `json:"data" gorm:"type:jsonb"`

	// AutoScore is nil until the answer has been auto-scored; unanswered and
	// manual-only (essay) answers keep it nil.
	AutoScore *float64 `json:"auto_score"`

	Evaluation Evaluation `json:"evaluation" gorm:"embedded;embeddedPrefix:eval_"`

	AnsweredAt *time.Time `json:"answered_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Relations
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

// Evaluation is the manual score/comment layered on top of auto-scoring.
// Score, when set, is added to the auto score, never substituted for it.
type Evaluation struct {
	Score       *float64       `json:"score"`
	Comment     *string        `json:"comment" gorm:"type:text"`
	Attachments datatypes.JSON `json:"attachments" gorm:"type:jsonb"` // []string attachment refs
	EvaluatedBy *string        `json:"evaluated_by" gorm:"size:255"`
	EvaluatedAt *time.Time     `json:"evaluated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (Answer) TableName() string {
	return "submission_answers"
}

// TotalScore combines the auto score with the manual evaluation. A nil auto
// score counts as zero so an evaluation-only answer (essay) still scores.
func (a *Answer) TotalScore() float64 {
	total := 0.0
	if a.AutoScore != nil {
		total += *a.AutoScore
	}
	if a.Evaluation.Score != nil {
		total += *a.Evaluation.Score
	}
	return total
}

// IsEvaluated reports whether a manual evaluation has been recorded.
func (a *Answer) IsEvaluated() bool {
	return a.Evaluation.Score != nil || a.Evaluation.Comment != nil
}
