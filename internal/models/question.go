package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestionType is the plugin type tag. Dispatch to type-specific behavior
// always goes through the qtype registry, never through switches on concrete
// payload shapes.
type QuestionType string

const (
	TrueFalse      QuestionType = "true_false"
	MultipleChoice QuestionType = "multiple_choice"
	Matching       QuestionType = "matching"
	FillBlank      QuestionType = "fill_blank"
	Essay          QuestionType = "essay"
	LikertScale    QuestionType = "likert_scale"
)

type Question struct {
	ID           uint         `json:"id" gorm:"primaryKey"`
	Type         QuestionType `json:"type" gorm:"not null;index" validate:"required"`
	PoolID       uint         `json:"pool_id" gorm:"not null;index"`
	Presentation string       `json:"presentation" gorm:"type:text;not null" validate:"required"`

	// Type-specific payload, interpreted by the question's plugin.
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	// Survey questions carry no correctness and never auto-score.
	IsSurvey bool `json:"is_survey"`

	Hints    *string `json:"hints" gorm:"type:text"`
	Feedback *string `json:"feedback" gorm:"type:text"`

	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Pool Pool `json:"pool" gorm:"foreignKey:PoolID"`
}

func (Question) TableName() string {
	return "questions"
}

// ===== QUESTION CONTENT SCHEMAS =====

type TrueFalseContent struct {
	CorrectAnswer bool `json:"correct_answer"`
}

type MultipleChoiceContent struct {
	Options        []ChoiceOption `json:"options" validate:"min=2,max=10"`
	CorrectAnswers []string       `json:"correct_answers" validate:"min=1"`
	SingleSelect   bool           `json:"single_select"`
	ShuffleChoices bool           `json:"shuffle_choices"`
}

type ChoiceOption struct {
	ID   string `json:"id"`
	Text string `json:"text" validate:"required"`
}

type MatchingContent struct {
	Pairs []MatchPair `json:"pairs" validate:"min=2,max=10"`
	// Distractor choices that match nothing.
	Distractors []string `json:"distractors"`
}

type MatchPair struct {
	ID       string `json:"id"`
	Match    string `json:"match"`
	Choice   string `json:"choice"`
	ChoiceID string `json:"choice_id"`
}

type FillBlankContent struct {
	// Template with {} markers, one per blank: "The capital of {} is {}".
	Template      string     `json:"template"`
	Blanks        [][]string `json:"blanks"` // accepted answers per blank
	CaseSensitive bool       `json:"case_sensitive"`
	AnyOrder      bool       `json:"any_order"`
}

type EssayContent struct {
	// "inline", "attachments" or "both".
	SubmissionMode string  `json:"submission_mode"`
	ModelAnswer    *string `json:"model_answer"`
}

type LikertContent struct {
	// "agree", "rating", "yes_no" or "custom".
	Scale        string   `json:"scale"`
	CustomLabels []string `json:"custom_labels"`
}
