package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssessmentStatus string

const (
	AssessmentDraft     AssessmentStatus = "draft"
	AssessmentPublished AssessmentStatus = "published"
	AssessmentArchived  AssessmentStatus = "archived"
)

type AssessmentType string

const (
	TypeTest       AssessmentType = "test"
	TypeAssignment AssessmentType = "assignment"
	TypeSurvey     AssessmentType = "survey"
)

type QuestionGrouping string

const (
	GroupByQuestion QuestionGrouping = "question"
	GroupByPart     QuestionGrouping = "part"
	GroupByTest     QuestionGrouping = "test"
)

type ReviewTiming string

const (
	ReviewNever     ReviewTiming = "never"
	ReviewGraded    ReviewTiming = "graded"
	ReviewSubmitted ReviewTiming = "submitted"
	ReviewDate      ReviewTiming = "date"
)

// Assessment is the live, always-current record. Structural content (parts,
// picks, draws, time limit, grouping, access rules) is additionally frozen
// into an AssessmentSnapshot the first time a submission needs it; see
// AssessmentSnapshot and SubmissionService.Begin.
type Assessment struct {
	ID      uint             `json:"id" gorm:"primaryKey"`
	Title   string           `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Type    AssessmentType   `json:"type" gorm:"default:test;index" validate:"omitempty,oneof=test assignment survey"`
	Status  AssessmentStatus `json:"status" gorm:"default:draft;index" validate:"omitempty,oneof=draft published archived"`
	Context string           `json:"context" gorm:"not null;index;size:99"` // owning course/site

	// Dates
	OpenDate        *time.Time `json:"open_date"`
	DueDate         *time.Time `json:"due_date"`
	AcceptUntilDate *time.Time `json:"accept_until_date"`

	// Delivery settings (structural: frozen into snapshots)
	TimeLimit    *int             `json:"time_limit"` // seconds
	TriesAllowed *int             `json:"tries_allowed" validate:"omitempty,min=1"`
	Grouping     QuestionGrouping `json:"grouping" gorm:"default:question"`
	Presentation *string          `json:"presentation" gorm:"type:text"`

	// Grading policy
	AutoRelease      bool `json:"auto_release" gorm:"default:true"`
	AnonymousGrading bool `json:"anonymous_grading"`

	// Review policy (non-structural: applies live, even to bound submissions)
	ReviewTiming      ReviewTiming `json:"review_timing" gorm:"default:graded"`
	ReviewDate        *time.Time   `json:"review_date"`
	ReviewShowCorrect bool         `json:"review_show_correct" gorm:"default:true"`

	// Per-user overrides of dates / time limit / tries ([]SpecialAccess)
	SpecialAccess datatypes.JSON `json:"special_access" gorm:"type:jsonb"`

	// Version control for snapshot isolation: Version increments on every
	// structural edit; LiveChanged marks that the live content has diverged
	// from the latest snapshot.
	Version     int  `json:"version" gorm:"default:1"`
	LiveChanged bool `json:"live_changed"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Parts []Part `json:"parts" gorm:"foreignKey:AssessmentID"`

	// Computed fields (not stored)
	TotalPoints     float64 `json:"total_points" gorm:"-"`
	SubmissionCount int     `json:"submission_count" gorm:"-"`
	IsValid         bool    `json:"is_valid" gorm:"-"`
}

// SpecialAccess overrides dates and limits for a single user.
type SpecialAccess struct {
	UserID          string     `json:"user_id"`
	OpenDate        *time.Time `json:"open_date"`
	DueDate         *time.Time `json:"due_date"`
	AcceptUntilDate *time.Time `json:"accept_until_date"`
	TimeLimit       *int       `json:"time_limit"`
	TriesAllowed    *int       `json:"tries_allowed"`
}

func (Assessment) TableName() string {
	return "assessments"
}

// DatesFor resolves the effective dates and limits for a user, applying any
// special access override.
func (a *Assessment) DatesFor(userID string, overrides []SpecialAccess) (open, due, acceptUntil *time.Time, timeLimit, tries *int) {
	open, due, acceptUntil = a.OpenDate, a.DueDate, a.AcceptUntilDate
	timeLimit, tries = a.TimeLimit, a.TriesAllowed
	for _, sa := range overrides {
		if sa.UserID != userID {
			continue
		}
		if sa.OpenDate != nil {
			open = sa.OpenDate
		}
		if sa.DueDate != nil {
			due = sa.DueDate
		}
		if sa.AcceptUntilDate != nil {
			acceptUntil = sa.AcceptUntilDate
		}
		if sa.TimeLimit != nil {
			timeLimit = sa.TimeLimit
		}
		if sa.TriesAllowed != nil {
			tries = sa.TriesAllowed
		}
		break
	}
	return
}
