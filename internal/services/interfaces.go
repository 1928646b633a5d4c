package services

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

// ===== REQUEST DTOS =====

type CreateAssessmentRequest struct {
	Title        string                  `json:"title" validate:"required,min=1,max=200"`
	Type         models.AssessmentType   `json:"type" validate:"omitempty,oneof=test assignment survey"`
	Context      string                  `json:"context" validate:"required,max=99"`
	Presentation *string                 `json:"presentation"`
	OpenDate     *time.Time              `json:"open_date"`
	DueDate      *time.Time              `json:"due_date"`
	AcceptUntil  *time.Time              `json:"accept_until_date"`
	TimeLimit    *int                    `json:"time_limit" validate:"omitempty,min=1"`
	TriesAllowed *int                    `json:"tries_allowed" validate:"omitempty,min=1"`
	Grouping     models.QuestionGrouping `json:"grouping" validate:"omitempty,oneof=question part test"`
}

type UpdateAssessmentRequest struct {
	Title             *string                  `json:"title" validate:"omitempty,min=1,max=200"`
	Presentation      *string                  `json:"presentation"`
	OpenDate          *time.Time               `json:"open_date"`
	DueDate           *time.Time               `json:"due_date"`
	AcceptUntil       *time.Time               `json:"accept_until_date"`
	TimeLimit         *int                     `json:"time_limit" validate:"omitempty,min=1"`
	TriesAllowed      *int                     `json:"tries_allowed" validate:"omitempty,min=1"`
	Grouping          *models.QuestionGrouping `json:"grouping" validate:"omitempty,oneof=question part test"`
	AutoRelease       *bool                    `json:"auto_release"`
	AnonymousGrading  *bool                    `json:"anonymous_grading"`
	ReviewTiming      *models.ReviewTiming     `json:"review_timing" validate:"omitempty,oneof=never graded submitted date"`
	ReviewDate        *time.Time               `json:"review_date"`
	ReviewShowCorrect *bool                    `json:"review_show_correct"`
	SpecialAccess     []models.SpecialAccess   `json:"special_access"`
}

type PickRequest struct {
	QuestionID uint  `json:"question_id" validate:"required"`
	PoolID     *uint `json:"pool_id"`
}

type DrawRequest struct {
	PoolID uint `json:"pool_id" validate:"required"`
	Count  int  `json:"count" validate:"required,min=1"`
}

type PartRequest struct {
	Kind         models.PartKind `json:"kind" validate:"required,oneof=manual draw"`
	Title        string          `json:"title" validate:"max=200"`
	Presentation *string         `json:"presentation"`
	Randomize    bool            `json:"randomize"`
	Picks        []PickRequest   `json:"picks" validate:"dive"`
	Draws        []DrawRequest   `json:"draws" validate:"dive"`
}

type CreatePoolRequest struct {
	Title       string                 `json:"title" validate:"required,min=1,max=200"`
	Description *string                `json:"description"`
	Points      float64                `json:"points" validate:"min=0"`
	Difficulty  models.DifficultyLevel `json:"difficulty" validate:"omitempty,min=1,max=5"`
	Context     string                 `json:"context" validate:"required,max=99"`
}

type UpdatePoolRequest struct {
	Title       *string                 `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string                 `json:"description"`
	Points      *float64                `json:"points" validate:"omitempty,min=0"`
	Difficulty  *models.DifficultyLevel `json:"difficulty" validate:"omitempty,min=1,max=5"`
}

type CreateQuestionRequest struct {
	Type         models.QuestionType `json:"type" validate:"required"`
	PoolID       uint                `json:"pool_id" validate:"required"`
	Presentation string              `json:"presentation" validate:"required"`
	Content      json.RawMessage     `json:"content" validate:"required"`
	IsSurvey     bool                `json:"is_survey"`
	Hints        *string             `json:"hints"`
	Feedback     *string             `json:"feedback"`
}

type UpdateQuestionRequest struct {
	Presentation *string         `json:"presentation" validate:"omitempty,min=1"`
	Content      json.RawMessage `json:"content"`
	IsSurvey     *bool           `json:"is_survey"`
	Hints        *string         `json:"hints"`
	Feedback     *string         `json:"feedback"`
}

type SaveAnswerRequest struct {
	QuestionID uint     `json:"question_id" validate:"required"`
	Data       []string `json:"data"`
}

type EvaluateAnswerRequest struct {
	Score       *float64 `json:"score"`
	Comment     *string  `json:"comment"`
	Attachments []string `json:"attachments"`
}

// ===== RESPONSE DTOS =====

// QuestionForDelivery is a question as a learner sees it: sanitized content,
// no hints about correctness, plus the authored answer (if any) for this
// submission.
type QuestionForDelivery struct {
	ID           uint                `json:"id"`
	Type         models.QuestionType `json:"type"`
	Presentation string              `json:"presentation"`
	Content      json.RawMessage     `json:"content"`
	Points       float64             `json:"points"`
	IsSurvey     bool                `json:"is_survey"`
	Hints        *string             `json:"hints,omitempty"`
	AnswerData   []string            `json:"answer_data,omitempty"`
}

// PartQuestions is one frozen part resolved into the concrete, ordered
// question list one submission sees.
type PartQuestions struct {
	PartID       uint                  `json:"part_id"`
	Title        string                `json:"title"`
	Presentation *string               `json:"presentation,omitempty"`
	Position     int                   `json:"position"`
	Questions    []QuestionForDelivery `json:"questions"`
}

// PartValidity reports whether a part can deliver as authored.
type PartValidity struct {
	PartID   uint     `json:"part_id"`
	Title    string   `json:"title"`
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
}

// SubmissionQuestions is the full delivery composition for a submission.
type SubmissionQuestions struct {
	SubmissionID uint                    `json:"submission_id"`
	Title        string                  `json:"title"`
	Grouping     models.QuestionGrouping `json:"grouping"`
	TimeLimit    *int                    `json:"time_limit,omitempty"`
	Deadline     *time.Time              `json:"deadline,omitempty"`
	Parts        []PartQuestions         `json:"parts"`
	TotalPoints  float64                 `json:"total_points"`
}

// ReviewAnswer is one answered question in a review: full authored content,
// the learner's response, and the scores.
type ReviewAnswer struct {
	QuestionID   uint                `json:"question_id"`
	Type         models.QuestionType `json:"type"`
	Presentation string              `json:"presentation"`
	Content      json.RawMessage     `json:"content,omitempty"`
	Points       float64             `json:"points"`
	Data         []string            `json:"data"`
	IsCorrect    *bool               `json:"is_correct,omitempty"`
	AutoScore    *float64            `json:"auto_score,omitempty"`
	EvalScore    *float64            `json:"eval_score,omitempty"`
	EvalComment  *string             `json:"eval_comment,omitempty"`
	Feedback     *string             `json:"feedback,omitempty"`
	TotalScore   float64             `json:"total_score"`
}

// SubmissionReview is the graded view of a completed submission.
type SubmissionReview struct {
	SubmissionID uint                    `json:"submission_id"`
	Status       models.SubmissionStatus `json:"status"`
	SubmittedAt  *time.Time              `json:"submitted_at"`
	TotalScore   float64                 `json:"total_score"`
	TotalPoints  float64                 `json:"total_points"`
	ShowCorrect  bool                    `json:"show_correct"`
	Answers      []ReviewAnswer          `json:"answers"`
}

// ===== SERVICE INTERFACES =====

// AssessmentService covers authoring and lifecycle of assessments.
type AssessmentService interface {
	Create(ctx context.Context, userID string, req *CreateAssessmentRequest) (*models.Assessment, error)
	GetByID(ctx context.Context, userID string, id uint) (*models.Assessment, error)
	List(ctx context.Context, userID string, filters repositories.AssessmentFilters) ([]*models.Assessment, int64, error)
	Update(ctx context.Context, userID string, id uint, req *UpdateAssessmentRequest) (*models.Assessment, error)
	Delete(ctx context.Context, userID string, id uint) error

	Publish(ctx context.Context, userID string, id uint) error
	Retract(ctx context.Context, userID string, id uint) error
	Archive(ctx context.Context, userID string, id uint) error

	AddPart(ctx context.Context, userID string, assessmentID uint, req *PartRequest) (*models.Part, error)
	UpdatePart(ctx context.Context, userID string, assessmentID, partID uint, req *PartRequest) (*models.Part, error)
	DeletePart(ctx context.Context, userID string, assessmentID, partID uint) error
	ReorderParts(ctx context.Context, userID string, assessmentID uint, partIDs []uint) error

	// Preview composes the assessment the way a submission would see it,
	// using a stable authoring seed instead of a submission seed.
	Preview(ctx context.Context, userID string, id uint) (*SubmissionQuestions, error)

	// GetPartQuestions lists a part's questions in authored order, never
	// shuffled. Draw parts list the full candidate pool per draw spec.
	GetPartQuestions(ctx context.Context, userID string, assessmentID, partID uint) (*PartQuestions, error)

	// GetValidity reports per-part composition problems (missing questions
	// or pools, draws bigger than their pool) as queryable state.
	GetValidity(ctx context.Context, userID string, id uint) ([]PartValidity, error)

	GetStats(ctx context.Context, userID string, id uint) (*repositories.AssessmentStats, error)
}

// PoolService covers question pool authoring.
type PoolService interface {
	Create(ctx context.Context, userID string, req *CreatePoolRequest) (*models.Pool, error)
	GetByID(ctx context.Context, userID string, id uint) (*models.Pool, error)
	List(ctx context.Context, userID string, filters repositories.PoolFilters) ([]*models.Pool, int64, error)
	Update(ctx context.Context, userID string, id uint, req *UpdatePoolRequest) (*models.Pool, error)
	Delete(ctx context.Context, userID string, id uint) error
	GetStats(ctx context.Context, userID string, id uint) (*repositories.PoolStats, error)
}

// QuestionService covers question authoring. Content is validated and
// interpreted by the question type's plugin.
type QuestionService interface {
	Create(ctx context.Context, userID string, req *CreateQuestionRequest) (*models.Question, error)
	GetByID(ctx context.Context, userID string, id uint) (*models.Question, error)
	List(ctx context.Context, userID string, filters repositories.QuestionFilters) ([]*models.Question, int64, error)
	Update(ctx context.Context, userID string, id uint, req *UpdateQuestionRequest) (*models.Question, error)
	Delete(ctx context.Context, userID string, id uint) error
	CopyToPool(ctx context.Context, userID string, questionID, poolID uint) (*models.Question, error)
}

// SubmissionService covers the delivery session from begin to completion.
type SubmissionService interface {
	Begin(ctx context.Context, userID string, assessmentID uint) (*models.Submission, error)
	GetByID(ctx context.Context, userID string, id uint) (*models.Submission, error)

	// GetQuestions resolves the submission's frozen composition: same
	// submission, same questions, same order, every time.
	GetQuestions(ctx context.Context, userID string, submissionID uint) (*SubmissionQuestions, error)

	SaveAnswer(ctx context.Context, userID string, submissionID uint, req *SaveAnswerRequest) (*models.Answer, error)
	Complete(ctx context.Context, userID string, submissionID uint) (*models.Submission, error)
	Review(ctx context.Context, userID string, submissionID uint) (*SubmissionReview, error)

	ListByAssessment(ctx context.Context, userID string, assessmentID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error)
	ListMine(ctx context.Context, userID string, assessmentID uint) ([]*models.Submission, error)

	// ExpireOverdue closes every in-progress submission whose deadline has
	// passed. Returns how many were closed.
	ExpireOverdue(ctx context.Context) (int, error)
}

// GradingService covers manual evaluation and score release.
type GradingService interface {
	EvaluateAnswer(ctx context.Context, userID string, submissionID, questionID uint, req *EvaluateAnswerRequest) (*models.Answer, error)
	GetPendingEvaluation(ctx context.Context, userID string, assessmentID uint) ([]*models.Answer, error)
	GetGradingStats(ctx context.Context, userID string, assessmentID uint) (*repositories.GradingStats, error)

	// Release makes grades visible to learners and reports the official
	// score per user to the gradebook.
	Release(ctx context.Context, userID string, assessmentID uint) (int, error)

	// ReScore re-runs automatic scoring for every completed submission of
	// the assessment against its bound snapshot.
	ReScore(ctx context.Context, userID string, assessmentID uint) (int, error)
}

// ExportService produces downloadable result artifacts.
type ExportService interface {
	// ExportResults writes an xlsx roster of completed submissions.
	ExportResults(ctx context.Context, userID string, assessmentID uint, w io.Writer) error
}

// ServiceManager aggregates all services behind one handle.
type ServiceManager interface {
	Assessment() AssessmentService
	Pool() PoolService
	Question() QuestionService
	Submission() SubmissionService
	Grading() GradingService
	Export() ExportService
}
