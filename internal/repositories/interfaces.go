package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sakai-mirror/mneme/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AssessmentFilters struct {
	Context   *string                  `json:"context"`
	Status    *models.AssessmentStatus `json:"status"`
	Type      *models.AssessmentType   `json:"type"`
	CreatedBy *string                  `json:"created_by"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "created_at", "title", "due_date"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

type PoolFilters struct {
	Context    *string                 `json:"context"`
	CreatedBy  *string                 `json:"created_by"`
	Difficulty *models.DifficultyLevel `json:"difficulty"`
	Title      *string                 `json:"title"`
	Limit      int                     `json:"limit"`
	Offset     int                     `json:"offset"`
	SortBy     string                  `json:"sort_by"`
	SortOrder  string                  `json:"sort_order"`
}

type QuestionFilters struct {
	PoolID    *uint                `json:"pool_id"`
	Type      *models.QuestionType `json:"type"`
	CreatedBy *string              `json:"created_by"`
	IsSurvey  *bool                `json:"is_survey"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`
	SortOrder string               `json:"sort_order"`
}

type SubmissionFilters struct {
	AssessmentID *uint                    `json:"assessment_id"`
	UserID       *string                  `json:"user_id"`
	Status       *models.SubmissionStatus `json:"status"`
	IsGraded     *bool                    `json:"is_graded"`
	DateFrom     *time.Time               `json:"date_from"`
	DateTo       *time.Time               `json:"date_to"`
	Limit        int                      `json:"limit"`
	Offset       int                      `json:"offset"`
	SortBy       string                   `json:"sort_by"`
	SortOrder    string                   `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

type AssessmentStats struct {
	TotalSubmissions     int     `json:"total_submissions"`
	CompletedSubmissions int     `json:"completed_submissions"`
	InProgress           int     `json:"in_progress"`
	AverageScore         float64 `json:"average_score"`
	HighestScore         float64 `json:"highest_score"`
	LowestScore          float64 `json:"lowest_score"`
}

type PoolStats struct {
	QuestionCount   int                         `json:"question_count"`
	QuestionsByType map[models.QuestionType]int `json:"questions_by_type"`
	DrawnBy         int                         `json:"drawn_by"` // parts drawing from this pool
}

type GradingStats struct {
	TotalAnswers   int `json:"total_answers"`
	AutoScored     int `json:"auto_scored"`
	Evaluated      int `json:"evaluated"`
	PendingAnswers int `json:"pending_answers"`
}

// ===== ENTITY REPOSITORIES =====

// AssessmentRepository covers authored assessments and their lifecycle.
type AssessmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	GetByIDWithParts(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters AssessmentFilters) ([]*models.Assessment, int64, error)
	GetByContext(ctx context.Context, tx *gorm.DB, context string, filters AssessmentFilters) ([]*models.Assessment, int64, error)

	// BumpVersion increments the structural version and raises the live
	// change marker in one statement.
	BumpVersion(ctx context.Context, tx *gorm.DB, id uint) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error

	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*AssessmentStats, error)
	HasSubmissions(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// PartRepository covers the ordered parts of an assessment and their picks
// and draw rules.
type PartRepository interface {
	Create(ctx context.Context, tx *gorm.DB, part *models.Part) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Part, error)
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Part, error)
	Update(ctx context.Context, tx *gorm.DB, part *models.Part) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	ReplacePicks(ctx context.Context, tx *gorm.DB, partID uint, picks []models.PartPick) error
	ReplaceDraws(ctx context.Context, tx *gorm.DB, partID uint, draws []models.PoolDrawSpec) error
	Reorder(ctx context.Context, tx *gorm.DB, assessmentID uint, partIDs []uint) error
}

// PoolRepository covers question pools.
type PoolRepository interface {
	Create(ctx context.Context, tx *gorm.DB, pool *models.Pool) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Pool, error)
	Update(ctx context.Context, tx *gorm.DB, pool *models.Pool) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters PoolFilters) ([]*models.Pool, int64, error)
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*PoolStats, error)

	// QuestionIDs returns every (non-deleted) question id in the pool.
	// Draws depend on this set, not on any ordering of it.
	QuestionIDs(ctx context.Context, tx *gorm.DB, poolID uint) ([]uint, error)
	IsDrawnBy(ctx context.Context, tx *gorm.DB, poolID uint) (bool, error)
}

// QuestionRepository covers authored questions.
type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
	CopyToPool(ctx context.Context, tx *gorm.DB, questionID, poolID uint, createdBy string) (*models.Question, error)
	IsUsedByParts(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// SnapshotRepository covers immutable assessment snapshots. Create must
// surface unique violations on (assessment_id, version) through
// IsDuplicateKeyError so concurrent writers can fall back to a re-read.
type SnapshotRepository interface {
	Create(ctx context.Context, tx *gorm.DB, snapshot *models.AssessmentSnapshot) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentSnapshot, error)
	GetByAssessmentVersion(ctx context.Context, tx *gorm.DB, assessmentID uint, version int) (*models.AssessmentSnapshot, error)
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.AssessmentSnapshot, error)
	HasReferences(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
}

// SubmissionRepository covers delivery sessions.
type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.Submission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error)
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error)
	Update(ctx context.Context, tx *gorm.DB, submission *models.Submission) error

	List(ctx context.Context, tx *gorm.DB, filters SubmissionFilters) ([]*models.Submission, int64, error)
	GetByUserAndAssessment(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) ([]*models.Submission, error)
	GetInProgress(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) (*models.Submission, error)
	CountByUserAndAssessment(ctx context.Context, tx *gorm.DB, userID string, assessmentID uint) (int64, error)

	// GetExpired returns in-progress submissions whose deadline passed
	// before the cutoff.
	GetExpired(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]*models.Submission, error)
	GetCompletedByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Submission, error)
}

// AnswerRepository covers per-question answers within a submission.
type AnswerRepository interface {
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	GetBySubmission(ctx context.Context, tx *gorm.DB, submissionID uint) ([]*models.Answer, error)
	GetBySubmissionAndQuestion(ctx context.Context, tx *gorm.DB, submissionID, questionID uint) (*models.Answer, error)
	Update(ctx context.Context, tx *gorm.DB, answer *models.Answer) error

	GetPendingEvaluation(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Answer, error)
	GetGradingStats(ctx context.Context, tx *gorm.DB, assessmentID uint) (*GradingStats, error)
}

// UserFilters defines filters for user queries.
type UserFilters struct {
	Query  string // name or email
	Limit  int
	Offset int
}

// UserRepository is read-only; user data is owned by the identity provider.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	List(ctx context.Context, filters UserFilters) ([]*models.User, int64, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
