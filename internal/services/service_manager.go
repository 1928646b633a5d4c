package services

import (
	"log/slog"

	"github.com/sakai-mirror/mneme/internal/events"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// DefaultServiceManager wires every service over one repository handle.
type DefaultServiceManager struct {
	assessment AssessmentService
	pool       PoolService
	question   QuestionService
	submission SubmissionService
	grading    GradingService
	export     ExportService
}

func NewDefaultServiceManager(repo repositories.Repository, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) *DefaultServiceManager {
	return &DefaultServiceManager{
		assessment: NewAssessmentService(repo, logger, v, publisher),
		pool:       NewPoolService(repo, logger, v),
		question:   NewQuestionService(repo, logger, v),
		submission: NewSubmissionService(repo, logger, v, publisher),
		grading:    NewGradingService(repo, logger, v, publisher),
		export:     NewExportService(repo, logger),
	}
}

func (m *DefaultServiceManager) Assessment() AssessmentService { return m.assessment }
func (m *DefaultServiceManager) Pool() PoolService             { return m.pool }
func (m *DefaultServiceManager) Question() QuestionService     { return m.question }
func (m *DefaultServiceManager) Submission() SubmissionService { return m.submission }
func (m *DefaultServiceManager) Grading() GradingService       { return m.grading }
func (m *DefaultServiceManager) Export() ExportService         { return m.export }
