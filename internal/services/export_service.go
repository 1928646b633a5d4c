package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
)

// DefaultExportService implements ExportService.
type DefaultExportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) *DefaultExportService {
	return &DefaultExportService{repo: repo, logger: logger}
}

const timeLayout = "2006-01-02 15:04:05"

// ExportResults writes an xlsx roster of the assessment's completed
// submissions, one row per submission, ordered by user. With anonymous
// grading on, user identity columns are withheld.
func (s *DefaultExportService) ExportResults(ctx context.Context, userID string, assessmentID uint, w io.Writer) error {
	if _, err := requireEvaluator(ctx, s.repo, userID, assessmentID, "assessment", "export"); err != nil {
		return err
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return err
	}

	submissions, err := s.repo.Submission().GetCompletedByAssessment(ctx, nil, assessmentID)
	if err != nil {
		return err
	}

	users := make(map[string]*models.User)
	if !assessment.AnonymousGrading {
		ids := make([]string, 0, len(submissions))
		seen := make(map[string]bool)
		for _, submission := range submissions {
			if !seen[submission.UserID] {
				seen[submission.UserID] = true
				ids = append(ids, submission.UserID)
			}
		}
		resolved, err := s.repo.User().GetByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("failed to resolve users for export", "assessment_id", assessmentID, "error", err)
		}
		for _, u := range resolved {
			users[u.ID] = u
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Submission", "User", "Name", "Email", "Started", "Submitted", "Status", "End Reason", "Score"}
	if assessment.AnonymousGrading {
		headers = []string{"Submission", "Started", "Submitted", "Status", "End Reason", "Score"}
	}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
	}

	for row, submission := range submissions {
		values := exportRow(submission, users, assessment.AnonymousGrading)
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	s.logger.Info("results exported",
		"assessment_id", assessmentID,
		"submissions", len(submissions),
		"exported_by", userID)
	return nil
}

func exportRow(submission *models.Submission, users map[string]*models.User, anonymous bool) []interface{} {
	started, submitted := "", ""
	if submission.StartedAt != nil {
		started = submission.StartedAt.Format(timeLayout)
	}
	if submission.SubmittedAt != nil {
		submitted = submission.SubmittedAt.Format(timeLayout)
	}
	endReason := ""
	if submission.EndReason != nil {
		endReason = *submission.EndReason
	}

	if anonymous {
		return []interface{}{submission.ID, started, submitted, string(submission.Status), endReason, submission.TotalScore}
	}

	name, email := "", ""
	if u, ok := users[submission.UserID]; ok {
		name = u.DisplayName
		email = u.Email
	}
	return []interface{}{submission.ID, submission.UserID, name, email, started, submitted, string(submission.Status), endReason, submission.TotalScore}
}
