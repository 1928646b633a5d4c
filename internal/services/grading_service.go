package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakai-mirror/mneme/internal/events"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// DefaultGradingService implements GradingService.
type DefaultGradingService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewGradingService(repo repositories.Repository, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) *DefaultGradingService {
	return &DefaultGradingService{
		repo:      repo,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== EVALUATION =====

// EvaluateAnswer records a manual score and comment on one answer. The
// manual score adds to the auto score, it never replaces it.
func (s *DefaultGradingService) EvaluateAnswer(ctx context.Context, userID string, submissionID, questionID uint, req *EvaluateAnswerRequest) (*models.Answer, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, submissionID, "submission", "evaluate"); err != nil {
		return nil, err
	}

	var answer *models.Answer
	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		submission, err := txRepo.Submission().GetByID(ctx, nil, submissionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrSubmissionNotFound
			}
			return err
		}
		if submission.Status == models.SubmissionInProgress {
			return ErrSubmissionNotComplete
		}

		answer, err = txRepo.Answer().GetBySubmissionAndQuestion(ctx, nil, submissionID, questionID)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrAnswerNotFound
			}
			return err
		}

		now := time.Now()
		answer.Evaluation.Score = req.Score
		answer.Evaluation.Comment = req.Comment
		answer.Evaluation.EvaluatedBy = &userID
		answer.Evaluation.EvaluatedAt = &now
		if req.Attachments != nil {
			raw, err := json.Marshal(req.Attachments)
			if err != nil {
				return fmt.Errorf("failed to encode attachments: %w", err)
			}
			answer.Evaluation.Attachments = raw
		}
		if err := txRepo.Answer().Update(ctx, nil, answer); err != nil {
			return fmt.Errorf("failed to update answer: %w", err)
		}

		return recomputeTotal(ctx, txRepo, submission)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("answer evaluated",
		"submission_id", submissionID,
		"question_id", questionID,
		"evaluated_by", userID)
	return answer, nil
}

func (s *DefaultGradingService) GetPendingEvaluation(ctx context.Context, userID string, assessmentID uint) ([]*models.Answer, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, assessmentID, "assessment", "grade"); err != nil {
		return nil, err
	}
	return s.repo.Answer().GetPendingEvaluation(ctx, nil, assessmentID)
}

func (s *DefaultGradingService) GetGradingStats(ctx context.Context, userID string, assessmentID uint) (*repositories.GradingStats, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, assessmentID, "assessment", "grade"); err != nil {
		return nil, err
	}
	return s.repo.Answer().GetGradingStats(ctx, nil, assessmentID)
}

// ===== RELEASE =====

// Release marks every completed submission of the assessment released and
// reports one official score per user to the gradebook.
func (s *DefaultGradingService) Release(ctx context.Context, userID string, assessmentID uint) (int, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, assessmentID, "assessment", "release"); err != nil {
		return 0, err
	}
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return 0, ErrAssessmentNotFound
		}
		return 0, err
	}

	submissions, err := s.repo.Submission().GetCompletedByAssessment(ctx, nil, assessmentID)
	if err != nil {
		return 0, err
	}

	released := 0
	users := make(map[string]bool)
	for _, submission := range submissions {
		users[submission.UserID] = true
		if submission.Status == models.SubmissionReleased {
			continue
		}
		submission.Status = models.SubmissionReleased
		submission.IsGraded = true
		if err := s.repo.Submission().Update(ctx, nil, submission); err != nil {
			return released, fmt.Errorf("failed to release submission %d: %w", submission.ID, err)
		}
		released++

		if err := s.publisher.Publish(ctx, events.SubmissionReleased, events.SubmissionEvent{
			SubmissionID: submission.ID,
			AssessmentID: assessmentID,
			UserID:       submission.UserID,
		}); err != nil {
			s.logger.Error("failed to publish submission event", "submission_id", submission.ID, "error", err)
		}
	}

	for user := range users {
		if err := reportGradebookScore(ctx, s.repo, s.publisher, assessment, user); err != nil {
			s.logger.Error("failed to report gradebook score",
				"assessment_id", assessmentID,
				"user_id", user,
				"error", err)
		}
	}

	s.logger.Info("submissions released",
		"assessment_id", assessmentID,
		"count", released,
		"released_by", userID)
	return released, nil
}

// ===== RE-SCORE =====

// ReScore re-runs automatic scoring for every completed submission, e.g.
// after a question's accepted answers were corrected. Manual evaluations
// are preserved.
func (s *DefaultGradingService) ReScore(ctx context.Context, userID string, assessmentID uint) (int, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, assessmentID, "assessment", "rescore"); err != nil {
		return 0, err
	}

	submissions, err := s.repo.Submission().GetCompletedByAssessment(ctx, nil, assessmentID)
	if err != nil {
		return 0, err
	}

	rescored := 0
	for _, submission := range submissions {
		err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
			answers, err := txRepo.Answer().GetBySubmission(ctx, nil, submission.ID)
			if err != nil {
				return err
			}
			total, err := autoScoreAnswers(ctx, txRepo, answers)
			if err != nil {
				return err
			}
			submission.TotalScore = total
			return txRepo.Submission().Update(ctx, nil, submission)
		})
		if err != nil {
			return rescored, fmt.Errorf("failed to re-score submission %d: %w", submission.ID, err)
		}
		rescored++
	}

	s.logger.Info("submissions re-scored",
		"assessment_id", assessmentID,
		"count", rescored,
		"rescored_by", userID)
	return rescored, nil
}

// ===== INTERNAL =====

// recomputeTotal re-totals a submission from its answers after an
// evaluation changed.
func recomputeTotal(ctx context.Context, repo repositories.Repository, submission *models.Submission) error {
	answers, err := repo.Answer().GetBySubmission(ctx, nil, submission.ID)
	if err != nil {
		return err
	}
	total := 0.0
	for _, a := range answers {
		total += a.TotalScore()
	}
	submission.TotalScore = total
	return repo.Submission().Update(ctx, nil, submission)
}

// reportGradebookScore publishes the official score for one user: the
// highest total among their completed submissions.
func reportGradebookScore(ctx context.Context, repo repositories.Repository, publisher events.EventPublisher, assessment *models.Assessment, userID string) error {
	submissions, err := repo.Submission().GetByUserAndAssessment(ctx, nil, userID, assessment.ID)
	if err != nil {
		return err
	}

	var best *models.Submission
	for _, submission := range submissions {
		if submission.Status == models.SubmissionInProgress {
			continue
		}
		if best == nil || submission.TotalScore > best.TotalScore {
			best = submission
		}
	}
	if best == nil {
		return nil
	}

	snapshot, err := repo.Snapshot().GetByID(ctx, nil, best.SnapshotID)
	if err != nil {
		return err
	}
	content, err := snapshot.Decode()
	if err != nil {
		return err
	}
	totalPoints, err := snapshotTotalPoints(ctx, repo, content)
	if err != nil {
		return err
	}

	return publisher.Publish(ctx, events.GradebookScoreReported, events.GradebookScore{
		AssessmentID: assessment.ID,
		Context:      assessment.Context,
		UserID:       userID,
		Score:        best.TotalScore,
		TotalPoints:  totalPoints,
		SubmissionID: best.ID,
	})
}
