package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakai-mirror/mneme/internal/events"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/qtype"
	"github.com/sakai-mirror/mneme/internal/repositories"
	"github.com/sakai-mirror/mneme/internal/shuffle"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// saveGrace is how long after the deadline a save is still accepted, so
// work in flight at the moment of timeout is not lost.
const saveGrace = 30 * time.Second

// DefaultSubmissionService implements SubmissionService.
type DefaultSubmissionService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewSubmissionService(repo repositories.Repository, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) *DefaultSubmissionService {
	return &DefaultSubmissionService{
		repo:      repo,
		logger:    logger,
		validator: v,
		publisher: publisher,
	}
}

// ===== BEGIN =====

// Begin opens a delivery session. An existing in-progress submission is
// resumed, never duplicated. A new submission binds to the snapshot of the
// assessment's current version, creating that snapshot if this is the first
// submission since the last structural edit.
func (s *DefaultSubmissionService) Begin(ctx context.Context, userID string, assessmentID uint) (*models.Submission, error) {
	if _, err := s.repo.User().GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	assessment, err := s.repo.Assessment().GetByIDWithParts(ctx, nil, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, err
	}

	// Resume before counting tries; an open session is not a new try.
	if existing, err := s.repo.Submission().GetInProgress(ctx, nil, userID, assessmentID); err == nil && existing != nil {
		return existing, nil
	} else if err != nil && !repositories.IsNotFoundError(err) {
		return nil, err
	}

	overrides, err := decodeSpecialAccess(assessment)
	if err != nil {
		return nil, err
	}
	open, _, acceptUntil, timeLimit, tries := assessment.DatesFor(userID, overrides)

	count, err := s.repo.Submission().CountByUserAndAssessment(ctx, nil, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	if errs := s.validator.ValidateSubmissionBegin(assessment.Status, open, acceptUntil, int(count), tries); len(errs) > 0 {
		return nil, errs
	}

	// The snapshot is settled before the submission transaction opens. A
	// lost creation race must resolve by re-reading the winner's row, and
	// that read cannot happen inside a transaction the failed insert may
	// have aborted.
	snapshot, err := ensureSnapshot(ctx, s.repo, assessment)
	if err != nil {
		return nil, err
	}

	var submission *models.Submission
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		now := time.Now()
		submission = &models.Submission{
			AssessmentID: assessmentID,
			SnapshotID:   snapshot.ID,
			UserID:       userID,
			Status:       models.SubmissionInProgress,
			StartedAt:    &now,
			Deadline:     deadlineFor(now, timeLimit, acceptUntil),
		}
		return txRepo.Submission().Create(ctx, nil, submission)
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.SubmissionStarted, events.SubmissionEvent{
		SubmissionID: submission.ID,
		AssessmentID: assessmentID,
		UserID:       userID,
	}); err != nil {
		s.logger.Error("failed to publish submission event", "submission_id", submission.ID, "error", err)
	}

	s.logger.Info("submission started",
		"submission_id", submission.ID,
		"assessment_id", assessmentID,
		"snapshot_id", submission.SnapshotID,
		"user_id", userID)
	return submission, nil
}

// ===== READ =====

func (s *DefaultSubmissionService) GetByID(ctx context.Context, userID string, id uint) (*models.Submission, error) {
	submission, err := s.repo.Submission().GetByID(ctx, nil, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if err := s.requireOwnerOrEvaluator(ctx, userID, submission, "read"); err != nil {
		return nil, err
	}
	return submission, nil
}

// GetQuestions resolves the submission's delivery composition from its
// frozen snapshot. The per-part seed is derived from the submission and
// part ids, so the result is identical on every call.
func (s *DefaultSubmissionService) GetQuestions(ctx context.Context, userID string, submissionID uint) (*SubmissionQuestions, error) {
	submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if err := s.requireOwnerOrEvaluator(ctx, userID, submission, "read"); err != nil {
		return nil, err
	}

	content, err := s.snapshotContent(ctx, submission)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.Answer().GetBySubmission(ctx, nil, submissionID)
	if err != nil {
		return nil, err
	}
	answers := make(map[uint]*models.Answer, len(saved))
	for _, a := range saved {
		answers[a.QuestionID] = a
	}

	composed, err := composeQuestions(ctx, s.repo, content, s.seedFor(submissionID), false, answers)
	if err != nil {
		return nil, err
	}
	composed.SubmissionID = submissionID
	composed.Deadline = submission.Deadline
	return composed, nil
}

// ===== ANSWER =====

func (s *DefaultSubmissionService) SaveAnswer(ctx context.Context, userID string, submissionID uint, req *SaveAnswerRequest) (*models.Answer, error) {
	if errs := s.validator.Validate(req); len(errs) > 0 {
		return nil, errs
	}

	submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if submission.UserID != userID {
		return nil, NewPermissionError(userID, submissionID, "submission", "answer", "not the submission owner")
	}
	if submission.Status != models.SubmissionInProgress {
		return nil, ErrSubmissionNotOpen
	}
	if submission.Deadline != nil && time.Now().After(submission.Deadline.Add(saveGrace)) {
		return nil, ErrSubmissionNotOpen
	}

	content, err := s.snapshotContent(ctx, submission)
	if err != nil {
		return nil, err
	}
	partID, err := partForQuestion(content, s.seedFor(submissionID), req.QuestionID)
	if err != nil {
		return nil, err
	}
	if partID == 0 {
		return nil, NewValidationError("question_id", "question is not part of this submission", req.QuestionID)
	}

	question, err := s.repo.Question().GetByID(ctx, nil, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	// Round-trip through the type plugin so malformed responses are
	// rejected at save time, not discovered at scoring time.
	typed, err := qtype.ForQuestion(question)
	if err != nil {
		return nil, err
	}
	if err := typed.SetData(req.Data); err != nil {
		return nil, NewValidationError("data", err.Error(), req.Data)
	}

	raw, err := json.Marshal(typed.Data())
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer data: %w", err)
	}

	now := time.Now()
	answer := &models.Answer{
		SubmissionID: submissionID,
		PartID:       partID,
		QuestionID:   req.QuestionID,
		Data:         raw,
		AnsweredAt:   &now,
	}
	if err := s.repo.Answer().Upsert(ctx, nil, answer); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	return answer, nil
}

// ===== COMPLETE =====

func (s *DefaultSubmissionService) Complete(ctx context.Context, userID string, submissionID uint) (*models.Submission, error) {
	submission, err := s.repo.Submission().GetByID(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if submission.UserID != userID {
		return nil, NewPermissionError(userID, submissionID, "submission", "complete", "not the submission owner")
	}
	if submission.Status != models.SubmissionInProgress {
		return nil, ErrSubmissionNotOpen
	}

	if err := s.finalize(ctx, submission, ""); err != nil {
		return nil, err
	}
	if err := s.maybeAutoRelease(ctx, submission); err != nil {
		s.logger.Error("failed to auto-release submission", "submission_id", submissionID, "error", err)
	}

	if err := s.publisher.Publish(ctx, events.SubmissionCompleted, events.SubmissionEvent{
		SubmissionID: submission.ID,
		AssessmentID: submission.AssessmentID,
		UserID:       userID,
	}); err != nil {
		s.logger.Error("failed to publish submission event", "submission_id", submissionID, "error", err)
	}

	s.logger.Info("submission completed",
		"submission_id", submissionID,
		"user_id", userID,
		"total_score", submission.TotalScore)
	return submission, nil
}

// ExpireOverdue closes every in-progress submission whose deadline has
// passed, scoring whatever answers were saved.
func (s *DefaultSubmissionService) ExpireOverdue(ctx context.Context) (int, error) {
	expired, err := s.repo.Submission().GetExpired(ctx, nil, time.Now().Add(-saveGrace))
	if err != nil {
		return 0, fmt.Errorf("failed to find expired submissions: %w", err)
	}

	closed := 0
	for _, submission := range expired {
		if err := s.finalize(ctx, submission, models.SubmissionEndReasonTimeout); err != nil {
			s.logger.Error("failed to expire submission", "submission_id", submission.ID, "error", err)
			continue
		}
		closed++
		if err := s.maybeAutoRelease(ctx, submission); err != nil {
			s.logger.Error("failed to auto-release submission", "submission_id", submission.ID, "error", err)
		}

		if err := s.publisher.Publish(ctx, events.SubmissionTimedOut, events.SubmissionEvent{
			SubmissionID: submission.ID,
			AssessmentID: submission.AssessmentID,
			UserID:       submission.UserID,
			Reason:       models.SubmissionEndReasonTimeout,
		}); err != nil {
			s.logger.Error("failed to publish submission event", "submission_id", submission.ID, "error", err)
		}
	}

	if closed > 0 {
		s.logger.Info("expired overdue submissions", "count", closed)
	}
	return closed, nil
}

// ===== REVIEW =====

func (s *DefaultSubmissionService) Review(ctx context.Context, userID string, submissionID uint) (*SubmissionReview, error) {
	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, nil, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if submission.Status == models.SubmissionInProgress {
		return nil, ErrSubmissionNotComplete
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, nil, submission.AssessmentID)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	isOwner := submission.UserID == userID
	if !isOwner && !user.CanEvaluate() {
		return nil, NewPermissionError(userID, submissionID, "submission", "review", "not the submission owner")
	}
	// Review policy binds the learner; evaluators always see the work.
	if isOwner && !user.CanEvaluate() {
		if err := reviewAllowed(assessment, submission); err != nil {
			return nil, err
		}
	}

	showCorrect := assessment.ReviewShowCorrect || !isOwner || user.CanEvaluate()

	var questionIDs []uint
	for _, a := range submission.Answers {
		questionIDs = append(questionIDs, a.QuestionID)
	}
	questions, err := s.repo.Question().GetByIDs(ctx, nil, questionIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	review := &SubmissionReview{
		SubmissionID: submission.ID,
		Status:       submission.Status,
		SubmittedAt:  submission.SubmittedAt,
		TotalScore:   submission.TotalScore,
		ShowCorrect:  showCorrect,
	}

	for i := range submission.Answers {
		a := &submission.Answers[i]
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		review.TotalPoints += q.Pool.Points

		ra := ReviewAnswer{
			QuestionID:   q.ID,
			Type:         q.Type,
			Presentation: q.Presentation,
			Points:       q.Pool.Points,
			Data:         decodeAnswerData(a),
			AutoScore:    a.AutoScore,
			EvalScore:    a.Evaluation.Score,
			EvalComment:  a.Evaluation.Comment,
			Feedback:     q.Feedback,
			TotalScore:   a.TotalScore(),
		}
		if showCorrect {
			ra.Content = json.RawMessage(q.Content)
			if typed, err := qtype.ForQuestion(q); err == nil {
				if err := typed.SetData(ra.Data); err == nil {
					ra.IsCorrect = typed.IsCorrect()
				}
			}
		} else if plugin, err := qtype.Get(q.Type); err == nil {
			if sanitized, err := plugin.Sanitize(json.RawMessage(q.Content)); err == nil {
				ra.Content = sanitized
			}
		}
		review.Answers = append(review.Answers, ra)
	}

	return review, nil
}

// ===== LISTS =====

func (s *DefaultSubmissionService) ListByAssessment(ctx context.Context, userID string, assessmentID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	if _, err := requireEvaluator(ctx, s.repo, userID, assessmentID, "submission", "list"); err != nil {
		return nil, 0, err
	}
	filters.AssessmentID = &assessmentID
	return s.repo.Submission().List(ctx, nil, filters)
}

func (s *DefaultSubmissionService) ListMine(ctx context.Context, userID string, assessmentID uint) ([]*models.Submission, error) {
	return s.repo.Submission().GetByUserAndAssessment(ctx, nil, userID, assessmentID)
}

// ===== INTERNAL =====

func (s *DefaultSubmissionService) seedFor(submissionID uint) func(partID uint) int64 {
	return func(partID uint) int64 {
		return shuffle.Seed(submissionID, partID)
	}
}

func (s *DefaultSubmissionService) snapshotContent(ctx context.Context, submission *models.Submission) (*models.SnapshotContent, error) {
	snapshot, err := s.repo.Snapshot().GetByID(ctx, nil, submission.SnapshotID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return snapshot.Decode()
}

func (s *DefaultSubmissionService) requireOwnerOrEvaluator(ctx context.Context, userID string, submission *models.Submission, action string) error {
	if submission.UserID == userID {
		return nil
	}
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	if !user.CanEvaluate() {
		return NewPermissionError(userID, submission.ID, "submission", action, "not the submission owner")
	}
	return nil
}

// finalize closes a submission: auto-scores every saved answer, totals the
// score, and marks the submission complete. Runs in one transaction.
func (s *DefaultSubmissionService) finalize(ctx context.Context, submission *models.Submission, endReason string) error {
	return s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		answers, err := txRepo.Answer().GetBySubmission(ctx, nil, submission.ID)
		if err != nil {
			return err
		}

		total, err := autoScoreAnswers(ctx, txRepo, answers)
		if err != nil {
			return err
		}

		now := time.Now()
		submission.Status = models.SubmissionComplete
		submission.SubmittedAt = &now
		submission.TotalScore = total
		if endReason != "" {
			reason := endReason
			submission.EndReason = &reason
		}
		return txRepo.Submission().Update(ctx, nil, submission)
	})
}

// autoScoreAnswers runs each saved answer through its question's plugin and
// persists the auto score. Returns the combined total (auto + any manual
// evaluation already present).
func autoScoreAnswers(ctx context.Context, repo repositories.Repository, answers []*models.Answer) (float64, error) {
	var ids []uint
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	questions, err := repo.Question().GetByIDs(ctx, nil, ids)
	if err != nil {
		return 0, err
	}
	byID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	total := 0.0
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return 0, fmt.Errorf("question %d: %w", a.QuestionID, ErrQuestionNotFound)
		}

		typed, err := qtype.ForQuestion(q)
		if err != nil {
			return 0, err
		}
		if err := typed.SetData(decodeAnswerData(a)); err != nil {
			return 0, fmt.Errorf("failed to decode answer %d: %w", a.ID, err)
		}

		a.AutoScore = typed.AutoScore(q.Pool.Points)
		if err := repo.Answer().Update(ctx, nil, a); err != nil {
			return 0, err
		}
		total += a.TotalScore()
	}
	return total, nil
}

// maybeAutoRelease releases a freshly completed submission when the
// assessment auto-releases and nothing needs manual evaluation.
func (s *DefaultSubmissionService) maybeAutoRelease(ctx context.Context, submission *models.Submission) error {
	assessment, err := s.repo.Assessment().GetByID(ctx, nil, submission.AssessmentID)
	if err != nil {
		return err
	}
	if !assessment.AutoRelease {
		return nil
	}

	answers, err := s.repo.Answer().GetBySubmission(ctx, nil, submission.ID)
	if err != nil {
		return err
	}
	for _, a := range answers {
		if a.AutoScore == nil && !a.IsEvaluated() {
			return nil
		}
	}

	submission.Status = models.SubmissionReleased
	submission.IsGraded = true
	if err := s.repo.Submission().Update(ctx, nil, submission); err != nil {
		return err
	}
	return reportGradebookScore(ctx, s.repo, s.publisher, assessment, submission.UserID)
}

// ensureSnapshot returns the snapshot of the assessment's current version,
// creating it when this is the first submission since the last structural
// edit. Two concurrent creators race on the (assessment_id, version) unique
// index; the loser re-reads the winner's row.
func ensureSnapshot(ctx context.Context, repo repositories.Repository, assessment *models.Assessment) (*models.AssessmentSnapshot, error) {
	snapshot, err := repo.Snapshot().GetByAssessmentVersion(ctx, nil, assessment.ID, assessment.Version)
	if err == nil {
		return snapshot, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, err
	}

	poolQuestions, err := poolQuestionSets(ctx, repo, assessment)
	if err != nil {
		return nil, err
	}
	snapshot, err = models.FreezeAssessment(assessment, poolQuestions)
	if err != nil {
		return nil, err
	}

	if err := repo.Snapshot().Create(ctx, nil, snapshot); err != nil {
		if repositories.IsDuplicateKeyError(err) {
			return repo.Snapshot().GetByAssessmentVersion(ctx, nil, assessment.ID, assessment.Version)
		}
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	// The live content is now captured; clear the divergence marker.
	assessment.LiveChanged = false
	if err := repo.Assessment().Update(ctx, nil, assessment); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// deadlineFor picks the earlier of the time-limit deadline and the hard
// close date.
func deadlineFor(start time.Time, timeLimit *int, acceptUntil *time.Time) *time.Time {
	var deadline *time.Time
	if timeLimit != nil {
		d := start.Add(time.Duration(*timeLimit) * time.Second)
		deadline = &d
	}
	if acceptUntil != nil && (deadline == nil || acceptUntil.Before(*deadline)) {
		deadline = acceptUntil
	}
	return deadline
}

// decodeSpecialAccess unpacks the per-user overrides.
func decodeSpecialAccess(assessment *models.Assessment) ([]models.SpecialAccess, error) {
	if len(assessment.SpecialAccess) == 0 {
		return nil, nil
	}
	var overrides []models.SpecialAccess
	if err := json.Unmarshal(assessment.SpecialAccess, &overrides); err != nil {
		return nil, fmt.Errorf("failed to decode special access: %w", err)
	}
	return overrides, nil
}

// reviewAllowed applies the assessment's review policy to a learner.
func reviewAllowed(assessment *models.Assessment, submission *models.Submission) error {
	switch assessment.ReviewTiming {
	case models.ReviewNever:
		return ErrReviewNotAvailable
	case models.ReviewSubmitted:
		return nil
	case models.ReviewDate:
		if assessment.ReviewDate == nil || time.Now().Before(*assessment.ReviewDate) {
			return ErrReviewNotAvailable
		}
		return nil
	default: // graded
		if submission.Status != models.SubmissionReleased {
			return ErrReviewNotAvailable
		}
		return nil
	}
}
