package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sakai-mirror/mneme/internal/events"
	"github.com/sakai-mirror/mneme/internal/models"
	"github.com/sakai-mirror/mneme/internal/validator"
)

// ===== TEST ENVIRONMENT =====

type testEnv struct {
	repo       *mockRepository
	publisher  *events.MockEventPublisher
	assessment *DefaultAssessmentService
	pool       *DefaultPoolService
	question   *DefaultQuestionService
	submission *DefaultSubmissionService
	grading    *DefaultGradingService
	export     *DefaultExportService
}

const (
	instructorID = "instructor-1"
	studentA     = "student-a"
	studentB     = "student-b"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := newMockRepository()
	repo.users[instructorID] = &models.User{ID: instructorID, Name: "instructor", DisplayName: "The Instructor", Email: "instructor@school.edu", Role: models.RoleInstructor}
	repo.users[studentA] = &models.User{ID: studentA, Name: "alpha", DisplayName: "Student Alpha", Email: "alpha@school.edu", Role: models.RoleStudent}
	repo.users[studentB] = &models.User{ID: studentB, Name: "beta", DisplayName: "Student Beta", Email: "beta@school.edu", Role: models.RoleStudent}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validator.New()
	publisher := events.NewMockEventPublisher(logger)

	return &testEnv{
		repo:       repo,
		publisher:  publisher,
		assessment: NewAssessmentService(repo, logger, v, publisher),
		pool:       NewPoolService(repo, logger, v),
		question:   NewQuestionService(repo, logger, v),
		submission: NewSubmissionService(repo, logger, v, publisher),
		grading:    NewGradingService(repo, logger, v, publisher),
		export:     NewExportService(repo, logger),
	}
}

func (e *testEnv) seedPool(t *testing.T, points float64) *models.Pool {
	t.Helper()
	pool := &models.Pool{Title: "seeded pool", Points: points, Difficulty: models.DifficultyMedium, Context: "course-101", CreatedBy: instructorID}
	if err := e.repo.Pool().Create(context.Background(), nil, pool); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	return pool
}

func (e *testEnv) seedTrueFalse(t *testing.T, poolID uint, correct bool) *models.Question {
	t.Helper()
	content, _ := json.Marshal(models.TrueFalseContent{CorrectAnswer: correct})
	q := &models.Question{
		Type:         models.TrueFalse,
		PoolID:       poolID,
		Presentation: fmt.Sprintf("statement %t", correct),
		Content:      content,
		CreatedBy:    instructorID,
	}
	if err := e.repo.Question().Create(context.Background(), nil, q); err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q
}

func (e *testEnv) seedEssay(t *testing.T, poolID uint) *models.Question {
	t.Helper()
	content, _ := json.Marshal(models.EssayContent{SubmissionMode: "inline"})
	q := &models.Question{
		Type:         models.Essay,
		PoolID:       poolID,
		Presentation: "explain your reasoning",
		Content:      content,
		CreatedBy:    instructorID,
	}
	if err := e.repo.Question().Create(context.Background(), nil, q); err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q
}

// seedDrawAssessment publishes an assessment with one draw part pulling
// count questions from the pool.
func (e *testEnv) seedDrawAssessment(t *testing.T, poolID uint, count int) *models.Assessment {
	t.Helper()
	ctx := context.Background()
	a := &models.Assessment{
		Title:     "drawn quiz",
		Type:      models.TypeTest,
		Status:    models.AssessmentPublished,
		Context:   "course-101",
		Grouping:  models.GroupByQuestion,
		Version:   1,
		CreatedBy: instructorID,
	}
	if err := e.repo.Assessment().Create(ctx, nil, a); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	part := &models.Part{AssessmentID: a.ID, Kind: models.PartDraw, Title: "random section", Position: 0}
	if err := e.repo.Part().Create(ctx, nil, part); err != nil {
		t.Fatalf("seed part: %v", err)
	}
	if err := e.repo.Part().ReplaceDraws(ctx, nil, part.ID, []models.PoolDrawSpec{{PoolID: poolID, Count: count}}); err != nil {
		t.Fatalf("seed draws: %v", err)
	}
	return a
}

// seedManualAssessment publishes an assessment with one manual part picking
// the given questions in order.
func (e *testEnv) seedManualAssessment(t *testing.T, poolID uint, questionIDs []uint, randomize, autoRelease bool) *models.Assessment {
	t.Helper()
	ctx := context.Background()
	a := &models.Assessment{
		Title:       "picked quiz",
		Type:        models.TypeTest,
		Status:      models.AssessmentPublished,
		Context:     "course-101",
		Grouping:    models.GroupByQuestion,
		AutoRelease: autoRelease,
		Version:     1,
		CreatedBy:   instructorID,
	}
	if err := e.repo.Assessment().Create(ctx, nil, a); err != nil {
		t.Fatalf("seed assessment: %v", err)
	}
	part := &models.Part{AssessmentID: a.ID, Kind: models.PartManual, Title: "authored section", Position: 0, Randomize: randomize}
	if err := e.repo.Part().Create(ctx, nil, part); err != nil {
		t.Fatalf("seed part: %v", err)
	}
	picks := make([]models.PartPick, 0, len(questionIDs))
	for _, id := range questionIDs {
		pid := poolID
		picks = append(picks, models.PartPick{QuestionID: id, PoolID: &pid})
	}
	if err := e.repo.Part().ReplacePicks(ctx, nil, part.ID, picks); err != nil {
		t.Fatalf("seed picks: %v", err)
	}
	return a
}

func questionOrder(sq *SubmissionQuestions) []uint {
	var ids []uint
	for _, part := range sq.Parts {
		for _, q := range part.Questions {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

func sameOrder(a, b []uint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ===== BEGIN =====

func TestBeginCreatesSnapshotAndResumes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	for i := 0; i < 5; i++ {
		env.seedTrueFalse(t, pool.ID, i%2 == 0)
	}
	a := env.seedDrawAssessment(t, pool.ID, 3)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if submission.SnapshotID == 0 {
		t.Fatal("expected submission to bind a snapshot")
	}
	if submission.Status != models.SubmissionInProgress {
		t.Fatalf("expected in_progress, got %s", submission.Status)
	}

	snapshot, err := env.repo.Snapshot().GetByAssessmentVersion(ctx, nil, a.ID, 1)
	if err != nil {
		t.Fatalf("expected snapshot for version 1: %v", err)
	}
	if snapshot.ID != submission.SnapshotID {
		t.Fatalf("submission bound snapshot %d, version snapshot is %d", submission.SnapshotID, snapshot.ID)
	}

	resumed, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin resume: %v", err)
	}
	if resumed.ID != submission.ID {
		t.Fatalf("expected resume of submission %d, got new submission %d", submission.ID, resumed.ID)
	}

	started := env.publisher.GetEventsByType(events.SubmissionStarted)
	if len(started) != 1 {
		t.Fatalf("expected 1 started event, got %d", len(started))
	}
}

func TestBeginSurvivesSnapshotRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	for i := 0; i < 5; i++ {
		env.seedTrueFalse(t, pool.ID, true)
	}
	a := env.seedDrawAssessment(t, pool.ID, 3)

	// A competing learner lands their snapshot between this Begin's
	// version read and its insert. The insert loses on the unique index
	// and must bind to the winner's row instead of failing.
	var winner *models.Submission
	env.repo.beforeSnapshotCreate = func() {
		var err error
		winner, err = env.submission.Begin(ctx, studentB, a.ID)
		if err != nil {
			t.Fatalf("competing Begin: %v", err)
		}
	}

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin after losing the snapshot race: %v", err)
	}
	if winner == nil {
		t.Fatal("competing Begin never ran")
	}
	if submission.SnapshotID != winner.SnapshotID {
		t.Fatalf("loser bound snapshot %d, winner holds %d", submission.SnapshotID, winner.SnapshotID)
	}

	if _, err := env.submission.GetQuestions(ctx, studentA, submission.ID); err != nil {
		t.Fatalf("GetQuestions after race: %v", err)
	}
}

func TestBeginRejectsUnpublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	env.seedTrueFalse(t, pool.ID, true)
	a := env.seedDrawAssessment(t, pool.ID, 1)
	if err := env.repo.Assessment().UpdateStatus(ctx, nil, a.ID, models.AssessmentDraft); err != nil {
		t.Fatalf("retract: %v", err)
	}

	if _, err := env.submission.Begin(ctx, studentA, a.ID); err == nil {
		t.Fatal("expected Begin of a draft assessment to fail")
	}
}

func TestBeginEnforcesTries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	q := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	one := 1
	live, _ := env.repo.Assessment().GetByID(ctx, nil, a.ID)
	live.TriesAllowed = &one
	if err := env.repo.Assessment().Update(ctx, nil, live); err != nil {
		t.Fatalf("set tries: %v", err)
	}

	first, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.submission.Complete(ctx, studentA, first.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, err := env.submission.Begin(ctx, studentA, a.ID); err == nil {
		t.Fatal("expected second try to be rejected")
	}
}

// ===== COMPOSITION =====

func TestGetQuestionsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	for i := 0; i < 8; i++ {
		env.seedTrueFalse(t, pool.ID, i%2 == 0)
	}
	a := env.seedDrawAssessment(t, pool.ID, 4)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	first, err := env.submission.GetQuestions(ctx, studentA, submission.ID)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	order := questionOrder(first)
	if len(order) != 4 {
		t.Fatalf("expected 4 drawn questions, got %d", len(order))
	}
	seen := make(map[uint]bool)
	for _, id := range order {
		if seen[id] {
			t.Fatalf("question %d drawn twice", id)
		}
		seen[id] = true
	}

	for i := 0; i < 10; i++ {
		again, err := env.submission.GetQuestions(ctx, studentA, submission.ID)
		if err != nil {
			t.Fatalf("GetQuestions #%d: %v", i, err)
		}
		if !sameOrder(order, questionOrder(again)) {
			t.Fatalf("composition changed between reads: %v vs %v", order, questionOrder(again))
		}
	}
}

func TestSubmissionIsolatedFromLiveEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	for i := 0; i < 5; i++ {
		env.seedTrueFalse(t, pool.ID, true)
	}
	a := env.seedDrawAssessment(t, pool.ID, 3)

	subA, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin A: %v", err)
	}
	before, err := env.submission.GetQuestions(ctx, studentA, subA.ID)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	orderBefore := questionOrder(before)

	// Structural edit after the first submission began: grow the pool and
	// bump the version.
	for i := 0; i < 10; i++ {
		env.seedTrueFalse(t, pool.ID, false)
	}
	if err := env.repo.Assessment().BumpVersion(ctx, nil, a.ID); err != nil {
		t.Fatalf("bump: %v", err)
	}

	after, err := env.submission.GetQuestions(ctx, studentA, subA.ID)
	if err != nil {
		t.Fatalf("GetQuestions after edit: %v", err)
	}
	if !sameOrder(orderBefore, questionOrder(after)) {
		t.Fatalf("bound submission changed after live edit: %v vs %v", orderBefore, questionOrder(after))
	}

	subB, err := env.submission.Begin(ctx, studentB, a.ID)
	if err != nil {
		t.Fatalf("Begin B: %v", err)
	}
	if subB.SnapshotID == subA.SnapshotID {
		t.Fatal("expected a new snapshot for the new version")
	}
	snapB, err := env.repo.Snapshot().GetByID(ctx, nil, subB.SnapshotID)
	if err != nil {
		t.Fatalf("load snapshot B: %v", err)
	}
	if snapB.Version != 2 {
		t.Fatalf("expected snapshot of version 2, got %d", snapB.Version)
	}
}

func TestManualRandomizeIsStablePermutation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, env.seedTrueFalse(t, pool.ID, true).ID)
	}
	a := env.seedManualAssessment(t, pool.ID, ids, true, false)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	first, err := env.submission.GetQuestions(ctx, studentA, submission.ID)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	order := questionOrder(first)

	want := make(map[uint]bool)
	for _, id := range ids {
		want[id] = true
	}
	if len(order) != len(ids) {
		t.Fatalf("expected %d questions, got %d", len(ids), len(order))
	}
	for _, id := range order {
		if !want[id] {
			t.Fatalf("unexpected question %d in composition", id)
		}
	}

	for i := 0; i < 5; i++ {
		again, _ := env.submission.GetQuestions(ctx, studentA, submission.ID)
		if !sameOrder(order, questionOrder(again)) {
			t.Fatal("randomized order changed between reads")
		}
	}
}

// ===== ANSWERS AND SCORING =====

func TestSaveAnswerValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 2)
	q := env.seedTrueFalse(t, pool.ID, true)
	outsider := env.seedTrueFalse(t, pool.ID, false)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: outsider.ID, Data: []string{"true"}}); err == nil {
		t.Fatal("expected answer to a question outside the composition to fail")
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"maybe"}}); err == nil {
		t.Fatal("expected malformed answer data to fail")
	}
	if _, err := env.submission.SaveAnswer(ctx, studentB, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"true"}}); err == nil {
		t.Fatal("expected a non-owner save to fail")
	}

	answer, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"true"}})
	if err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if answer.PartID == 0 {
		t.Fatal("expected the answer to record its part")
	}
	if answer.AutoScore != nil {
		t.Fatal("auto score must stay unset until completion")
	}
}

func TestCompleteAutoScoresAndReleases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 2)
	var ids []uint
	for i := 0; i < 4; i++ {
		ids = append(ids, env.seedTrueFalse(t, pool.ID, true).ID)
	}
	a := env.seedManualAssessment(t, pool.ID, ids, false, true)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// Three correct, one wrong.
	answers := []string{"true", "true", "true", "false"}
	for i, id := range ids {
		if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: id, Data: []string{answers[i]}}); err != nil {
			t.Fatalf("SaveAnswer %d: %v", id, err)
		}
	}

	completed, err := env.submission.Complete(ctx, studentA, submission.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.TotalScore != 6 {
		t.Fatalf("expected total 6, got %v", completed.TotalScore)
	}
	if completed.SubmittedAt == nil {
		t.Fatal("expected submitted timestamp")
	}

	// Everything auto-scored and the assessment auto-releases.
	stored, _ := env.repo.Submission().GetByID(ctx, nil, submission.ID)
	if stored.Status != models.SubmissionReleased {
		t.Fatalf("expected released, got %s", stored.Status)
	}
	if !stored.IsGraded {
		t.Fatal("expected submission marked graded")
	}

	if got := env.publisher.GetEventsByType(events.SubmissionCompleted); len(got) != 1 {
		t.Fatalf("expected 1 completed event, got %d", len(got))
	}
	scores := env.publisher.GetEventsByType(events.GradebookScoreReported)
	if len(scores) != 1 {
		t.Fatalf("expected 1 gradebook event, got %d", len(scores))
	}
	payload, ok := scores[0].Data.(events.GradebookScore)
	if !ok {
		t.Fatalf("unexpected gradebook payload %T", scores[0].Data)
	}
	if payload.Score != 6 || payload.TotalPoints != 8 {
		t.Fatalf("expected score 6/8, got %v/%v", payload.Score, payload.TotalPoints)
	}
	if payload.UserID != studentA {
		t.Fatalf("expected score for %s, got %s", studentA, payload.UserID)
	}
}

func TestCompleteHoldsEssayForEvaluation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 5)
	q := env.seedEssay(t, pool.ID)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, true)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"a thoughtful essay"}}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if _, err := env.submission.Complete(ctx, studentA, submission.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stored, _ := env.repo.Submission().GetByID(ctx, nil, submission.ID)
	if stored.Status != models.SubmissionComplete {
		t.Fatalf("essay-only submission must wait for evaluation, got %s", stored.Status)
	}
	answer, err := env.repo.Answer().GetBySubmissionAndQuestion(ctx, nil, submission.ID, q.ID)
	if err != nil {
		t.Fatalf("load answer: %v", err)
	}
	if answer.AutoScore != nil {
		t.Fatalf("essay answers never auto-score, got %v", *answer.AutoScore)
	}
}

func TestExpireOverdue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 1)
	q := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	past := time.Now().Add(-2 * time.Minute)
	submission.Deadline = &past
	if err := env.repo.Submission().Update(ctx, nil, submission); err != nil {
		t.Fatalf("backdate deadline: %v", err)
	}

	closed, err := env.submission.ExpireOverdue(ctx)
	if err != nil {
		t.Fatalf("ExpireOverdue: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 closed submission, got %d", closed)
	}

	stored, _ := env.repo.Submission().GetByID(ctx, nil, submission.ID)
	if stored.Status == models.SubmissionInProgress {
		t.Fatal("expected submission to be closed")
	}
	if stored.EndReason == nil || *stored.EndReason != models.SubmissionEndReasonTimeout {
		t.Fatalf("expected end reason %q, got %v", models.SubmissionEndReasonTimeout, stored.EndReason)
	}
	if got := env.publisher.GetEventsByType(events.SubmissionTimedOut); len(got) != 1 {
		t.Fatalf("expected 1 timeout event, got %d", len(got))
	}
}

// ===== REVIEW =====

func TestReviewFollowsPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 2)
	q := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	live, _ := env.repo.Assessment().GetByID(ctx, nil, a.ID)
	live.ReviewTiming = models.ReviewGraded
	live.ReviewShowCorrect = true
	if err := env.repo.Assessment().Update(ctx, nil, live); err != nil {
		t.Fatalf("set review policy: %v", err)
	}

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"true"}}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if _, err := env.submission.Complete(ctx, studentA, submission.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Not yet released; policy "graded" keeps the learner out but never
	// the instructor.
	if _, err := env.submission.Review(ctx, studentA, submission.ID); err != ErrReviewNotAvailable {
		t.Fatalf("expected ErrReviewNotAvailable, got %v", err)
	}
	if _, err := env.submission.Review(ctx, instructorID, submission.ID); err != nil {
		t.Fatalf("instructor review: %v", err)
	}

	if _, err := env.grading.Release(ctx, instructorID, a.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	review, err := env.submission.Review(ctx, studentA, submission.ID)
	if err != nil {
		t.Fatalf("Review after release: %v", err)
	}
	if len(review.Answers) != 1 {
		t.Fatalf("expected 1 reviewed answer, got %d", len(review.Answers))
	}
	ra := review.Answers[0]
	if ra.IsCorrect == nil || !*ra.IsCorrect {
		t.Fatalf("expected correct answer in review, got %v", ra.IsCorrect)
	}
	if ra.TotalScore != 2 {
		t.Fatalf("expected answer worth 2, got %v", ra.TotalScore)
	}
	if review.TotalPoints != 2 {
		t.Fatalf("expected total points 2, got %v", review.TotalPoints)
	}
}
