package services

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/sakai-mirror/mneme/internal/events"
	"github.com/sakai-mirror/mneme/internal/models"
)

func TestEvaluateAnswerAddsToAutoScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 5)
	q := env.seedEssay(t, pool.ID)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"my essay"}}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	if _, err := env.submission.Complete(ctx, studentA, submission.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Learners cannot grade.
	score := 4.0
	comment := "solid reasoning"
	req := &EvaluateAnswerRequest{Score: &score, Comment: &comment}
	if _, err := env.grading.EvaluateAnswer(ctx, studentA, submission.ID, q.ID, req); !IsPermissionError(err) {
		t.Fatalf("expected permission error, got %v", err)
	}

	answer, err := env.grading.EvaluateAnswer(ctx, instructorID, submission.ID, q.ID, req)
	if err != nil {
		t.Fatalf("EvaluateAnswer: %v", err)
	}
	if answer.Evaluation.Score == nil || *answer.Evaluation.Score != 4 {
		t.Fatalf("expected evaluation score 4, got %v", answer.Evaluation.Score)
	}
	if answer.Evaluation.EvaluatedBy == nil || *answer.Evaluation.EvaluatedBy != instructorID {
		t.Fatalf("expected evaluator recorded, got %v", answer.Evaluation.EvaluatedBy)
	}

	stored, _ := env.repo.Submission().GetByID(ctx, nil, submission.ID)
	if stored.TotalScore != 4 {
		t.Fatalf("expected recomputed total 4, got %v", stored.TotalScore)
	}
}

func TestPendingEvaluationAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 5)
	essay := env.seedEssay(t, pool.ID)
	tf := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{essay.ID, tf.ID}, false, false)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: essay.ID, Data: []string{"essay text"}}); err != nil {
		t.Fatalf("SaveAnswer essay: %v", err)
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: tf.ID, Data: []string{"true"}}); err != nil {
		t.Fatalf("SaveAnswer tf: %v", err)
	}
	if _, err := env.submission.Complete(ctx, studentA, submission.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	pending, err := env.grading.GetPendingEvaluation(ctx, instructorID, a.ID)
	if err != nil {
		t.Fatalf("GetPendingEvaluation: %v", err)
	}
	if len(pending) != 1 || pending[0].QuestionID != essay.ID {
		t.Fatalf("expected only the essay pending, got %+v", pending)
	}

	stats, err := env.grading.GetGradingStats(ctx, instructorID, a.ID)
	if err != nil {
		t.Fatalf("GetGradingStats: %v", err)
	}
	if stats.TotalAnswers != 2 || stats.AutoScored != 1 || stats.PendingAnswers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestReleaseReportsHighestScore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 3)
	q := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	// First try wrong, second try right.
	answersByTry := []string{"false", "true"}
	for _, value := range answersByTry {
		submission, err := env.submission.Begin(ctx, studentA, a.ID)
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{value}}); err != nil {
			t.Fatalf("SaveAnswer: %v", err)
		}
		if _, err := env.submission.Complete(ctx, studentA, submission.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}

	released, err := env.grading.Release(ctx, instructorID, a.ID)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 released submissions, got %d", released)
	}

	scores := env.publisher.GetEventsByType(events.GradebookScoreReported)
	if len(scores) != 1 {
		t.Fatalf("expected one gradebook report per user, got %d", len(scores))
	}
	payload := scores[0].Data.(events.GradebookScore)
	if payload.Score != 3 {
		t.Fatalf("expected the highest total 3, got %v", payload.Score)
	}
	if payload.TotalPoints != 3 {
		t.Fatalf("expected total points 3, got %v", payload.TotalPoints)
	}
}

func TestReScoreAfterContentFix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 2)
	q := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

	submission, err := env.submission.Begin(ctx, studentA, a.ID)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := env.submission.SaveAnswer(ctx, studentA, submission.ID, &SaveAnswerRequest{QuestionID: q.ID, Data: []string{"false"}}); err != nil {
		t.Fatalf("SaveAnswer: %v", err)
	}
	completed, err := env.submission.Complete(ctx, studentA, submission.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.TotalScore != 0 {
		t.Fatalf("expected 0 before the fix, got %v", completed.TotalScore)
	}

	// The authored key was wrong; flip it and re-score.
	stored, _ := env.repo.Question().GetByID(ctx, nil, q.ID)
	stored.Content, _ = json.Marshal(models.TrueFalseContent{CorrectAnswer: false})
	if err := env.repo.Question().Update(ctx, nil, stored); err != nil {
		t.Fatalf("fix question: %v", err)
	}

	rescored, err := env.grading.ReScore(ctx, instructorID, a.ID)
	if err != nil {
		t.Fatalf("ReScore: %v", err)
	}
	if rescored != 1 {
		t.Fatalf("expected 1 re-scored submission, got %d", rescored)
	}

	after, _ := env.repo.Submission().GetByID(ctx, nil, submission.ID)
	if after.TotalScore != 2 {
		t.Fatalf("expected total 2 after re-score, got %v", after.TotalScore)
	}
}

func TestExportResultsRoster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pool := env.seedPool(t, 2)
	q := env.seedTrueFalse(t, pool.ID, true)
	a := env.seedManualAssessment(t, pool.ID, []uint{q.ID}, false, false)

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

	var buf bytes.Buffer
	if err := env.export.ExportResults(ctx, instructorID, a.ID, &buf); err != nil {
		t.Fatalf("ExportResults: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Results")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d rows", len(rows))
	}
	if rows[0][0] != "Submission" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][1] != studentA {
		t.Fatalf("expected user %s in roster, got %v", studentA, rows[1])
	}

	if err := env.export.ExportResults(ctx, studentA, a.ID, &buf); !IsPermissionError(err) {
		t.Fatalf("expected permission error for learner export, got %v", err)
	}
}
