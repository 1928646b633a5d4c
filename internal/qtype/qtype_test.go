package qtype

import (
	"encoding/json"
	"strings"
	"testing"

	"gorm.io/datatypes"

	"github.com/sakai-mirror/mneme/internal/models"
)

func mustQuestion(t *testing.T, qt models.QuestionType, content interface{}) *models.Question {
	t.Helper()
	raw, err := json.Marshal(content)
	if err != nil {
		t.Fatalf("marshal content: %v", err)
	}
	return &models.Question{Type: qt, Content: datatypes.JSON(raw)}
}

func mustAnswer(t *testing.T, q *models.Question, data []string) Answer {
	t.Helper()
	a, err := ForQuestion(q)
	if err != nil {
		t.Fatalf("build answer: %v", err)
	}
	if err := a.SetData(data); err != nil {
		t.Fatalf("set data: %v", err)
	}
	return a
}

// ===== REGISTRY TESTS =====

func TestRegistryCoversAllTypes(t *testing.T) {
	types := []models.QuestionType{
		models.TrueFalse, models.MultipleChoice, models.Matching,
		models.FillBlank, models.Essay, models.LikertScale,
	}
	for _, qt := range types {
		if _, err := Get(qt); err != nil {
			t.Errorf("no plugin for %s: %v", qt, err)
		}
	}
	if _, err := Get("word_cloud"); err == nil {
		t.Error("expected error for unknown type")
	}
}

// ===== TRUE/FALSE TESTS =====

func TestTrueFalseScoring(t *testing.T) {
	q := mustQuestion(t, models.TrueFalse, models.TrueFalseContent{CorrectAnswer: true})

	tests := []struct {
		name        string
		data        []string
		wantCorrect *bool
		wantScore   *float64
	}{
		{"correct", []string{"true"}, boolPtr(true), floatPtr(5)},
		{"incorrect", []string{"false"}, boolPtr(false), floatPtr(0)},
		{"unanswered", nil, nil, floatPtr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustAnswer(t, q, tt.data)
			checkCorrect(t, a.IsCorrect(), tt.wantCorrect)
			checkScore(t, a.AutoScore(5), tt.wantScore)
		})
	}
}

func TestTrueFalseRejectsGarbage(t *testing.T) {
	q := mustQuestion(t, models.TrueFalse, models.TrueFalseContent{CorrectAnswer: true})
	a, err := ForQuestion(q)
	if err != nil {
		t.Fatalf("build answer: %v", err)
	}
	if err := a.SetData([]string{"maybe"}); err == nil {
		t.Error("expected error for non-boolean response")
	}
}

// ===== MULTIPLE CHOICE TESTS =====

func multipleChoiceQuestion(t *testing.T, correct []string, singleSelect bool) *models.Question {
	return mustQuestion(t, models.MultipleChoice, models.MultipleChoiceContent{
		Options: []models.ChoiceOption{
			{ID: "a", Text: "Alpha"},
			{ID: "b", Text: "Beta"},
			{ID: "c", Text: "Gamma"},
			{ID: "d", Text: "Delta"},
		},
		CorrectAnswers: correct,
		SingleSelect:   singleSelect,
	})
}

func TestMultipleChoiceExactSetScoring(t *testing.T) {
	q := multipleChoiceQuestion(t, []string{"a", "c"}, false)

	tests := []struct {
		name      string
		data      []string
		wantScore float64
	}{
		{"exact match", []string{"a", "c"}, 10},
		{"exact match reordered", []string{"c", "a"}, 10},
		{"subset", []string{"a"}, 0},
		{"superset", []string{"a", "b", "c"}, 0},
		{"disjoint", []string{"b", "d"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustAnswer(t, q, tt.data)
			checkScore(t, a.AutoScore(10), floatPtr(tt.wantScore))
		})
	}
}

func TestMultipleChoiceSingleSelect(t *testing.T) {
	q := multipleChoiceQuestion(t, []string{"b"}, true)
	a, err := ForQuestion(q)
	if err != nil {
		t.Fatalf("build answer: %v", err)
	}
	if err := a.SetData([]string{"a", "b"}); err == nil {
		t.Error("expected error for multiple selections on single-select")
	}
	if err := a.SetData([]string{"z"}); err == nil {
		t.Error("expected error for unknown option")
	}
}

func TestMultipleChoiceContentValidation(t *testing.T) {
	p, _ := Get(models.MultipleChoice)

	tests := []struct {
		name    string
		content models.MultipleChoiceContent
		wantErr bool
	}{
		{
			"valid",
			models.MultipleChoiceContent{
				Options:        []models.ChoiceOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}},
				CorrectAnswers: []string{"a"},
			},
			false,
		},
		{
			"too few options",
			models.MultipleChoiceContent{
				Options:        []models.ChoiceOption{{ID: "a", Text: "A"}},
				CorrectAnswers: []string{"a"},
			},
			true,
		},
		{
			"no correct answer",
			models.MultipleChoiceContent{
				Options: []models.ChoiceOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}},
			},
			true,
		},
		{
			"correct answer not an option",
			models.MultipleChoiceContent{
				Options:        []models.ChoiceOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}},
				CorrectAnswers: []string{"z"},
			},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := json.Marshal(tt.content)
			err := p.ValidateContent(raw)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ===== MATCHING TESTS =====

func matchingQuestion(t *testing.T) *models.Question {
	return mustQuestion(t, models.Matching, models.MatchingContent{
		Pairs: []models.MatchPair{
			{ID: "p1", Match: "France", Choice: "Paris", ChoiceID: "c1"},
			{ID: "p2", Match: "Italy", Choice: "Rome", ChoiceID: "c2"},
			{ID: "p3", Match: "Spain", Choice: "Madrid", ChoiceID: "c3"},
			{ID: "p4", Match: "Greece", Choice: "Athens", ChoiceID: "c4"},
		},
	})
}

func TestMatchingPartialCredit(t *testing.T) {
	q := matchingQuestion(t)

	// 8 points over 4 pairs: 2 per pair, wrong pairs deduct 2.
	tests := []struct {
		name      string
		data      []string
		wantScore float64
	}{
		{"all correct", []string{"p1:c1", "p2:c2", "p3:c3", "p4:c4"}, 8},
		{"three correct one wrong", []string{"p1:c1", "p2:c2", "p3:c3", "p4:c1"}, 4},
		{"two correct two unanswered", []string{"p1:c1", "p2:c2"}, 4},
		{"one correct three wrong floors at zero", []string{"p1:c1", "p2:c1", "p3:c1", "p4:c2"}, 0},
		{"all wrong", []string{"p1:c2", "p2:c3", "p3:c4", "p4:c1"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := mustAnswer(t, q, tt.data)
			checkScore(t, a.AutoScore(8), floatPtr(tt.wantScore))
		})
	}
}

func TestMatchingCorrectness(t *testing.T) {
	q := matchingQuestion(t)

	a := mustAnswer(t, q, []string{"p1:c1", "p2:c2", "p3:c3", "p4:c4"})
	checkCorrect(t, a.IsCorrect(), boolPtr(true))

	a = mustAnswer(t, q, []string{"p1:c1", "p2:c2", "p3:c3"})
	checkCorrect(t, a.IsCorrect(), boolPtr(false))

	a = mustAnswer(t, q, nil)
	checkCorrect(t, a.IsCorrect(), nil)
}

func TestMatchingSanitizeSeversPairing(t *testing.T) {
	q := matchingQuestion(t)
	p, _ := Get(models.Matching)

	raw, err := p.Sanitize(json.RawMessage(q.Content))
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	var sanitized models.MatchingContent
	if err := json.Unmarshal(raw, &sanitized); err != nil {
		t.Fatalf("unmarshal sanitized: %v", err)
	}
	for _, pair := range sanitized.Pairs {
		if pair.Choice != "" || pair.ChoiceID != "" {
			t.Errorf("pair %s still carries its choice", pair.ID)
		}
		if pair.Match == "" {
			t.Errorf("pair %s lost its match text", pair.ID)
		}
	}
	if len(sanitized.Distractors) != 4 {
		t.Errorf("expected 4 choices in delivery list, got %d", len(sanitized.Distractors))
	}
}

// ===== FILL-IN TESTS =====

func fillBlankQuestion(t *testing.T, caseSensitive, anyOrder bool) *models.Question {
	return mustQuestion(t, models.FillBlank, models.FillBlankContent{
		Template:      "The {} jumps over the {}",
		Blanks:        [][]string{{"fox", "red fox"}, {"dog"}},
		CaseSensitive: caseSensitive,
		AnyOrder:      anyOrder,
	})
}

func TestFillBlankScoring(t *testing.T) {
	tests := []struct {
		name          string
		caseSensitive bool
		anyOrder      bool
		data          []string
		wantScore     float64
	}{
		{"both correct", false, false, []string{"fox", "dog"}, 6},
		{"alternate accepted", false, false, []string{"red fox", "dog"}, 6},
		{"one correct", false, false, []string{"fox", "cat"}, 3},
		{"case folded", false, false, []string{"FOX", "Dog"}, 6},
		{"case sensitive rejects", true, false, []string{"FOX", "dog"}, 3},
		{"wrong order without any-order", false, false, []string{"dog", "fox"}, 0},
		{"wrong order with any-order", false, true, []string{"dog", "fox"}, 6},
		{"none correct", false, false, []string{"cat", "bird"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := fillBlankQuestion(t, tt.caseSensitive, tt.anyOrder)
			a := mustAnswer(t, q, tt.data)
			checkScore(t, a.AutoScore(6), floatPtr(tt.wantScore))
		})
	}
}

func TestFillBlankEntryCount(t *testing.T) {
	q := fillBlankQuestion(t, false, false)
	a, err := ForQuestion(q)
	if err != nil {
		t.Fatalf("build answer: %v", err)
	}
	if err := a.SetData([]string{"fox"}); err == nil {
		t.Error("expected error for wrong entry count")
	}
}

func TestFillBlankValidation(t *testing.T) {
	p, _ := Get(models.FillBlank)

	raw, _ := json.Marshal(models.FillBlankContent{
		Template: "No markers here",
		Blanks:   [][]string{{"x"}},
	})
	if err := p.ValidateContent(raw); err == nil {
		t.Error("expected error for template without markers")
	}

	raw, _ = json.Marshal(models.FillBlankContent{
		Template: "One {} marker",
		Blanks:   [][]string{{"x"}, {"y"}},
	})
	if err := p.ValidateContent(raw); err == nil {
		t.Error("expected error for marker/answer count mismatch")
	}
}

// ===== ESSAY AND LIKERT TESTS =====

func TestEssayNeedsEvaluation(t *testing.T) {
	model := "A thorough treatment of the topic."
	q := mustQuestion(t, models.Essay, models.EssayContent{SubmissionMode: "inline", ModelAnswer: &model})

	a := mustAnswer(t, q, []string{"My essay text."})
	if !a.IsAnswered() {
		t.Error("inline text should count as answered")
	}
	if a.IsCorrect() != nil {
		t.Error("essays have no correctness")
	}
	if a.AutoScore(20) != nil {
		t.Error("essays must not auto-score")
	}

	blank := mustAnswer(t, q, []string{"   "})
	if blank.IsAnswered() {
		t.Error("whitespace-only text should not count as answered")
	}
}

func TestEssaySanitizeDropsModelAnswer(t *testing.T) {
	model := "The key points are..."
	q := mustQuestion(t, models.Essay, models.EssayContent{SubmissionMode: "both", ModelAnswer: &model})
	p, _ := Get(models.Essay)

	raw, err := p.Sanitize(json.RawMessage(q.Content))
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if strings.Contains(string(raw), "key points") {
		t.Error("model answer leaked into delivery content")
	}
}

func TestLikertAlwaysZeroScore(t *testing.T) {
	q := mustQuestion(t, models.LikertScale, models.LikertContent{Scale: "agree"})

	a := mustAnswer(t, q, []string{"4"})
	if a.IsCorrect() != nil {
		t.Error("likert has no correctness")
	}
	checkScore(t, a.AutoScore(10), floatPtr(0))
}

func TestLikertValidation(t *testing.T) {
	p, _ := Get(models.LikertScale)

	raw, _ := json.Marshal(models.LikertContent{Scale: "custom", CustomLabels: []string{"only one"}})
	if err := p.ValidateContent(raw); err == nil {
		t.Error("expected error for custom scale with one label")
	}
	raw, _ = json.Marshal(models.LikertContent{Scale: "sideways"})
	if err := p.ValidateContent(raw); err == nil {
		t.Error("expected error for unknown scale")
	}
}

// ===== SURVEY QUESTION TESTS =====

func TestSurveyQuestionsScoreZero(t *testing.T) {
	q := mustQuestion(t, models.TrueFalse, models.TrueFalseContent{CorrectAnswer: true})
	q.IsSurvey = true

	a := mustAnswer(t, q, []string{"false"})
	if a.IsCorrect() != nil {
		t.Error("survey questions have no correctness")
	}
	checkScore(t, a.AutoScore(5), floatPtr(0))
}

// ===== HELPERS =====

func checkCorrect(t *testing.T, got, want *bool) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("IsCorrect() = %v, want %v", fmtBoolPtr(got), fmtBoolPtr(want))
	}
	if got != nil && *got != *want {
		t.Errorf("IsCorrect() = %v, want %v", *got, *want)
	}
}

func checkScore(t *testing.T, got, want *float64) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("AutoScore() = %v, want %v", fmtFloatPtr(got), fmtFloatPtr(want))
	}
	if got == nil {
		return
	}
	diff := *got - *want
	if diff < -0.0001 || diff > 0.0001 {
		t.Errorf("AutoScore() = %v, want %v", *got, *want)
	}
}

func fmtBoolPtr(b *bool) interface{} {
	if b == nil {
		return "nil"
	}
	return *b
}

func fmtFloatPtr(f *float64) interface{} {
	if f == nil {
		return "nil"
	}
	return *f
}
