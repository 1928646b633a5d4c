package qtype

import (
	"encoding/json"
	"fmt"

	"github.com/sakai-mirror/mneme/internal/models"
)

type multipleChoicePlugin struct{}

func (p *multipleChoicePlugin) Type() models.QuestionType { return models.MultipleChoice }

func (p *multipleChoicePlugin) ValidateContent(raw json.RawMessage) error {
	var content models.MultipleChoiceContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("invalid multiple choice content: %w", err)
	}
	if len(content.Options) < 2 {
		return fmt.Errorf("multiple choice needs at least 2 options, got %d", len(content.Options))
	}
	if len(content.CorrectAnswers) == 0 {
		return fmt.Errorf("multiple choice needs at least one correct answer")
	}
	if content.SingleSelect && len(content.CorrectAnswers) > 1 {
		return fmt.Errorf("single-select question cannot have %d correct answers", len(content.CorrectAnswers))
	}
	valid := make(map[string]bool, len(content.Options))
	for _, opt := range content.Options {
		valid[opt.ID] = true
	}
	for _, id := range content.CorrectAnswers {
		if !valid[id] {
			return fmt.Errorf("correct answer %q is not an option", id)
		}
	}
	return nil
}

func (p *multipleChoicePlugin) Sanitize(raw json.RawMessage) (json.RawMessage, error) {
	var content models.MultipleChoiceContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("invalid multiple choice content: %w", err)
	}
	content.CorrectAnswers = nil
	return json.Marshal(content)
}

func (p *multipleChoicePlugin) NewAnswer(q *models.Question) (Answer, error) {
	var content models.MultipleChoiceContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid multiple choice content: %w", err)
	}
	return &multipleChoiceAnswer{content: content, survey: q.IsSurvey}, nil
}

type multipleChoiceAnswer struct {
	content  models.MultipleChoiceContent
	survey   bool
	selected []string
}

func (a *multipleChoiceAnswer) SetData(data []string) error {
	if a.content.SingleSelect && len(data) > 1 {
		return fmt.Errorf("single-select question got %d selections", len(data))
	}
	valid := make(map[string]bool, len(a.content.Options))
	for _, opt := range a.content.Options {
		valid[opt.ID] = true
	}
	for _, id := range data {
		if !valid[id] {
			return fmt.Errorf("selection %q is not an option", id)
		}
	}
	a.selected = append([]string(nil), data...)
	return nil
}

func (a *multipleChoiceAnswer) Data() []string { return a.selected }

func (a *multipleChoiceAnswer) IsAnswered() bool { return len(a.selected) > 0 }

// IsCorrect requires the selected set to match the correct set exactly.
// Partial or superset selections score nothing.
func (a *multipleChoiceAnswer) IsCorrect() *bool {
	if !a.IsAnswered() || a.survey {
		return nil
	}
	if len(a.selected) != len(a.content.CorrectAnswers) {
		return boolPtr(false)
	}
	want := make(map[string]bool, len(a.content.CorrectAnswers))
	for _, id := range a.content.CorrectAnswers {
		want[id] = true
	}
	for _, id := range a.selected {
		if !want[id] {
			return boolPtr(false)
		}
	}
	return boolPtr(true)
}

func (a *multipleChoiceAnswer) AutoScore(points float64) *float64 {
	if a.survey {
		return floatPtr(0)
	}
	if correct := a.IsCorrect(); correct != nil && *correct {
		return floatPtr(points)
	}
	return floatPtr(0)
}
