package qtype

import (
	"encoding/json"
	"fmt"

	"github.com/sakai-mirror/mneme/internal/models"
)

type trueFalsePlugin struct{}

func (p *trueFalsePlugin) Type() models.QuestionType { return models.TrueFalse }

func (p *trueFalsePlugin) ValidateContent(raw json.RawMessage) error {
	var content models.TrueFalseContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("invalid true/false content: %w", err)
	}
	return nil
}

func (p *trueFalsePlugin) Sanitize(raw json.RawMessage) (json.RawMessage, error) {
	// The only authored field is the key itself.
	return json.Marshal(struct{}{})
}

func (p *trueFalsePlugin) NewAnswer(q *models.Question) (Answer, error) {
	var content models.TrueFalseContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid true/false content: %w", err)
	}
	return &trueFalseAnswer{content: content, survey: q.IsSurvey}, nil
}

type trueFalseAnswer struct {
	content models.TrueFalseContent
	survey  bool
	value   string
}

func (a *trueFalseAnswer) SetData(data []string) error {
	if len(data) == 0 {
		a.value = ""
		return nil
	}
	switch data[0] {
	case "true", "false", "":
		a.value = data[0]
		return nil
	}
	return fmt.Errorf("true/false answer must be %q or %q, got %q", "true", "false", data[0])
}

func (a *trueFalseAnswer) Data() []string {
	if a.value == "" {
		return nil
	}
	return []string{a.value}
}

func (a *trueFalseAnswer) IsAnswered() bool { return a.value != "" }

func (a *trueFalseAnswer) IsCorrect() *bool {
	if !a.IsAnswered() || a.survey {
		return nil
	}
	want := "false"
	if a.content.CorrectAnswer {
		want = "true"
	}
	return boolPtr(a.value == want)
}

func (a *trueFalseAnswer) AutoScore(points float64) *float64 {
	if a.survey {
		return floatPtr(0)
	}
	if correct := a.IsCorrect(); correct != nil && *correct {
		return floatPtr(points)
	}
	return floatPtr(0)
}
