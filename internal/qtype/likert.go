package qtype

import (
	"encoding/json"
	"fmt"

	"github.com/sakai-mirror/mneme/internal/models"
)

type likertPlugin struct{}

func (p *likertPlugin) Type() models.QuestionType { return models.LikertScale }

func (p *likertPlugin) ValidateContent(raw json.RawMessage) error {
	var content models.LikertContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("invalid likert content: %w", err)
	}
	switch content.Scale {
	case "agree", "rating", "yes_no":
		return nil
	case "custom":
		if len(content.CustomLabels) < 2 {
			return fmt.Errorf("custom likert scale needs at least 2 labels, got %d", len(content.CustomLabels))
		}
		return nil
	}
	return fmt.Errorf("unknown likert scale %q", content.Scale)
}

func (p *likertPlugin) Sanitize(raw json.RawMessage) (json.RawMessage, error) {
	// Nothing in the scale definition reveals an answer.
	return raw, nil
}

func (p *likertPlugin) NewAnswer(q *models.Question) (Answer, error) {
	var content models.LikertContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid likert content: %w", err)
	}
	return &likertAnswer{content: content}, nil
}

type likertAnswer struct {
	content models.LikertContent
	value   string
}

func (a *likertAnswer) SetData(data []string) error {
	if len(data) == 0 {
		a.value = ""
		return nil
	}
	a.value = data[0]
	return nil
}

func (a *likertAnswer) Data() []string {
	if a.value == "" {
		return nil
	}
	return []string{a.value}
}

func (a *likertAnswer) IsAnswered() bool { return a.value != "" }

// Likert responses are opinions, not answers to grade.
func (a *likertAnswer) IsCorrect() *bool { return nil }

func (a *likertAnswer) AutoScore(points float64) *float64 { return floatPtr(0) }
