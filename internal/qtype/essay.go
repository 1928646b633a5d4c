package qtype

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sakai-mirror/mneme/internal/models"
)

type essayPlugin struct{}

func (p *essayPlugin) Type() models.QuestionType { return models.Essay }

func (p *essayPlugin) ValidateContent(raw json.RawMessage) error {
	var content models.EssayContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("invalid essay content: %w", err)
	}
	switch content.SubmissionMode {
	case "inline", "attachments", "both":
		return nil
	}
	return fmt.Errorf("unknown essay submission mode %q", content.SubmissionMode)
}

func (p *essayPlugin) Sanitize(raw json.RawMessage) (json.RawMessage, error) {
	var content models.EssayContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("invalid essay content: %w", err)
	}
	content.ModelAnswer = nil
	return json.Marshal(content)
}

func (p *essayPlugin) NewAnswer(q *models.Question) (Answer, error) {
	var content models.EssayContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid essay content: %w", err)
	}
	return &essayAnswer{content: content}, nil
}

// essayAnswer holds the inline text as entry 0 and attachment references
// after it.
type essayAnswer struct {
	content models.EssayContent
	entries []string
}

func (a *essayAnswer) SetData(data []string) error {
	a.entries = append([]string(nil), data...)
	return nil
}

func (a *essayAnswer) Data() []string { return a.entries }

func (a *essayAnswer) IsAnswered() bool {
	for _, entry := range a.entries {
		if strings.TrimSpace(entry) != "" {
			return true
		}
	}
	return false
}

// Essays have no machine-checkable key.
func (a *essayAnswer) IsCorrect() *bool { return nil }

// Essays are scored by an evaluator, never automatically.
func (a *essayAnswer) AutoScore(points float64) *float64 { return nil }
