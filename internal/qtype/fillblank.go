package qtype

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sakai-mirror/mneme/internal/models"
)

type fillBlankPlugin struct{}

func (p *fillBlankPlugin) Type() models.QuestionType { return models.FillBlank }

func (p *fillBlankPlugin) ValidateContent(raw json.RawMessage) error {
	var content models.FillBlankContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("invalid fill-in content: %w", err)
	}
	markers := strings.Count(content.Template, "{}")
	if markers == 0 {
		return fmt.Errorf("fill-in template has no {} markers")
	}
	if markers != len(content.Blanks) {
		return fmt.Errorf("fill-in template has %d markers but %d answer sets", markers, len(content.Blanks))
	}
	for i, accepted := range content.Blanks {
		if len(accepted) == 0 {
			return fmt.Errorf("blank %d has no accepted answers", i+1)
		}
	}
	return nil
}

func (p *fillBlankPlugin) Sanitize(raw json.RawMessage) (json.RawMessage, error) {
	var content models.FillBlankContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("invalid fill-in content: %w", err)
	}
	content.Blanks = nil
	return json.Marshal(content)
}

func (p *fillBlankPlugin) NewAnswer(q *models.Question) (Answer, error) {
	var content models.FillBlankContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid fill-in content: %w", err)
	}
	return &fillBlankAnswer{content: content, survey: q.IsSurvey}, nil
}

// fillBlankAnswer holds one entry per blank, in template order.
type fillBlankAnswer struct {
	content models.FillBlankContent
	survey  bool
	entries []string
}

func (a *fillBlankAnswer) SetData(data []string) error {
	if len(data) > 0 && len(data) != len(a.content.Blanks) {
		return fmt.Errorf("fill-in expects %d entries, got %d", len(a.content.Blanks), len(data))
	}
	a.entries = append([]string(nil), data...)
	return nil
}

func (a *fillBlankAnswer) Data() []string { return a.entries }

func (a *fillBlankAnswer) IsAnswered() bool {
	for _, entry := range a.entries {
		if strings.TrimSpace(entry) != "" {
			return true
		}
	}
	return false
}

func (a *fillBlankAnswer) IsCorrect() *bool {
	if !a.IsAnswered() || a.survey {
		return nil
	}
	return boolPtr(a.correctCount() == len(a.content.Blanks))
}

// AutoScore awards an even share of the points per correct blank. Wrong or
// empty blanks earn nothing and cost nothing.
func (a *fillBlankAnswer) AutoScore(points float64) *float64 {
	if a.survey {
		return floatPtr(0)
	}
	if len(a.content.Blanks) == 0 {
		return floatPtr(0)
	}
	partial := points / float64(len(a.content.Blanks))
	return floatPtr(partial * float64(a.correctCount()))
}

func (a *fillBlankAnswer) correctCount() int {
	if a.content.AnyOrder {
		return a.correctAnyOrder()
	}
	count := 0
	for i, accepted := range a.content.Blanks {
		if i < len(a.entries) && matchBlank(a.entries[i], accepted, a.content.CaseSensitive) {
			count++
		}
	}
	return count
}

// correctAnyOrder credits each entry against any not-yet-used blank, so
// answers typed into the wrong positions still score.
func (a *fillBlankAnswer) correctAnyOrder() int {
	used := make([]bool, len(a.content.Blanks))
	count := 0
	for _, entry := range a.entries {
		for i, accepted := range a.content.Blanks {
			if used[i] || !matchBlank(entry, accepted, a.content.CaseSensitive) {
				continue
			}
			used[i] = true
			count++
			break
		}
	}
	return count
}

func matchBlank(entry string, accepted []string, caseSensitive bool) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return false
	}
	for _, want := range accepted {
		want = strings.TrimSpace(want)
		if caseSensitive {
			if entry == want {
				return true
			}
		} else if strings.EqualFold(entry, want) {
			return true
		}
	}
	return false
}
