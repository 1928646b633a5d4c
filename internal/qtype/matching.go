package qtype

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sakai-mirror/mneme/internal/models"
)

type matchingPlugin struct{}

func (p *matchingPlugin) Type() models.QuestionType { return models.Matching }

func (p *matchingPlugin) ValidateContent(raw json.RawMessage) error {
	var content models.MatchingContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("invalid matching content: %w", err)
	}
	if len(content.Pairs) < 2 {
		return fmt.Errorf("matching needs at least 2 pairs, got %d", len(content.Pairs))
	}
	seen := make(map[string]bool, len(content.Pairs))
	for _, pair := range content.Pairs {
		if pair.ID == "" || pair.ChoiceID == "" {
			return fmt.Errorf("matching pair missing id or choice id")
		}
		if seen[pair.ID] {
			return fmt.Errorf("duplicate matching pair id %q", pair.ID)
		}
		seen[pair.ID] = true
	}
	return nil
}

// Sanitize keeps the match column and moves every choice, correct and
// distractor alike, into the distractor list, severing the pairing.
func (p *matchingPlugin) Sanitize(raw json.RawMessage) (json.RawMessage, error) {
	var content models.MatchingContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("invalid matching content: %w", err)
	}
	choices := make([]string, 0, len(content.Pairs)+len(content.Distractors))
	for i := range content.Pairs {
		choices = append(choices, content.Pairs[i].Choice)
		content.Pairs[i].Choice = ""
		content.Pairs[i].ChoiceID = ""
	}
	choices = append(choices, content.Distractors...)
	content.Distractors = choices
	return json.Marshal(content)
}

func (p *matchingPlugin) NewAnswer(q *models.Question) (Answer, error) {
	var content models.MatchingContent
	if err := json.Unmarshal(q.Content, &content); err != nil {
		return nil, fmt.Errorf("invalid matching content: %w", err)
	}
	return &matchingAnswer{content: content, survey: q.IsSurvey, picks: map[string]string{}}, nil
}

// matchingAnswer encodes its data as "pairID:choiceID" entries, one per
// answered pair.
type matchingAnswer struct {
	content models.MatchingContent
	survey  bool
	picks   map[string]string
}

func (a *matchingAnswer) SetData(data []string) error {
	pairs := make(map[string]bool, len(a.content.Pairs))
	for _, pair := range a.content.Pairs {
		pairs[pair.ID] = true
	}
	picks := make(map[string]string, len(data))
	for _, entry := range data {
		pairID, choiceID, ok := strings.Cut(entry, ":")
		if !ok {
			return fmt.Errorf("matching entry %q is not pairID:choiceID", entry)
		}
		if !pairs[pairID] {
			return fmt.Errorf("matching entry references unknown pair %q", pairID)
		}
		if choiceID != "" {
			picks[pairID] = choiceID
		}
	}
	a.picks = picks
	return nil
}

func (a *matchingAnswer) Data() []string {
	// Emit in authored pair order so the encoding is stable.
	var rv []string
	for _, pair := range a.content.Pairs {
		if choiceID, ok := a.picks[pair.ID]; ok {
			rv = append(rv, pair.ID+":"+choiceID)
		}
	}
	return rv
}

func (a *matchingAnswer) IsAnswered() bool { return len(a.picks) > 0 }

func (a *matchingAnswer) IsCorrect() *bool {
	if !a.IsAnswered() || a.survey {
		return nil
	}
	for _, pair := range a.content.Pairs {
		if a.picks[pair.ID] != pair.ChoiceID {
			return boolPtr(false)
		}
	}
	return boolPtr(true)
}

// AutoScore awards points/pairs per correctly matched pair and deducts the
// same amount per incorrectly matched pair. Unanswered pairs neither earn
// nor cost anything, and the total never goes below zero.
func (a *matchingAnswer) AutoScore(points float64) *float64 {
	if a.survey {
		return floatPtr(0)
	}
	if len(a.content.Pairs) == 0 {
		return floatPtr(0)
	}
	partial := points / float64(len(a.content.Pairs))
	score := 0.0
	for _, pair := range a.content.Pairs {
		choiceID, answered := a.picks[pair.ID]
		if !answered {
			continue
		}
		if choiceID == pair.ChoiceID {
			score += partial
		} else {
			score -= partial
		}
	}
	if score < 0 {
		score = 0
	}
	return floatPtr(score)
}
