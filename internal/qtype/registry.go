// Package qtype holds the per-question-type behavior: content validation,
// answer evaluation and automatic scoring, and sanitization of authored
// content for delivery. Everything outside this package treats questions
// generically and dispatches through the registry.
package qtype

import (
	"encoding/json"
	"fmt"

	"github.com/sakai-mirror/mneme/internal/models"
)

// Answer is the type-specific view of a learner's response to one question.
// Implementations carry the authored content they were built from, so
// correctness and scoring need no further lookups.
type Answer interface {
	// SetData replaces the response with the given values. The meaning of
	// the slice is type-specific (a single token for true/false, selected
	// option ids for multiple choice, "pairID:choiceID" entries for
	// matching, one entry per blank for fill-in).
	SetData(data []string) error

	// Data returns the current response in the same encoding SetData takes.
	Data() []string

	// IsAnswered reports whether the learner provided any response.
	IsAnswered() bool

	// IsCorrect reports full correctness, or nil when correctness is not
	// defined for the type (essay, likert scale, survey questions).
	IsCorrect() *bool

	// AutoScore computes the automatic score against the given point value,
	// or nil when the type needs human evaluation.
	AutoScore(points float64) *float64
}

// Plugin is the behavior contract one question type registers.
type Plugin interface {
	// Type identifies the question type this plugin serves.
	Type() models.QuestionType

	// ValidateContent checks authored content for structural completeness.
	ValidateContent(raw json.RawMessage) error

	// Sanitize returns a delivery copy of the content with everything that
	// would reveal the correct answer removed.
	Sanitize(raw json.RawMessage) (json.RawMessage, error)

	// NewAnswer builds an empty Answer bound to the question's content.
	NewAnswer(q *models.Question) (Answer, error)
}

var registry = map[models.QuestionType]Plugin{}

func register(p Plugin) {
	registry[p.Type()] = p
}

// Get returns the plugin for a question type.
func Get(t models.QuestionType) (Plugin, error) {
	p, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("unknown question type %q", t)
	}
	return p, nil
}

// ForQuestion resolves the plugin for a question and builds its answer in
// one step.
func ForQuestion(q *models.Question) (Answer, error) {
	p, err := Get(q.Type)
	if err != nil {
		return nil, err
	}
	return p.NewAnswer(q)
}

func init() {
	register(&trueFalsePlugin{})
	register(&multipleChoicePlugin{})
	register(&matchingPlugin{})
	register(&fillBlankPlugin{})
	register(&essayPlugin{})
	register(&likertPlugin{})
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }
