// Package events publishes domain events to Kafka. Consumers downstream
// (gradebook, notifications, analytics) react to them; the engine itself
// never blocks on a consumer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Event types
const (
	AssessmentPublished    = "assessment.published"
	AssessmentRetracted    = "assessment.retracted"
	SubmissionStarted      = "submission.started"
	SubmissionCompleted    = "submission.completed"
	SubmissionTimedOut     = "submission.timed_out"
	SubmissionReleased     = "submission.released"
	GradebookScoreReported = "gradebook.score_reported"
)

// Event is the envelope every published message carries.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// GradebookScore is the payload of GradebookScoreReported: the official
// score for one user on one assessment.
type GradebookScore struct {
	AssessmentID uint    `json:"assessment_id"`
	Context      string  `json:"context"`
	UserID       string  `json:"user_id"`
	Score        float64 `json:"score"`
	TotalPoints  float64 `json:"total_points"`
	SubmissionID uint    `json:"submission_id"`
}

// SubmissionEvent is the payload of the submission lifecycle events.
type SubmissionEvent struct {
	SubmissionID uint   `json:"submission_id"`
	AssessmentID uint   `json:"assessment_id"`
	UserID       string `json:"user_id"`
	Reason       string `json:"reason,omitempty"`
}

// AssessmentEvent is the payload of the assessment lifecycle events.
type AssessmentEvent struct {
	AssessmentID uint   `json:"assessment_id"`
	Context      string `json:"context"`
	Title        string `json:"title"`
	ActorID      string `json:"actor_id"`
}

// EventPublisher publishes domain events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

// NewEvent builds the envelope for a payload.
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "mneme-service",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ===== KAFKA PUBLISHER =====

// KafkaEventPublisher publishes events to a Kafka topic via watermill.
type KafkaEventPublisher struct {
	publisher message.Publisher
	topic     string
	logger    *slog.Logger
}

func NewKafkaEventPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaEventPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &KafkaEventPublisher{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}, nil
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	event := NewEvent(eventType, data)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", eventType)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "Published event",
		"event_id", event.ID,
		"event_type", eventType,
		"topic", p.topic)
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.publisher.Close()
}

// ===== MOCK PUBLISHER =====

// MockEventPublisher records events in memory for tests.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, NewEvent(eventType, data))
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

// GetPublishedEvents returns a copy of everything published so far.
func (m *MockEventPublisher) GetPublishedEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// GetEventsByType filters published events by type.
func (m *MockEventPublisher) GetEventsByType(eventType string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rv []Event
	for _, e := range m.events {
		if e.Type == eventType {
			rv = append(rv, e)
		}
	}
	return rv
}

// ClearEvents drops all recorded events.
func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
