package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the print engine.
const (
	EventPrintCreated   = "print.created"
	EventPrintAnswered  = "print.answered"
	EventPrintSubmitted = "print.submitted"
	EventPrintsRemoved  = "print.removed"
)

// Event is the envelope for every message this service publishes.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope around payload with a fresh ID and timestamp.
func NewEvent(eventType string, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    "examprint-service",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
}

// EventPublisher publishes audit events. Implementations must be safe for
// concurrent use by multiple service goroutines.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// PrintCreatedEvent records a new print and its drawn question count.
type PrintCreatedEvent struct {
	PrintID      uint      `json:"print_id"`
	SessionID    uint      `json:"session_id"`
	UserID       string    `json:"user_id"`
	NumQuestions int       `json:"num_questions"`
	StartedAt    time.Time `json:"started_at"`
}

// PrintAnsweredEvent records one answer submission.
type PrintAnsweredEvent struct {
	PrintID       uint   `json:"print_id"`
	UserID        string `json:"user_id"`
	QuestionIndex int    `json:"question_index"`
	Blank         bool   `json:"blank"`
}

// PrintSubmittedEvent records a finished print with its final score.
type PrintSubmittedEvent struct {
	PrintID    uint      `json:"print_id"`
	SessionID  uint      `json:"session_id"`
	UserID     string    `json:"user_id"`
	Score      float64   `json:"score"`
	ScoreValid float64   `json:"score_valid"`
	EndedAt    time.Time `json:"ended_at"`
}

// PrintsRemovedEvent records a bulk cleanup of prints.
type PrintsRemovedEvent struct {
	Scope     string `json:"scope"`
	SessionID uint   `json:"session_id,omitempty"`
	CourseID  uint   `json:"course_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Removed   int64  `json:"removed"`
}
