package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestNewEvent(t *testing.T) {
	payload := &PrintCreatedEvent{PrintID: 1, SessionID: 2, UserID: "alice", NumQuestions: 3}
	event := NewEvent(EventPrintCreated, payload)

	if event.ID == "" {
		t.Error("event has no ID")
	}
	if event.Type != EventPrintCreated {
		t.Errorf("Type = %q, want %q", event.Type, EventPrintCreated)
	}
	if event.Source != "examprint-service" {
		t.Errorf("Source = %q", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("Version = %q", event.Version)
	}
	if time.Since(event.Timestamp) > time.Minute {
		t.Errorf("Timestamp too old: %v", event.Timestamp)
	}
	if event.Data != payload {
		t.Error("payload not carried through")
	}

	other := NewEvent(EventPrintCreated, payload)
	if other.ID == event.ID {
		t.Error("two events share one ID")
	}
}

func TestMockEventPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	publisher := NewMockEventPublisher(logger)
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewEvent(EventPrintCreated, nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := publisher.Publish(ctx, NewEvent(EventPrintSubmitted, nil)); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	captured := publisher.GetPublishedEvents()
	if len(captured) != 2 {
		t.Fatalf("captured %d events, want 2", len(captured))
	}
	if captured[0].Type != EventPrintCreated || captured[1].Type != EventPrintSubmitted {
		t.Errorf("captured order = %q, %q", captured[0].Type, captured[1].Type)
	}

	// snapshot must not alias the internal slice
	captured[0] = nil
	if publisher.GetPublishedEvents()[0] == nil {
		t.Error("snapshot aliases internal storage")
	}

	publisher.ClearEvents()
	if len(publisher.GetPublishedEvents()) != 0 {
		t.Error("events survive ClearEvents")
	}

	if err := publisher.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
