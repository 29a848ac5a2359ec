package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by the orchestration core.
type EventType string

const (
	EventQueryStarted      EventType = "query.started"
	EventQueryCompleted    EventType = "query.completed"
	EventRoutingDecided    EventType = "routing.decided"
	EventCapabilityInvoked EventType = "capability.invoked"
	EventReasoningStep     EventType = "reasoning.step"
	EventQueryError        EventType = "query.error"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	RunID     string
	Query     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// NewEvent builds a default event with timestamp.
func NewEvent(eventType EventType, runID string, query string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		RunID:     runID,
		Query:     query,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
