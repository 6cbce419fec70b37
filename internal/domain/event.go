package domain

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being emitted.
type EventType string

const (
	EventPlanStarted     EventType = "plan.started"
	EventStepStarted     EventType = "step.started"
	EventStepProgress    EventType = "step.progress"
	EventStepCompleted   EventType = "step.completed"
	EventStepFailed      EventType = "step.failed"
	EventToolStarted     EventType = "tool.started"
	EventToolCompleted   EventType = "tool.completed"
	EventReasoningDelta  EventType = "reasoning.delta"
	EventTextDelta       EventType = "text.delta"
	EventArtifactCreated EventType = "artifact.created"
	EventStatusChanged   EventType = "status.changed"
	EventPlanCompleted   EventType = "plan.completed"
	EventAgentRouted     EventType = "agent.routed"
)

// Event is the envelope delivered to bus subscribers. It is never mutated
// after emission.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	TurnID    string          `json:"turn_id,omitempty"`
	StepID    string          `json:"step_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is delivered.
type EventHandler func(Event)

// EventBus is the runtime's notification backbone.
type EventBus interface {
	// Emit queues the event for the next batched flush.
	Emit(e Event)
	// EmitImmediate dispatches the event synchronously.
	EmitImmediate(e Event)
	// Subscribe registers a handler for one event type.
	// Returns an unsubscribe function.
	Subscribe(t EventType, h EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(h EventHandler) func()
	// Snapshot returns the most recent events, oldest first.
	Snapshot() []Event
}
