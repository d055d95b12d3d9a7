package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventSessionStarted fires when a session transitions idle -> running.
	EventSessionStarted EventType = "session_started"

	// EventSessionProgress carries a human-readable description of the step
	// the controller is about to perform. UI feedback only, not part of the
	// correctness contract.
	EventSessionProgress EventType = "session_progress"

	// EventSessionComplete carries the flattened aggregate of a finished run.
	EventSessionComplete EventType = "session_complete"

	// EventSessionError carries the terminal error of a failed run.
	EventSessionError EventType = "session_error"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus between the session controller
// and its consumers (websocket broadcast, history store).
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
