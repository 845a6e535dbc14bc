package core

import "time"

// Coordinator event types for real-time observation.
const (
	EventSessionRegistered = "wait.session_registered"
	EventSessionResolved   = "wait.session_resolved"
	EventOperationFinished = "operation.finished"
	EventInboundDiscarded  = "event.discarded"
)

// CoordinatorEvent is a real-time notification about coordinator activity.
type CoordinatorEvent struct {
	EventType      string `json:"event"`
	SessionID      string `json:"session_id,omitempty"`
	CorrelationKey string `json:"correlation_key,omitempty"`
	Operation      string `json:"operation,omitempty"`
	Status         string `json:"status,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewSessionEvent creates a wait-session lifecycle event.
func NewSessionEvent(eventType, sessionID, correlationKey, status string) *CoordinatorEvent {
	return &CoordinatorEvent{
		EventType:      eventType,
		SessionID:      sessionID,
		CorrelationKey: correlationKey,
		Status:         status,
		Timestamp:      FormatTime(time.Now()),
	}
}

// EventPublisher publishes real-time coordinator events.
type EventPublisher interface {
	Publish(event *CoordinatorEvent) error
	Close() error
}

// EventSubscriber subscribes to real-time coordinator events.
type EventSubscriber interface {
	// SubscribeKey subscribes to events for one correlation key.
	SubscribeKey(correlationKey string) (<-chan *CoordinatorEvent, func(), error)
	// SubscribeAll subscribes to every event.
	SubscribeAll() (<-chan *CoordinatorEvent, func(), error)
}
