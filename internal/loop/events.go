package loop

import "time"

// EventType classifies a loop event
type EventType string

const (
	EventDispatched   EventType = "dispatched"
	EventCompleted    EventType = "completed"
	EventFailed       EventType = "failed"
	EventRateLimited  EventType = "rate_limited"
	EventPassFinished EventType = "pass_finished"
	EventStateChanged EventType = "state_changed"
)

// Event is a loop observation emitted for logging and the ops API feed
type Event struct {
	Type        EventType `json:"type"`
	WorkspaceID string    `json:"workspace_id,omitempty"`
	TaskID      string    `json:"task_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// EventFunc receives loop events
type EventFunc func(Event)
