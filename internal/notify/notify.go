// Package notify pushes workspace alerts to the operator: pause and
// recovery transitions, raised by the pause manager's transition callback.
package notify

import (
	"fmt"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// Severity grades how urgently an alert needs operator attention
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityRecovered
	SeverityWarning
	SeverityCritical
)

// Notification is one workspace alert
type Notification struct {
	WorkspaceID string
	Title       string
	Message     string
	Severity    Severity
}

// StateChange builds the alert for a workspace state transition. A pause is
// critical, entering recovery is a warning, returning to active clears it.
func StateChange(workspaceID string, from, to domain.WorkspaceState, reason string) Notification {
	n := Notification{
		WorkspaceID: workspaceID,
		Title:       fmt.Sprintf("Workspace %s: %s -> %s", workspaceID, from, to),
		Message:     reason,
		Severity:    SeverityInfo,
	}
	switch to {
	case domain.WorkspacePaused:
		n.Severity = SeverityCritical
	case domain.WorkspaceRecovering:
		n.Severity = SeverityWarning
	case domain.WorkspaceActive:
		n.Severity = SeverityRecovered
	}
	return n
}

// Notifier is the interface for delivering alerts
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier fans an alert out to several channels
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers the alert on every channel, returning the last error
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
