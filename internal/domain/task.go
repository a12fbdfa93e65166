package domain

import "time"

// TaskHandle is a schedulable view of a pending task. It exists only while
// the task is pending with dependencies satisfied; once the task leaves
// pending status the handle is superseded by a fresh listing.
type TaskHandle struct {
	ID          string
	WorkspaceID string
	Title       string
	Class       PriorityClass
	RetryCount  int
	CreatedAt   time.Time

	// Score is the computed priority score, larger runs sooner.
	// Filled in by the scheduler, zero until then.
	Score float64
}

// Corrective returns true if the task was flagged by the upstream planner
// as corrective/urgent work
func (t *TaskHandle) Corrective() bool {
	return t.Class == ClassCorrective
}

// Outcome records the result of one task execution attempt
type Outcome struct {
	RunID       string
	TaskID      string
	WorkspaceID string
	Status      OutcomeStatus
	Duration    time.Duration
	Error       string
	RecordedAt  time.Time
}

// PauseRecord is the persisted pause state of a workspace. A workspace with
// no record is ACTIVE.
type PauseRecord struct {
	WorkspaceID         string
	State               WorkspaceState
	Reason              string
	PausedAt            *time.Time
	RecoveryChecks      int
	ConsecutiveFailures int
	UpdatedAt           time.Time
}

// Goal is the read-only view of a business goal consumed by validation
type Goal struct {
	ID                string
	WorkspaceID       string
	Description       string
	Target            float64
	AdjustedThreshold *float64
	CreatedAt         time.Time
}

// EffectiveTarget returns the adjusted threshold when one is on record,
// otherwise the original target
func (g *Goal) EffectiveTarget() float64 {
	if g.AdjustedThreshold != nil {
		return *g.AdjustedThreshold
	}
	return g.Target
}
