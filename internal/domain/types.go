package domain

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusComplete   TaskStatus = "complete"
	StatusFailed     TaskStatus = "failed"
)

// PriorityClass distinguishes corrective/urgent work from normal work
type PriorityClass string

const (
	ClassNormal     PriorityClass = ""
	ClassCorrective PriorityClass = "corrective"
)

// WorkspaceState represents the pause state machine position of a workspace
type WorkspaceState string

const (
	WorkspaceActive     WorkspaceState = "active"
	WorkspacePaused     WorkspaceState = "paused"
	WorkspaceRecovering WorkspaceState = "recovering"
)

// OutcomeStatus represents the result of one task execution
type OutcomeStatus string

const (
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
)

// CallPriority orders concurrent waiters at the rate limiter
type CallPriority int

const (
	CallPriorityLow CallPriority = iota
	CallPriorityNormal
	CallPriorityHigh
)
