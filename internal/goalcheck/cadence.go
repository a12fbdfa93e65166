package goalcheck

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/health"
)

// GoalSource lists the goals to evaluate
type GoalSource interface {
	ListGoals() ([]*domain.Goal, error)
}

// WorkspaceView provides the health and pause signals a decision needs
type WorkspaceView interface {
	Snapshot(workspaceID string, pendingTasks int) health.Snapshot
	State(workspaceID string) domain.WorkspaceState
}

// DecisionFunc receives every decision the cadence produces
type DecisionFunc func(goal *domain.Goal, d domain.ValidationDecision)

// Cadence runs the validation pass on a cron schedule, at a much lower
// frequency than the execution loop. Decisions are audit-logged and handed
// to the callback; the strict validation itself is an external collaborator.
type Cadence struct {
	optimizer *Optimizer
	goals     GoalSource
	view      WorkspaceView
	schedule  cron.Schedule
	onDecide  DecisionFunc

	mu      sync.Mutex
	lastRun time.Time
	running bool

	stopChan chan struct{}
}

// ParseCron parses a standard five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NewCadence creates a Cadence with the given cron expression
func NewCadence(expr string, optimizer *Optimizer, goals GoalSource, view WorkspaceView, onDecide DecisionFunc) (*Cadence, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return nil, err
	}
	return &Cadence{
		optimizer: optimizer,
		goals:     goals,
		view:      view,
		schedule:  schedule,
		onDecide:  onDecide,
		stopChan:  make(chan struct{}),
	}, nil
}

// NextRun returns the next scheduled validation pass
func (c *Cadence) NextRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	last := c.lastRun
	if last.IsZero() {
		last = time.Now()
	}
	return c.schedule.Next(last)
}

// ShouldRun returns true if a validation pass is due
func (c *Cadence) ShouldRun() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return false
	}
	last := c.lastRun
	if last.IsZero() {
		last = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(c.schedule.Next(last))
}

// Start begins the cadence loop, checking once a minute whether a pass is
// due. Blocks until Stop is called.
func (c *Cadence) Start() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			if c.ShouldRun() {
				c.mu.Lock()
				c.running = true
				c.mu.Unlock()

				c.RunOnce()

				c.mu.Lock()
				c.running = false
				c.lastRun = time.Now()
				c.mu.Unlock()
			}
		}
	}
}

// Stop stops the cadence loop
func (c *Cadence) Stop() {
	close(c.stopChan)
}

// RunOnce evaluates every goal once and audits the decisions
func (c *Cadence) RunOnce() {
	goals, err := c.goals.ListGoals()
	if err != nil {
		log.Printf("goalcheck: listing goals: %v", err)
		return
	}

	now := time.Now()
	for _, g := range goals {
		snap := c.view.Snapshot(g.WorkspaceID, 0)
		state := c.view.State(g.WorkspaceID)
		d := c.optimizer.Decide(g, snap, state, now)

		log.Printf("goalcheck: goal=%s workspace=%s verdict=%s proceed=%t confidence=%.2f reason=%q",
			g.ID, g.WorkspaceID, d.Verdict, d.ShouldProceed, d.Confidence, d.Reason)

		if c.onDecide != nil {
			c.onDecide(g, d)
		}
	}
}
