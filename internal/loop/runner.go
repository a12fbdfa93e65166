package loop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hochfrequenz/agent-conductor/internal/admission"
	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/health"
	"github.com/hochfrequenz/agent-conductor/internal/invoke"
	"github.com/hochfrequenz/agent-conductor/internal/pause"
	"github.com/hochfrequenz/agent-conductor/internal/ratelimit"
	"github.com/hochfrequenz/agent-conductor/internal/scheduler"
)

// TaskSource is the persistent task store as seen by the loop
type TaskSource interface {
	ListWorkspaces() ([]string, error)
	ListPendingTasks(workspaceID string) ([]*domain.TaskHandle, error)
	CountPendingTasks(workspaceID string) (int, error)
	UpdateTaskStatus(id string, status domain.TaskStatus) error
	IncrementRetry(id string) error
	RecordOutcome(o *domain.Outcome) error
	ListRecentOutcomes(workspaceID string, limit int) ([]*domain.Outcome, error)
}

// ProviderFunc selects the inference provider for a workspace
type ProviderFunc func(workspaceID string) string

// result is what one finished execution reports back to the accounting step
type result struct {
	workspaceID string
	taskID      string
	outcome     *domain.Outcome // nil when the task goes back to pending untouched
	requeue     bool
}

// Runner is the top-level execution control loop. Each tick it walks the
// eligible workspaces, orders their pending work, and dispatches task
// executions concurrently, bounded by the global ceiling and each
// workspace's admission limit. All outcome accounting funnels through one
// goroutine so pause records and health windows never need per-task locks.
type Runner struct {
	store    TaskSource
	limiter  *ratelimit.Limiter
	monitor  *health.Monitor
	admit    *admission.Controller
	pauses   *pause.Manager
	sched    *scheduler.Scheduler
	client   invoke.Client
	provider ProviderFunc

	mu  sync.RWMutex
	cfg config.LoopConfig

	sem        *semaphore.Weighted
	inFlight   map[string]int
	inFlightMu sync.Mutex

	results chan result
	onEvent EventFunc
	wg      sync.WaitGroup
}

// NewRunner wires the control loop
func NewRunner(cfg config.LoopConfig, store TaskSource, limiter *ratelimit.Limiter, monitor *health.Monitor, admit *admission.Controller, pauses *pause.Manager, client invoke.Client) *Runner {
	return &Runner{
		store:    store,
		limiter:  limiter,
		monitor:  monitor,
		admit:    admit,
		pauses:   pauses,
		sched:    scheduler.New(),
		client:   client,
		provider: func(string) string { return "default" },
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.GlobalMaxRuns)),
		inFlight: make(map[string]int),
		results:  make(chan result, 256),
	}
}

// SetProviderFunc overrides provider selection per workspace
func (r *Runner) SetProviderFunc(fn ProviderFunc) {
	r.provider = fn
}

// SetEventFunc registers a callback for loop events
func (r *Runner) SetEventFunc(fn EventFunc) {
	r.onEvent = fn
}

// SetConfig swaps loop tunables, used by config hot-reload. The global
// ceiling is fixed at startup; interval and timeout take effect on the
// next pass.
func (r *Runner) SetConfig(cfg config.LoopConfig) {
	r.mu.Lock()
	cfg.GlobalMaxRuns = r.cfg.GlobalMaxRuns
	r.cfg = cfg
	r.mu.Unlock()
}

// InFlight returns the number of currently executing tasks for a workspace
func (r *Runner) InFlight(workspaceID string) int {
	r.inFlightMu.Lock()
	defer r.inFlightMu.Unlock()
	return r.inFlight[workspaceID]
}

// WarmHealth seeds the health windows from persisted outcomes so a restart
// does not reset every workspace to cold-start optimism
func (r *Runner) WarmHealth(windowSize int) error {
	workspaces, err := r.store.ListWorkspaces()
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, ws := range workspaces {
		ws := ws
		g.Go(func() error {
			outcomes, err := r.store.ListRecentOutcomes(ws, windowSize)
			if err != nil {
				return fmt.Errorf("warming health for %s: %w", ws, err)
			}
			for _, o := range outcomes {
				r.monitor.Record(*o)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run drives the loop until the context is cancelled. It blocks.
func (r *Runner) Run(ctx context.Context) {
	go r.account()

	r.mu.RLock()
	interval := r.cfg.Interval
	r.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Let in-flight executions finish reporting, then drain.
			r.wg.Wait()
			close(r.results)
			return
		case <-ticker.C:
			r.runPass(ctx)

			r.mu.RLock()
			next := r.cfg.Interval
			r.mu.RUnlock()
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// runPass executes one scheduling pass
func (r *Runner) runPass(ctx context.Context) {
	workspaces, err := r.store.ListWorkspaces()
	if err != nil {
		log.Printf("loop: listing workspaces: %v", err)
		return
	}

	now := time.Now()
	dispatched := 0

	for _, ws := range workspaces {
		pending, err := r.store.CountPendingTasks(ws)
		if err != nil {
			log.Printf("loop: counting pending tasks for %s: %v", ws, err)
			continue
		}

		snap := r.monitor.Snapshot(ws, pending)
		r.pauses.Check(ws, snap.Score, now)

		// Single enforcement point: paused/recovering workspaces are
		// skipped entirely, their pending tasks stay pending.
		if !r.pauses.Eligible(ws) {
			continue
		}
		if pending == 0 {
			continue
		}

		// Advisory quota, recomputed fresh every pass.
		limit := r.admit.Limit(snap)

		tasks, err := r.store.ListPendingTasks(ws)
		if err != nil {
			log.Printf("loop: listing tasks for %s: %v", ws, err)
			continue
		}

		for _, task := range r.sched.Order(tasks) {
			// Re-checked immediately before every dispatch: exceeding the
			// admission limit is an invariant violation, not a log line.
			if r.InFlight(ws) >= limit {
				break
			}
			if !r.sem.TryAcquire(1) {
				// Global ceiling reached, nothing more this pass.
				r.emit(Event{Type: EventPassFinished, Message: fmt.Sprintf("global ceiling reached after %d dispatches", dispatched), At: time.Now()})
				return
			}

			if err := r.store.UpdateTaskStatus(task.ID, domain.StatusInProgress); err != nil {
				log.Printf("loop: marking task %s in progress: %v", task.ID, err)
				r.sem.Release(1)
				continue
			}

			r.inFlightMu.Lock()
			r.inFlight[ws]++
			r.inFlightMu.Unlock()

			r.emit(Event{Type: EventDispatched, WorkspaceID: ws, TaskID: task.ID, At: time.Now()})

			r.wg.Add(1)
			go r.execute(ctx, task)
			dispatched++
		}
	}

	if dispatched > 0 {
		r.emit(Event{Type: EventPassFinished, Message: fmt.Sprintf("%d dispatches", dispatched), At: time.Now()})
	}
}

// execute runs one task to completion on its own goroutine
func (r *Runner) execute(ctx context.Context, task *domain.TaskHandle) {
	defer r.wg.Done()
	defer r.sem.Release(1)

	r.mu.RLock()
	timeout := r.cfg.TaskTimeout
	r.mu.RUnlock()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider := r.provider(task.WorkspaceID)
	started := time.Now()

	priority := domain.CallPriorityNormal
	if task.Corrective() {
		priority = domain.CallPriorityHigh
	}

	if _, err := r.limiter.Acquire(runCtx, provider, priority); err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			r.report(task, failedOutcome(task, started, "timed out waiting for rate limiter"))
		case errors.Is(err, context.Canceled):
			// Shutdown: the task goes back to pending untouched.
			r.report(task, nil)
		default:
			// Unknown provider or other misconfiguration: the task would
			// requeue on every pass, so make the loop visible.
			log.Printf("loop: acquiring provider %s for task %s: %v", provider, task.ID, err)
			r.emit(Event{Type: EventFailed, WorkspaceID: task.WorkspaceID, TaskID: task.ID,
				Message: fmt.Sprintf("rate limiter: %v", err), At: time.Now()})
			r.report(task, nil)
		}
		return
	}

	res, err := r.client.Invoke(runCtx, provider, invoke.Payload{
		TaskID:      task.ID,
		WorkspaceID: task.WorkspaceID,
		Prompt:      task.Title,
	})

	switch {
	case invoke.IsRateLimit(err):
		// Provider overload is contained at the limiter, never a task
		// failure by itself.
		cooldown := r.limiter.HandleError(provider)
		r.emit(Event{Type: EventRateLimited, WorkspaceID: task.WorkspaceID, TaskID: task.ID,
			Message: fmt.Sprintf("provider %s cooling down for %s", provider, cooldown.Round(time.Millisecond)), At: time.Now()})
		r.report(task, nil)

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.limiter.HandleSuccess(provider)
		r.report(task, failedOutcome(task, started, fmt.Sprintf("exceeded wall-clock timeout %s", timeout)))

	case err != nil:
		r.limiter.HandleSuccess(provider)
		r.report(task, failedOutcome(task, started, err.Error()))

	default:
		r.limiter.HandleSuccess(provider)
		duration := res.Duration
		if duration == 0 {
			duration = time.Since(started)
		}
		r.report(task, &domain.Outcome{
			RunID:       uuid.NewString(),
			TaskID:      task.ID,
			WorkspaceID: task.WorkspaceID,
			Status:      domain.OutcomeCompleted,
			Duration:    duration,
			RecordedAt:  time.Now(),
		})
	}
}

func failedOutcome(task *domain.TaskHandle, started time.Time, msg string) *domain.Outcome {
	return &domain.Outcome{
		RunID:       uuid.NewString(),
		TaskID:      task.ID,
		WorkspaceID: task.WorkspaceID,
		Status:      domain.OutcomeFailed,
		Duration:    time.Since(started),
		Error:       msg,
		RecordedAt:  time.Now(),
	}
}

func (r *Runner) report(task *domain.TaskHandle, outcome *domain.Outcome) {
	r.results <- result{
		workspaceID: task.WorkspaceID,
		taskID:      task.ID,
		outcome:     outcome,
		requeue:     outcome == nil,
	}
}

// account is the single serialized accounting step. Every execution result
// passes through here, so the store, health window, pause record and
// in-flight counters see a consistent ordering without per-task locking.
func (r *Runner) account() {
	for res := range r.results {
		r.processResult(res)
	}
}

// processResult applies one execution result to the store, the health
// window and the pause accounting
func (r *Runner) processResult(res result) {
	r.inFlightMu.Lock()
	if r.inFlight[res.workspaceID] > 0 {
		r.inFlight[res.workspaceID]--
	}
	r.inFlightMu.Unlock()

	if res.requeue {
		if err := r.store.UpdateTaskStatus(res.taskID, domain.StatusPending); err != nil {
			log.Printf("loop: returning task %s to pending: %v", res.taskID, err)
		}
		return
	}

	o := res.outcome
	if err := r.store.RecordOutcome(o); err != nil {
		log.Printf("loop: recording outcome for %s: %v", o.TaskID, err)
	}

	if o.Status == domain.OutcomeCompleted {
		if err := r.store.UpdateTaskStatus(o.TaskID, domain.StatusComplete); err != nil {
			log.Printf("loop: completing task %s: %v", o.TaskID, err)
		}
		r.emit(Event{Type: EventCompleted, WorkspaceID: o.WorkspaceID, TaskID: o.TaskID, At: time.Now()})
	} else {
		// Failed work returns to pending with a bumped retry count; the
		// scheduler nudges it forward on the next passes.
		if err := r.store.IncrementRetry(o.TaskID); err != nil {
			log.Printf("loop: requeueing failed task %s: %v", o.TaskID, err)
		}
		r.emit(Event{Type: EventFailed, WorkspaceID: o.WorkspaceID, TaskID: o.TaskID, Message: o.Error, At: time.Now()})
	}

	r.monitor.Record(*o)
	r.pauses.RecordOutcome(o.WorkspaceID, o.Status == domain.OutcomeCompleted)
}

func (r *Runner) emit(e Event) {
	if r.onEvent != nil {
		r.onEvent(e)
	}
}
