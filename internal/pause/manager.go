package pause

import (
	"fmt"
	"sync"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// Store persists pause records so workspace state survives restarts
type Store interface {
	SavePauseRecord(rec *domain.PauseRecord) error
	ListPauseRecords() ([]*domain.PauseRecord, error)
}

// TransitionFunc is called after a workspace changes state
type TransitionFunc func(workspaceID string, from, to domain.WorkspaceState, reason string)

// Manager owns the per-workspace pause state machine:
//
//	ACTIVE -> PAUSED      too many consecutive failures, or health pinned
//	                      below the hard floor on two consecutive checks
//	PAUSED -> RECOVERING  periodic re-check finds health above the recovery floor
//	RECOVERING -> ACTIVE  recovery holds for N consecutive periodic checks
//	RECOVERING -> PAUSED  any single failed check, no partial credit
//
// PAUSED workspaces are excluded from scheduling through Eligible; that is
// the single enforcement point, nothing else may bypass it.
type Manager struct {
	cfg   config.PauseConfig
	store Store

	mu           sync.Mutex
	records      map[string]*domain.PauseRecord
	lowStreak    map[string]int
	lastRecheck  map[string]time.Time
	onTransition TransitionFunc
	pending      []transitionEvent
}

// transitionEvent buffers a state change so the callback can run after
// m.mu is released; callbacks may do slow I/O (webhooks) and must not
// stall the accounting path.
type transitionEvent struct {
	workspaceID string
	from, to    domain.WorkspaceState
	reason      string
}

// NewManager creates a Manager, restoring persisted records from the store
func NewManager(cfg config.PauseConfig, store Store) (*Manager, error) {
	m := &Manager{
		cfg:         cfg,
		store:       store,
		records:     make(map[string]*domain.PauseRecord),
		lowStreak:   make(map[string]int),
		lastRecheck: make(map[string]time.Time),
	}

	if store != nil {
		recs, err := store.ListPauseRecords()
		if err != nil {
			return nil, fmt.Errorf("loading pause records: %w", err)
		}
		for _, r := range recs {
			m.records[r.WorkspaceID] = r
		}
	}

	return m, nil
}

// SetConfig swaps the thresholds, used by config hot-reload
func (m *Manager) SetConfig(cfg config.PauseConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// SetTransitionFunc registers a callback for state transitions
func (m *Manager) SetTransitionFunc(fn TransitionFunc) {
	m.mu.Lock()
	m.onTransition = fn
	m.mu.Unlock()
}

// State returns the current state of a workspace, ACTIVE when unknown
func (m *Manager) State(workspaceID string) domain.WorkspaceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(workspaceID).State
}

// Eligible reports whether a workspace's tasks may be offered to the
// scheduler. Only ACTIVE workspaces are eligible.
func (m *Manager) Eligible(workspaceID string) bool {
	return m.State(workspaceID) == domain.WorkspaceActive
}

// Record returns a copy of the workspace's pause record
func (m *Manager) Record(workspaceID string) domain.PauseRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.record(workspaceID)
}

// Records returns copies of all known pause records
func (m *Manager) Records() []domain.PauseRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PauseRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out
}

// RecordOutcome feeds one task outcome into the consecutive-failure
// accounting. Must be called from the loop's serialized accounting step.
func (m *Manager) RecordOutcome(workspaceID string, success bool) {
	defer m.flushTransitions()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(workspaceID)
	if success {
		if rec.ConsecutiveFailures != 0 {
			rec.ConsecutiveFailures = 0
			m.persist(rec)
		}
		return
	}

	rec.ConsecutiveFailures++
	if rec.State == domain.WorkspaceActive && rec.ConsecutiveFailures > m.cfg.MaxConsecutiveFailures {
		reason := fmt.Sprintf("%d consecutive task failures", rec.ConsecutiveFailures)
		m.transition(rec, domain.WorkspacePaused, reason)
		return
	}
	m.persist(rec)
}

// Check advances the state machine with a fresh health score. The loop
// calls this every pass; PAUSED/RECOVERING re-checks are rate limited to
// the configured check interval internally.
func (m *Manager) Check(workspaceID string, score float64, now time.Time) {
	defer m.flushTransitions()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(workspaceID)

	switch rec.State {
	case domain.WorkspaceActive:
		if score < m.cfg.HardFloor {
			m.lowStreak[workspaceID]++
			if m.lowStreak[workspaceID] >= 2 {
				reason := fmt.Sprintf("health score %.2f below hard floor %.2f on consecutive checks", score, m.cfg.HardFloor)
				m.transition(rec, domain.WorkspacePaused, reason)
				m.lowStreak[workspaceID] = 0
			}
		} else {
			m.lowStreak[workspaceID] = 0
		}

	case domain.WorkspacePaused:
		if !m.due(workspaceID, now) {
			return
		}
		if score >= m.cfg.RecoveryFloor {
			m.transition(rec, domain.WorkspaceRecovering, fmt.Sprintf("health score %.2f above recovery floor", score))
			rec.RecoveryChecks = 1
			m.persist(rec)
			m.maybePromote(rec)
		}

	case domain.WorkspaceRecovering:
		if !m.due(workspaceID, now) {
			return
		}
		if score >= m.cfg.RecoveryFloor {
			rec.RecoveryChecks++
			m.persist(rec)
			m.maybePromote(rec)
		} else {
			// Regression: straight back to PAUSED, recovery credit is
			// not carried over.
			rec.RecoveryChecks = 0
			m.transition(rec, domain.WorkspacePaused, fmt.Sprintf("health score %.2f regressed during recovery", score))
		}
	}
}

// ForcePause is the manual containment override: the workspace becomes
// PAUSED immediately and stays there until recovery or ForceActive
func (m *Manager) ForcePause(workspaceID, reason string) {
	defer m.flushTransitions()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(workspaceID)
	rec.RecoveryChecks = 0
	m.lowStreak[workspaceID] = 0
	if rec.State != domain.WorkspacePaused {
		m.transition(rec, domain.WorkspacePaused, reason)
	} else {
		rec.Reason = reason
		m.persist(rec)
	}
}

// ForceActive is the manual override: the workspace becomes ACTIVE
// immediately and its failure counter is reset
func (m *Manager) ForceActive(workspaceID, reason string) {
	defer m.flushTransitions()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(workspaceID)
	rec.ConsecutiveFailures = 0
	rec.RecoveryChecks = 0
	m.lowStreak[workspaceID] = 0
	if rec.State != domain.WorkspaceActive {
		m.transition(rec, domain.WorkspaceActive, reason)
	} else {
		m.persist(rec)
	}
}

// record returns the live record for a workspace, creating the implicit
// ACTIVE record on first sight. Called with m.mu held.
func (m *Manager) record(workspaceID string) *domain.PauseRecord {
	rec := m.records[workspaceID]
	if rec == nil {
		rec = &domain.PauseRecord{
			WorkspaceID: workspaceID,
			State:       domain.WorkspaceActive,
		}
		m.records[workspaceID] = rec
	}
	return rec
}

// due reports whether a periodic re-check is due and stamps it. Called with
// m.mu held.
func (m *Manager) due(workspaceID string, now time.Time) bool {
	last := m.lastRecheck[workspaceID]
	if !last.IsZero() && now.Sub(last) < m.cfg.CheckInterval {
		return false
	}
	m.lastRecheck[workspaceID] = now
	return true
}

// maybePromote moves RECOVERING to ACTIVE once enough consecutive checks
// have passed. Called with m.mu held.
func (m *Manager) maybePromote(rec *domain.PauseRecord) {
	if rec.State == domain.WorkspaceRecovering && rec.RecoveryChecks >= m.cfg.RecoveryChecks {
		rec.RecoveryChecks = 0
		rec.ConsecutiveFailures = 0
		m.transition(rec, domain.WorkspaceActive, "recovery checks passed")
	}
}

// transition applies a state change, persists it and buffers the callback
// for flushTransitions. Called with m.mu held.
func (m *Manager) transition(rec *domain.PauseRecord, to domain.WorkspaceState, reason string) {
	from := rec.State
	rec.State = to
	rec.Reason = reason
	if to == domain.WorkspacePaused {
		now := time.Now()
		rec.PausedAt = &now
	}
	m.persist(rec)

	m.pending = append(m.pending, transitionEvent{
		workspaceID: rec.WorkspaceID,
		from:        from,
		to:          to,
		reason:      reason,
	})
}

// flushTransitions fires the transition callback for every buffered state
// change, outside m.mu. Deferred before the lock in each mutating entry
// point, so it runs after the lock is released.
func (m *Manager) flushTransitions() {
	m.mu.Lock()
	events := m.pending
	m.pending = nil
	fn := m.onTransition
	m.mu.Unlock()

	if fn == nil {
		return
	}
	for _, e := range events {
		fn(e.workspaceID, e.from, e.to, e.reason)
	}
}

// persist writes the record through the store. Called with m.mu held.
func (m *Manager) persist(rec *domain.PauseRecord) {
	rec.UpdatedAt = time.Now()
	if m.store == nil {
		return
	}
	if err := m.store.SavePauseRecord(rec); err != nil {
		// A failed write costs durability across restart, not correctness;
		// the in-memory state machine stays authoritative.
		fmt.Printf("Warning: failed to persist pause record for %s: %v\n", rec.WorkspaceID, err)
	}
}
