package health

import (
	"sync"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// Snapshot is the point-in-time health view of one workspace. Recomputed on
// demand from the rolling outcome window, read-only for consumers.
type Snapshot struct {
	WorkspaceID string
	// SuccessRate in [0,1] over the window; 1.0 when the window is empty
	// so a cold-started workspace never looks unhealthy.
	SuccessRate float64
	// VelocityPerHour is completed tasks per hour over the window.
	VelocityPerHour float64
	// Score in [0,1]: 0.6*success_rate + 0.4*normalized_velocity.
	Score float64
	// Stalled means pending work exists but nothing has completed for
	// longer than the stall threshold.
	Stalled        bool
	SampleSize     int
	LastCompletion time.Time
	TakenAt        time.Time
}

type record struct {
	status     domain.OutcomeStatus
	recordedAt time.Time
}

type window struct {
	records        []record
	lastCompletion time.Time
}

// Monitor maintains a bounded rolling window of task outcomes per
// workspace and derives health snapshots from it. Windows are created on
// first observation of a workspace and never silently reset.
type Monitor struct {
	mu      sync.RWMutex
	cfg     config.HealthConfig
	windows map[string]*window
}

// New creates a Monitor
func New(cfg config.HealthConfig) *Monitor {
	return &Monitor{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// SetConfig swaps the scoring thresholds, used by config hot-reload
func (m *Monitor) SetConfig(cfg config.HealthConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// Record feeds one task outcome into the workspace's rolling window
func (m *Monitor) Record(o domain.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := m.windows[o.WorkspaceID]
	if w == nil {
		w = &window{}
		m.windows[o.WorkspaceID] = w
	}

	at := o.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	w.records = append(w.records, record{status: o.Status, recordedAt: at})
	if o.Status == domain.OutcomeCompleted && at.After(w.lastCompletion) {
		w.lastCompletion = at
	}
	if len(w.records) > m.cfg.WindowSize {
		w.records = w.records[len(w.records)-m.cfg.WindowSize:]
	}
}

// Snapshot recomputes the health view for a workspace. pendingTasks is the
// workspace's current pending-task count, needed for stall detection. An
// unknown workspace yields the optimistic cold-start snapshot.
func (m *Monitor) Snapshot(workspaceID string, pendingTasks int) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	snap := Snapshot{
		WorkspaceID: workspaceID,
		SuccessRate: 1.0,
		TakenAt:     now,
	}

	w := m.windows[workspaceID]
	var recent []record
	if w != nil {
		cutoff := now.Add(-m.cfg.WindowMaxAge)
		for _, r := range w.records {
			if r.recordedAt.After(cutoff) {
				recent = append(recent, r)
			}
		}
		snap.LastCompletion = w.lastCompletion
	}
	snap.SampleSize = len(recent)

	var completed, failed int
	for _, r := range recent {
		if r.status == domain.OutcomeCompleted {
			completed++
		} else {
			failed++
		}
	}

	if completed+failed > 0 {
		snap.SuccessRate = float64(completed) / float64(completed+failed)
		elapsed := now.Sub(recent[0].recordedAt).Seconds()
		if elapsed > 0 {
			snap.VelocityPerHour = float64(completed) / elapsed * 3600
		}
	}

	normVelocity := 0.0
	if m.cfg.FullVelocity > 0 {
		normVelocity = snap.VelocityPerHour / m.cfg.FullVelocity
		if normVelocity > 1 {
			normVelocity = 1
		}
	}

	snap.Score = 0.6*snap.SuccessRate + 0.4*normVelocity
	if snap.Score > 1 {
		snap.Score = 1
	}
	if snap.Score < 0 {
		snap.Score = 0
	}

	// A workspace with no history at all is cold, not stalled.
	if pendingTasks > 0 && snap.VelocityPerHour == 0 {
		since := snap.LastCompletion
		if since.IsZero() && len(recent) > 0 {
			since = recent[0].recordedAt
		}
		if !since.IsZero() {
			snap.Stalled = now.Sub(since) > m.cfg.StallThreshold
		}
	}

	return snap
}

// Workspaces returns the workspace IDs with recorded outcomes
func (m *Monitor) Workspaces() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	return ids
}
