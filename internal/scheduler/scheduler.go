package scheduler

import (
	"sort"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

// correctiveBand is the reserved score band for corrective/urgent tasks.
// Every corrective task scores at or above it, every normal task strictly
// below, so corrective work always sorts first regardless of age.
const correctiveBand = 10000.0

// Scheduler orders eligible tasks for dispatch. The ordering is advisory:
// the execution loop still applies per-workspace admission limits and pause
// state when it actually dispatches.
type Scheduler struct {
	now func() time.Time
}

// New creates a Scheduler
func New() *Scheduler {
	return &Scheduler{now: time.Now}
}

// Order computes priority scores and returns the tasks sorted best-first.
// Ties break by creation time, then task ID, for a deterministic sequence.
func (s *Scheduler) Order(tasks []*domain.TaskHandle) []*domain.TaskHandle {
	now := s.now()
	ordered := make([]*domain.TaskHandle, len(tasks))
	copy(ordered, tasks)

	for _, t := range ordered {
		t.Score = score(t, now)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	return ordered
}

// score computes the priority score for one task. Older and more-retried
// normal tasks score slightly higher to avoid starvation, but the normal
// component is capped below the corrective band.
func score(t *domain.TaskHandle, now time.Time) float64 {
	ageHours := now.Sub(t.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	base := ageHours*10 + float64(t.RetryCount)*25
	if base >= correctiveBand {
		base = correctiveBand - 1
	}

	if t.Corrective() {
		return correctiveBand + base
	}
	return base
}
