package admission

import (
	"math"
	"sync"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/health"
)

// Controller is the anti-loop limiter: it converts a workspace health score
// into a bounded concurrent-task quota. An unhealthy workspace is throttled
// toward the floor without ever reaching zero, so a misbehaving workspace is
// contained but never starved into deadlock. The quota is advisory and must
// be recomputed every scheduling pass, never cached across passes.
type Controller struct {
	mu  sync.RWMutex
	cfg config.AdmissionConfig
}

// New creates a Controller
func New(cfg config.AdmissionConfig) *Controller {
	return &Controller{cfg: cfg}
}

// SetConfig swaps the bounds, used by config hot-reload
func (c *Controller) SetConfig(cfg config.AdmissionConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Limit returns the concurrent-task quota for the given health snapshot:
// round(base_limit * score) clamped to [absolute_min, absolute_max].
func (c *Controller) Limit(snap health.Snapshot) int {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	limit := int(math.Round(float64(cfg.BaseLimit) * snap.Score))
	if limit < cfg.AbsoluteMin {
		limit = cfg.AbsoluteMin
	}
	if limit > cfg.AbsoluteMax {
		limit = cfg.AbsoluteMax
	}
	return limit
}
