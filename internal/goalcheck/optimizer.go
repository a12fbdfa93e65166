package goalcheck

import (
	"fmt"
	"sync"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/health"
)

// Optimizer decides whether a goal should be strictly validated now,
// deferred, or accepted on velocity. Decide is a pure function of its
// inputs; calling it repeatedly in the same window yields the same answer.
type Optimizer struct {
	mu  sync.RWMutex
	cfg config.GoalsConfig
}

// New creates an Optimizer
func New(cfg config.GoalsConfig) *Optimizer {
	return &Optimizer{cfg: cfg}
}

// SetConfig swaps the thresholds, used by config hot-reload
func (o *Optimizer) SetConfig(cfg config.GoalsConfig) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()
}

// Decide evaluates the decision tree in order:
//
//  1. paused workspace            -> skip_validation
//  2. goal younger than grace     -> apply_grace_period
//  3. velocity excellent or good  -> velocity_acceptable
//  4. adjusted threshold on file  -> threshold_adjusted, proceed strictly
//  5. otherwise                   -> proceed_normal
func (o *Optimizer) Decide(goal *domain.Goal, snap health.Snapshot, state domain.WorkspaceState, now time.Time) domain.ValidationDecision {
	o.mu.RLock()
	cfg := o.cfg
	o.mu.RUnlock()

	d := domain.ValidationDecision{
		GoalID:          goal.ID,
		EffectiveTarget: goal.Target,
		Confidence:      confidence(snap.SampleSize),
	}

	if state == domain.WorkspacePaused {
		d.Verdict = domain.VerdictSkipValidation
		d.Reason = "workspace is paused, validation deferred until recovery"
		return d
	}

	if age := now.Sub(goal.CreatedAt); age < cfg.GracePeriod {
		d.Verdict = domain.VerdictApplyGracePeriod
		d.Reason = fmt.Sprintf("goal age %s within grace period %s", age.Round(time.Minute), cfg.GracePeriod)
		return d
	}

	if band := classifyVelocity(snap.VelocityPerHour, cfg); band == bandExcellent || band == bandGood {
		d.Verdict = domain.VerdictVelocityAcceptable
		d.Reason = fmt.Sprintf("progress velocity %.1f/h classifies as %s", snap.VelocityPerHour, band)
		return d
	}

	if goal.AdjustedThreshold != nil {
		d.Verdict = domain.VerdictThresholdAdjusted
		d.Reason = fmt.Sprintf("validating against adjusted threshold %.2f (original %.2f)", *goal.AdjustedThreshold, goal.Target)
		d.ShouldProceed = true
		d.EffectiveTarget = *goal.AdjustedThreshold
		return d
	}

	d.Verdict = domain.VerdictProceedNormal
	d.Reason = "no deferral applies, strict validation"
	d.ShouldProceed = true
	return d
}

type velocityBand string

const (
	bandExcellent velocityBand = "excellent"
	bandGood      velocityBand = "good"
	bandModerate  velocityBand = "moderate"
)

func classifyVelocity(perHour float64, cfg config.GoalsConfig) velocityBand {
	switch {
	case perHour >= cfg.ExcellentVelocity:
		return bandExcellent
	case perHour >= cfg.GoodVelocity:
		return bandGood
	default:
		return bandModerate
	}
}

// confidence reflects how much outcome data backs the velocity
// classification. Twenty samples is treated as a fully backed window.
func confidence(samples int) float64 {
	c := float64(samples) / 20
	if c > 1 {
		return 1
	}
	if c < 0.1 {
		return 0.1
	}
	return c
}
