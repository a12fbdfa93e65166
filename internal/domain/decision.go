package domain

import "time"

// ValidationVerdict classifies a goal validation decision
type ValidationVerdict string

const (
	VerdictProceedNormal      ValidationVerdict = "proceed_normal"
	VerdictApplyGracePeriod   ValidationVerdict = "apply_grace_period"
	VerdictVelocityAcceptable ValidationVerdict = "velocity_acceptable"
	VerdictThresholdAdjusted  ValidationVerdict = "threshold_adjusted"
	VerdictSkipValidation     ValidationVerdict = "skip_validation"
)

// ValidationDecision is the result of asking whether a goal should be
// strictly validated right now. Derived per attempt, never persisted
// beyond audit logging.
type ValidationDecision struct {
	GoalID        string
	Verdict       ValidationVerdict
	Reason        string
	ShouldProceed bool
	// EffectiveTarget is the target to validate against when ShouldProceed
	// is true; it differs from the goal's original target after an
	// adjustment is on record.
	EffectiveTarget float64
	// Confidence in [0,1], derived from how much outcome data backs the
	// velocity classification.
	Confidence float64
}

// GoalCheck is one persisted audit entry from a validation pass
type GoalCheck struct {
	GoalID        string
	WorkspaceID   string
	Verdict       ValidationVerdict
	ShouldProceed bool
	Confidence    float64
	Reason        string
	CheckedAt     time.Time
}
