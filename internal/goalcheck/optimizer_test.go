package goalcheck

import (
	"testing"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/health"
)

func testConfig() config.GoalsConfig {
	return config.GoalsConfig{
		GracePeriod:       2 * time.Hour,
		Cron:              "*/30 * * * *",
		ExcellentVelocity: 5,
		GoodVelocity:      2,
	}
}

func TestDecide_GracePeriod(t *testing.T) {
	o := New(testConfig())
	now := time.Now()
	goal := &domain.Goal{ID: "g1", WorkspaceID: "ws", Target: 10, CreatedAt: now.Add(-30 * time.Minute)}
	snap := health.Snapshot{}

	// Pure function of goal age and current time: repeated calls in the
	// grace window always defer, with no side effects.
	for i := 0; i < 5; i++ {
		d := o.Decide(goal, snap, domain.WorkspaceActive, now)
		if d.Verdict != domain.VerdictApplyGracePeriod {
			t.Fatalf("call %d: Verdict = %s, want apply_grace_period", i, d.Verdict)
		}
		if d.ShouldProceed {
			t.Fatalf("call %d: ShouldProceed = true, want false", i)
		}
	}
}

func TestDecide_GracePeriodExpiry(t *testing.T) {
	o := New(testConfig())
	now := time.Now()
	goal := &domain.Goal{ID: "g1", WorkspaceID: "ws", Target: 10, CreatedAt: now.Add(-3 * time.Hour)}

	d := o.Decide(goal, health.Snapshot{}, domain.WorkspaceActive, now)
	if d.Verdict == domain.VerdictApplyGracePeriod {
		t.Error("goal past the grace period should not be deferred on age")
	}
}

func TestDecide_VelocityAcceptable(t *testing.T) {
	o := New(testConfig())
	now := time.Now()
	goal := &domain.Goal{ID: "g1", WorkspaceID: "ws", Target: 10, CreatedAt: now.Add(-3 * time.Hour)}

	tests := []struct {
		velocity float64
		want     domain.ValidationVerdict
		proceed  bool
	}{
		{6.0, domain.VerdictVelocityAcceptable, false}, // excellent
		{3.0, domain.VerdictVelocityAcceptable, false}, // good
		{1.0, domain.VerdictProceedNormal, true},       // moderate
	}

	for _, tt := range tests {
		d := o.Decide(goal, health.Snapshot{VelocityPerHour: tt.velocity}, domain.WorkspaceActive, now)
		if d.Verdict != tt.want {
			t.Errorf("velocity %g: Verdict = %s, want %s", tt.velocity, d.Verdict, tt.want)
		}
		if d.ShouldProceed != tt.proceed {
			t.Errorf("velocity %g: ShouldProceed = %t, want %t", tt.velocity, d.ShouldProceed, tt.proceed)
		}
	}
}

func TestDecide_ThresholdAdjusted(t *testing.T) {
	o := New(testConfig())
	now := time.Now()
	adjusted := 7.5
	goal := &domain.Goal{
		ID:                "g1",
		WorkspaceID:       "ws",
		Target:            10,
		AdjustedThreshold: &adjusted,
		CreatedAt:         now.Add(-3 * time.Hour),
	}

	d := o.Decide(goal, health.Snapshot{VelocityPerHour: 0.5}, domain.WorkspaceActive, now)
	if d.Verdict != domain.VerdictThresholdAdjusted {
		t.Fatalf("Verdict = %s, want threshold_adjusted", d.Verdict)
	}
	if !d.ShouldProceed {
		t.Error("ShouldProceed = false, want true (strict validation against adjusted target)")
	}
	if d.EffectiveTarget != 7.5 {
		t.Errorf("EffectiveTarget = %g, want the adjusted 7.5, not the original 10", d.EffectiveTarget)
	}
}

func TestDecide_PausedWorkspaceSkips(t *testing.T) {
	o := New(testConfig())
	now := time.Now()
	goal := &domain.Goal{ID: "g1", WorkspaceID: "ws", Target: 10, CreatedAt: now.Add(-3 * time.Hour)}

	d := o.Decide(goal, health.Snapshot{}, domain.WorkspacePaused, now)
	if d.Verdict != domain.VerdictSkipValidation {
		t.Errorf("Verdict = %s, want skip_validation for a paused workspace", d.Verdict)
	}
	if d.ShouldProceed {
		t.Error("ShouldProceed = true, want false")
	}
}

func TestDecide_Confidence(t *testing.T) {
	o := New(testConfig())
	now := time.Now()
	goal := &domain.Goal{ID: "g1", WorkspaceID: "ws", Target: 10, CreatedAt: now.Add(-3 * time.Hour)}

	low := o.Decide(goal, health.Snapshot{SampleSize: 1}, domain.WorkspaceActive, now)
	high := o.Decide(goal, health.Snapshot{SampleSize: 40}, domain.WorkspaceActive, now)

	if low.Confidence >= high.Confidence {
		t.Errorf("confidence with 1 sample (%g) should be below 40 samples (%g)", low.Confidence, high.Confidence)
	}
	if high.Confidence != 1.0 {
		t.Errorf("confidence with a full window = %g, want 1.0", high.Confidence)
	}
}

func TestParseCron(t *testing.T) {
	if _, err := ParseCron("*/30 * * * *"); err != nil {
		t.Errorf("valid cron rejected: %v", err)
	}
	if _, err := ParseCron("not a cron"); err == nil {
		t.Error("invalid cron accepted")
	}
}
