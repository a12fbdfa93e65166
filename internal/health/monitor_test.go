package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/domain"
)

func testConfig() config.HealthConfig {
	return config.HealthConfig{
		WindowSize:     50,
		WindowMaxAge:   24 * time.Hour,
		StallThreshold: 10 * time.Minute,
		FullVelocity:   10,
	}
}

func outcome(ws string, status domain.OutcomeStatus, at time.Time) domain.Outcome {
	return domain.Outcome{
		TaskID:      "t",
		WorkspaceID: ws,
		Status:      status,
		RecordedAt:  at,
	}
}

func TestSnapshot_ColdStartOptimism(t *testing.T) {
	m := New(testConfig())

	snap := m.Snapshot("fresh", 0)
	if snap.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %g, want 1.0 for an empty window", snap.SuccessRate)
	}
	if snap.Score <= 0 {
		t.Errorf("Score = %g, want > 0 for an empty window", snap.Score)
	}
	if snap.Stalled {
		t.Error("a workspace with no history should not be stalled")
	}
}

func TestSnapshot_SuccessRate(t *testing.T) {
	m := New(testConfig())
	now := time.Now()

	for i := 0; i < 6; i++ {
		m.Record(outcome("ws", domain.OutcomeCompleted, now.Add(-time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 4; i++ {
		m.Record(outcome("ws", domain.OutcomeFailed, now.Add(-time.Duration(i)*time.Minute)))
	}

	snap := m.Snapshot("ws", 0)
	if snap.SuccessRate != 0.6 {
		t.Errorf("SuccessRate = %g, want 0.6", snap.SuccessRate)
	}
	if snap.SampleSize != 10 {
		t.Errorf("SampleSize = %d, want 10", snap.SampleSize)
	}
}

func TestSnapshot_ScoreBounds(t *testing.T) {
	m := New(testConfig())
	now := time.Now()

	// All failures: score should bottom out at 0, not go negative.
	for i := 0; i < 10; i++ {
		m.Record(outcome("bad", domain.OutcomeFailed, now.Add(-time.Minute)))
	}
	snap := m.Snapshot("bad", 0)
	if snap.Score < 0 || snap.Score > 1 {
		t.Errorf("Score = %g, want within [0,1]", snap.Score)
	}
	if snap.SuccessRate != 0 {
		t.Errorf("SuccessRate = %g, want 0", snap.SuccessRate)
	}
}

func TestSnapshot_Stalled(t *testing.T) {
	m := New(testConfig())
	now := time.Now()

	// Only failures in the window: zero velocity with pending work and
	// nothing finishing for an hour means stalled.
	for i := 0; i < 5; i++ {
		m.Record(outcome("ws", domain.OutcomeFailed, now.Add(-time.Hour)))
	}

	snap := m.Snapshot("ws", 3)
	if snap.VelocityPerHour != 0 {
		t.Fatalf("VelocityPerHour = %g, want 0", snap.VelocityPerHour)
	}
	if !snap.Stalled {
		t.Error("workspace with pending work and no completions for an hour should be stalled")
	}

	// No pending work: never stalled.
	snap = m.Snapshot("ws", 0)
	if snap.Stalled {
		t.Error("workspace without pending work should not be stalled")
	}

	// A recent completion clears the stall.
	m.Record(outcome("ws", domain.OutcomeCompleted, now))
	snap = m.Snapshot("ws", 3)
	if snap.Stalled {
		t.Error("workspace with a fresh completion should not be stalled")
	}
}

func TestRecord_WindowTrimming(t *testing.T) {
	cfg := testConfig()
	cfg.WindowSize = 5
	m := New(cfg)
	now := time.Now()

	// Five old failures pushed out by five fresh completions.
	for i := 0; i < 5; i++ {
		m.Record(outcome("ws", domain.OutcomeFailed, now.Add(-time.Hour)))
	}
	for i := 0; i < 5; i++ {
		m.Record(outcome("ws", domain.OutcomeCompleted, now.Add(-time.Minute)))
	}

	snap := m.Snapshot("ws", 0)
	if snap.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %g, want 1.0 after the failures left the window", snap.SuccessRate)
	}
	if snap.SampleSize != 5 {
		t.Errorf("SampleSize = %d, want 5", snap.SampleSize)
	}
}

func TestSnapshot_MaxAgeFilter(t *testing.T) {
	m := New(testConfig())
	now := time.Now()

	m.Record(outcome("ws", domain.OutcomeFailed, now.Add(-25*time.Hour)))
	m.Record(outcome("ws", domain.OutcomeCompleted, now.Add(-time.Minute)))

	snap := m.Snapshot("ws", 0)
	if snap.SampleSize != 1 {
		t.Errorf("SampleSize = %d, want 1 (day-old outcome aged out)", snap.SampleSize)
	}
	if snap.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %g, want 1.0", snap.SuccessRate)
	}
}

func TestWorkspaces(t *testing.T) {
	m := New(testConfig())
	now := time.Now()

	for i := 0; i < 3; i++ {
		m.Record(outcome(fmt.Sprintf("ws-%d", i), domain.OutcomeCompleted, now))
	}

	if got := len(m.Workspaces()); got != 3 {
		t.Errorf("Workspaces count = %d, want 3", got)
	}
}
