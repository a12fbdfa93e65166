package goalcheck

import (
	"testing"
	"time"

	"github.com/hochfrequenz/agent-conductor/internal/domain"
	"github.com/hochfrequenz/agent-conductor/internal/health"
)

type stubGoals struct {
	goals []*domain.Goal
}

func (s *stubGoals) ListGoals() ([]*domain.Goal, error) {
	return s.goals, nil
}

type stubView struct {
	snap  health.Snapshot
	state domain.WorkspaceState
}

func (v *stubView) Snapshot(workspaceID string, pendingTasks int) health.Snapshot {
	return v.snap
}

func (v *stubView) State(workspaceID string) domain.WorkspaceState {
	return v.state
}

func TestNewCadence_RejectsBadCron(t *testing.T) {
	_, err := NewCadence("not a cron line", New(testConfig()), &stubGoals{}, &stubView{}, nil)
	if err == nil {
		t.Fatal("expected error for malformed cron expression")
	}
}

func TestRunOnce_AuditsEveryGoal(t *testing.T) {
	now := time.Now()
	goals := &stubGoals{goals: []*domain.Goal{
		{ID: "g1", WorkspaceID: "ws1", Target: 10, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "g2", WorkspaceID: "ws2", Target: 5, CreatedAt: now.Add(-time.Minute)},
	}}
	view := &stubView{state: domain.WorkspaceActive}

	var seen []domain.ValidationDecision
	c, err := NewCadence("*/30 * * * *", New(testConfig()), goals, view, func(g *domain.Goal, d domain.ValidationDecision) {
		seen = append(seen, d)
	})
	if err != nil {
		t.Fatal(err)
	}

	c.RunOnce()

	if len(seen) != 2 {
		t.Fatalf("decision count = %d, want 2", len(seen))
	}
	if seen[0].GoalID != "g1" || seen[1].GoalID != "g2" {
		t.Errorf("decision order = %s, %s", seen[0].GoalID, seen[1].GoalID)
	}
	// g2 is still inside the grace window.
	if seen[1].Verdict != domain.VerdictApplyGracePeriod {
		t.Errorf("g2 Verdict = %s, want apply_grace_period", seen[1].Verdict)
	}
}

func TestRunOnce_SkipsValidationWhilePaused(t *testing.T) {
	now := time.Now()
	goals := &stubGoals{goals: []*domain.Goal{
		{ID: "g1", WorkspaceID: "ws", Target: 10, CreatedAt: now.Add(-3 * time.Hour)},
	}}
	view := &stubView{state: domain.WorkspacePaused}

	var seen []domain.ValidationDecision
	c, err := NewCadence("*/30 * * * *", New(testConfig()), goals, view, func(g *domain.Goal, d domain.ValidationDecision) {
		seen = append(seen, d)
	})
	if err != nil {
		t.Fatal(err)
	}

	c.RunOnce()

	if len(seen) != 1 {
		t.Fatalf("decision count = %d, want 1", len(seen))
	}
	if seen[0].Verdict != domain.VerdictSkipValidation {
		t.Errorf("Verdict = %s, want skip_validation", seen[0].Verdict)
	}
}

func TestNextRun_FollowsSchedule(t *testing.T) {
	c, err := NewCadence("0 * * * *", New(testConfig()), &stubGoals{}, &stubView{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	next := c.NextRun()
	if !next.After(time.Now()) {
		t.Errorf("NextRun = %s, want a future instant", next)
	}
	if next.Minute() != 0 {
		t.Errorf("NextRun minute = %d, want 0 for an hourly schedule", next.Minute())
	}
}
