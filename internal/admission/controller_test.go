package admission

import (
	"testing"

	"github.com/hochfrequenz/agent-conductor/internal/config"
	"github.com/hochfrequenz/agent-conductor/internal/health"
)

func TestLimit_Bounds(t *testing.T) {
	c := New(config.AdmissionConfig{
		BaseLimit:   15,
		AbsoluteMin: 3,
		AbsoluteMax: 50,
	})

	tests := []struct {
		score float64
		want  int
	}{
		{0.0, 3},  // floor, never zero
		{0.1, 3},  // round(1.5) = 2, clamped up to 3
		{0.2, 3},  // round(3.0) = 3
		{0.5, 8},  // round(7.5)
		{1.0, 15}, // full base limit
		{4.0, 50}, // uncapped score still clamps to the ceiling
	}

	for _, tt := range tests {
		got := c.Limit(health.Snapshot{Score: tt.score})
		if got != tt.want {
			t.Errorf("Limit(score=%g) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestLimit_SetConfig(t *testing.T) {
	c := New(config.AdmissionConfig{BaseLimit: 15, AbsoluteMin: 3, AbsoluteMax: 50})

	c.SetConfig(config.AdmissionConfig{BaseLimit: 10, AbsoluteMin: 1, AbsoluteMax: 5})
	if got := c.Limit(health.Snapshot{Score: 1.0}); got != 5 {
		t.Errorf("Limit after reload = %d, want 5", got)
	}
}
