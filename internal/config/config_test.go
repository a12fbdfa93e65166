package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Loop.Interval != 5*time.Second {
		t.Errorf("Loop.Interval = %s, want 5s", cfg.Loop.Interval)
	}
	if cfg.Admission.BaseLimit != 15 {
		t.Errorf("Admission.BaseLimit = %d, want 15", cfg.Admission.BaseLimit)
	}
	if cfg.Pause.MaxConsecutiveFailures != 5 {
		t.Errorf("Pause.MaxConsecutiveFailures = %d, want 5", cfg.Pause.MaxConsecutiveFailures)
	}
	if cfg.Goals.Cron != "*/30 * * * *" {
		t.Errorf("Goals.Cron = %q, want */30 * * * *", cfg.Goals.Cron)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[loop]
interval_seconds = 10
global_max_runs = 20
task_timeout_minutes = 3

[admission]
base_limit = 8

[pause]
hard_floor = 0.25
recovery_floor = 0.6

[goals]
grace_period_hours = 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Loop.Interval != 10*time.Second {
		t.Errorf("Loop.Interval = %s, want 10s", cfg.Loop.Interval)
	}
	if cfg.Loop.GlobalMaxRuns != 20 {
		t.Errorf("Loop.GlobalMaxRuns = %d, want 20", cfg.Loop.GlobalMaxRuns)
	}
	if cfg.Loop.TaskTimeout != 3*time.Minute {
		t.Errorf("Loop.TaskTimeout = %s, want 3m", cfg.Loop.TaskTimeout)
	}
	if cfg.Admission.BaseLimit != 8 {
		t.Errorf("Admission.BaseLimit = %d, want 8", cfg.Admission.BaseLimit)
	}
	if cfg.Goals.GracePeriod != 4*time.Hour {
		t.Errorf("Goals.GracePeriod = %s, want 4h", cfg.Goals.GracePeriod)
	}
	if cfg.Pause.HardFloor != 0.25 {
		t.Errorf("Pause.HardFloor = %g, want 0.25", cfg.Pause.HardFloor)
	}
	// Untouched sections keep their defaults.
	if cfg.Health.WindowSize != 50 {
		t.Errorf("Health.WindowSize = %d, want 50", cfg.Health.WindowSize)
	}
}

func TestLoad_RejectsInvalidThresholds(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"min above max", "[admission]\nabsolute_min = 10\nabsolute_max = 5\n"},
		{"recovery below hard floor", "[pause]\nhard_floor = 0.5\nrecovery_floor = 0.2\n"},
		{"zero interval", "[loop]\ninterval_seconds = 0\n"},
		{"hard floor above one", "[pause]\nhard_floor = 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() = nil error, want validation failure")
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	if got := ExpandPath("~/foo/bar.db"); got != filepath.Join(home, "foo/bar.db") {
		t.Errorf("ExpandPath(~/foo/bar.db) = %q", got)
	}
	if got := ExpandPath("/abs/path.db"); got != "/abs/path.db" {
		t.Errorf("ExpandPath(/abs/path.db) = %q, want unchanged", got)
	}
}

func TestLoadProviders_MissingFileUsesDefault(t *testing.T) {
	providers, err := LoadProviders(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 1 || providers[0].Name != "default" {
		t.Fatalf("providers = %+v, want single default provider", providers)
	}
	if providers[0].RequestsPerMinute != 60 {
		t.Errorf("RequestsPerMinute = %g, want 60", providers[0].RequestsPerMinute)
	}
}

func TestLoadProviders_ParsesAndClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := `providers:
  - name: anthropic
    requests_per_minute: 50
    max_burst: 5
    cooldown_base_seconds: 2
  - name: sparse
    requests_per_minute: 10
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	providers, err := LoadProviders(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(providers) != 2 {
		t.Fatalf("len(providers) = %d, want 2", len(providers))
	}
	if providers[0].Name != "anthropic" || providers[0].MaxBurst != 5 {
		t.Errorf("providers[0] = %+v", providers[0])
	}
	// Omitted burst and cooldown clamp to their minimums, omitted error cap
	// falls back to the default.
	if providers[1].MaxBurst != 1 {
		t.Errorf("sparse MaxBurst = %d, want 1", providers[1].MaxBurst)
	}
	if providers[1].CooldownBase != 1 {
		t.Errorf("sparse CooldownBase = %g, want 1", providers[1].CooldownBase)
	}
	if providers[1].ErrorCap != 6 {
		t.Errorf("sparse ErrorCap = %d, want 6", providers[1].ErrorCap)
	}
}

func TestLoadProviders_RejectsBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	content := `providers:
  - name: ""
    requests_per_minute: 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProviders(path); err == nil {
		t.Error("LoadProviders() = nil error, want name validation failure")
	}
}
