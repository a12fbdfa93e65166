package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Loop      LoopConfig      `toml:"loop"`
	Admission AdmissionConfig `toml:"admission"`
	Health    HealthConfig    `toml:"health"`
	Pause     PauseConfig     `toml:"pause"`
	Goals     GoalsConfig     `toml:"goals"`
	Invoke    InvokeConfig    `toml:"invoke"`
	Web       WebConfig       `toml:"web"`
	Notify    NotifyConfig    `toml:"notify"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath  string `toml:"database_path"`
	ProvidersPath string `toml:"providers_path"`
}

// LoopConfig holds execution loop settings. Durations are carried as
// unit-suffixed integers in the file and converted on load.
type LoopConfig struct {
	Interval      time.Duration `toml:"-"`
	GlobalMaxRuns int           `toml:"global_max_runs"`
	TaskTimeout   time.Duration `toml:"-"`
}

// AdmissionConfig holds the anti-loop limiter bounds
type AdmissionConfig struct {
	BaseLimit   int `toml:"base_limit"`
	AbsoluteMin int `toml:"absolute_min"`
	AbsoluteMax int `toml:"absolute_max"`
}

// HealthConfig holds workspace health scoring settings
type HealthConfig struct {
	WindowSize     int           `toml:"window_size"`
	WindowMaxAge   time.Duration `toml:"-"`
	StallThreshold time.Duration `toml:"-"`
	// FullVelocity is the completions-per-hour rate that scores as 1.0
	// on the velocity component.
	FullVelocity float64 `toml:"full_velocity"`
}

// PauseConfig holds pause/recovery state machine thresholds
type PauseConfig struct {
	MaxConsecutiveFailures int           `toml:"max_consecutive_failures"`
	HardFloor              float64       `toml:"hard_floor"`
	RecoveryFloor          float64       `toml:"recovery_floor"`
	RecoveryChecks         int           `toml:"recovery_checks"`
	CheckInterval          time.Duration `toml:"-"`
}

// GoalsConfig holds goal validation settings
type GoalsConfig struct {
	GracePeriod time.Duration `toml:"-"`
	// Cron is the cadence of the validation pass, parsed with a standard
	// five-field cron expression.
	Cron string `toml:"cron"`
	// Velocity bands in completions per hour. At or above Excellent is
	// "excellent", at or above Good is "good".
	ExcellentVelocity float64 `toml:"excellent_velocity"`
	GoodVelocity      float64 `toml:"good_velocity"`
}

// InvokeConfig holds reasoning service settings
type InvokeConfig struct {
	Endpoint string `toml:"endpoint"`
}

// WebConfig holds ops API settings
type WebConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// NotifyConfig holds notification settings
type NotifyConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath:  filepath.Join(home, ".agent-conductor", "conductor.db"),
			ProvidersPath: filepath.Join(home, ".agent-conductor", "providers.yaml"),
		},
		Loop: LoopConfig{
			Interval:      5 * time.Second,
			GlobalMaxRuns: 100,
			TaskTimeout:   10 * time.Minute,
		},
		Admission: AdmissionConfig{
			BaseLimit:   15,
			AbsoluteMin: 3,
			AbsoluteMax: 50,
		},
		Health: HealthConfig{
			WindowSize:     50,
			WindowMaxAge:   24 * time.Hour,
			StallThreshold: 10 * time.Minute,
			FullVelocity:   10,
		},
		Pause: PauseConfig{
			MaxConsecutiveFailures: 5,
			HardFloor:              0.15,
			RecoveryFloor:          0.5,
			RecoveryChecks:         2,
			CheckInterval:          5 * time.Minute,
		},
		Goals: GoalsConfig{
			GracePeriod:       2 * time.Hour,
			Cron:              "*/30 * * * *",
			ExcellentVelocity: 5,
			GoodVelocity:      2,
		},
		Invoke: InvokeConfig{
			Endpoint: "http://127.0.0.1:8700/invoke",
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		Notify: NotifyConfig{
			Desktop: false,
		},
	}
}

// durationKeys is the on-disk shape of the duration settings. TOML has no
// duration type, so the file carries unit-suffixed integers; absent keys
// keep their defaults.
type durationKeys struct {
	Loop struct {
		IntervalSeconds    *int `toml:"interval_seconds"`
		TaskTimeoutMinutes *int `toml:"task_timeout_minutes"`
	} `toml:"loop"`
	Health struct {
		WindowMaxAgeHours     *int `toml:"window_max_age_hours"`
		StallThresholdMinutes *int `toml:"stall_threshold_minutes"`
	} `toml:"health"`
	Pause struct {
		CheckIntervalMinutes *int `toml:"check_interval_minutes"`
	} `toml:"pause"`
	Goals struct {
		GracePeriodHours *int `toml:"grace_period_hours"`
	} `toml:"goals"`
}

func (d *durationKeys) apply(cfg *Config) {
	if v := d.Loop.IntervalSeconds; v != nil {
		cfg.Loop.Interval = time.Duration(*v) * time.Second
	}
	if v := d.Loop.TaskTimeoutMinutes; v != nil {
		cfg.Loop.TaskTimeout = time.Duration(*v) * time.Minute
	}
	if v := d.Health.WindowMaxAgeHours; v != nil {
		cfg.Health.WindowMaxAge = time.Duration(*v) * time.Hour
	}
	if v := d.Health.StallThresholdMinutes; v != nil {
		cfg.Health.StallThreshold = time.Duration(*v) * time.Minute
	}
	if v := d.Pause.CheckIntervalMinutes; v != nil {
		cfg.Pause.CheckInterval = time.Duration(*v) * time.Minute
	}
	if v := d.Goals.GracePeriodHours; v != nil {
		cfg.Goals.GracePeriod = time.Duration(*v) * time.Hour
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	var durations durationKeys
	if err := toml.Unmarshal(data, &durations); err != nil {
		return nil, err
	}
	durations.apply(cfg)

	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.General.ProvidersPath = ExpandPath(cfg.General.ProvidersPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks threshold sanity
func (c *Config) Validate() error {
	if c.Admission.AbsoluteMin < 1 {
		return fmt.Errorf("admission.absolute_min must be >= 1, got %d", c.Admission.AbsoluteMin)
	}
	if c.Admission.AbsoluteMax < c.Admission.AbsoluteMin {
		return fmt.Errorf("admission.absolute_max %d below absolute_min %d", c.Admission.AbsoluteMax, c.Admission.AbsoluteMin)
	}
	if c.Admission.BaseLimit < 1 {
		return fmt.Errorf("admission.base_limit must be >= 1, got %d", c.Admission.BaseLimit)
	}
	if c.Pause.HardFloor < 0 || c.Pause.HardFloor > 1 {
		return fmt.Errorf("pause.hard_floor must be in [0,1], got %g", c.Pause.HardFloor)
	}
	if c.Pause.RecoveryFloor < c.Pause.HardFloor {
		return fmt.Errorf("pause.recovery_floor %g below hard_floor %g", c.Pause.RecoveryFloor, c.Pause.HardFloor)
	}
	if c.Pause.RecoveryChecks < 1 {
		return fmt.Errorf("pause.recovery_checks must be >= 1, got %d", c.Pause.RecoveryChecks)
	}
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive, got %s", c.Loop.Interval)
	}
	if c.Health.WindowSize < 1 {
		return fmt.Errorf("health.window_size must be >= 1, got %d", c.Health.WindowSize)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agent-conductor", "config.toml")
}
