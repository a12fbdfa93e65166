package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderLimit is the immutable rate limit configuration for one inference
// provider, loaded once at startup
type ProviderLimit struct {
	Name              string  `yaml:"name"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	MaxBurst          int     `yaml:"max_burst"`
	CooldownBase      float64 `yaml:"cooldown_base_seconds"`
	// ErrorCap bounds the cooldown exponent so repeated provider errors
	// cannot push the backoff beyond cooldown_base * 2^error_cap.
	ErrorCap int `yaml:"error_cap"`
}

// ProvidersFile is the on-disk shape of the provider limits file
type ProvidersFile struct {
	Providers []ProviderLimit `yaml:"providers"`
}

// DefaultProviders returns the provider set used when no providers file exists
func DefaultProviders() []ProviderLimit {
	return []ProviderLimit{
		{Name: "default", RequestsPerMinute: 60, MaxBurst: 10, CooldownBase: 1, ErrorCap: 6},
	}
}

// LoadProviders reads provider limits from a YAML file, falling back to the
// default single provider when the file is absent
func LoadProviders(path string) ([]ProviderLimit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultProviders(), nil
		}
		return nil, err
	}

	var file ProvidersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing providers file: %w", err)
	}
	if len(file.Providers) == 0 {
		return DefaultProviders(), nil
	}

	for i, p := range file.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("provider %d: name is required", i)
		}
		if p.RequestsPerMinute <= 0 {
			return nil, fmt.Errorf("provider %q: requests_per_minute must be positive", p.Name)
		}
		if p.MaxBurst < 1 {
			file.Providers[i].MaxBurst = 1
		}
		if p.CooldownBase <= 0 {
			file.Providers[i].CooldownBase = 1
		}
		if p.ErrorCap < 1 {
			file.Providers[i].ErrorCap = 6
		}
	}

	return file.Providers, nil
}
