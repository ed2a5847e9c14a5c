package tracker

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every policy knob of the scrape pipeline. Zero values are
// replaced by the documented defaults.
type Config struct {
	// MaxConcurrent caps simultaneously active fetch sessions. Default: 3.
	MaxConcurrent int `yaml:"max_concurrent"`

	// Navigation and pacing, passed through to fetch sessions.
	NavTimeout   time.Duration `yaml:"nav_timeout"`    // default 30s
	NavRetries   int           `yaml:"nav_retries"`    // default 3
	SelectorWait time.Duration `yaml:"selector_wait"`  // default 10s
	ThinkTimeMin time.Duration `yaml:"think_time_min"` // default 2s
	ThinkTimeMax time.Duration `yaml:"think_time_max"` // default 8s

	// Validation bounds.
	PriceMin float64 `yaml:"price_min"` // default 0.01
	PriceMax float64 `yaml:"price_max"` // default 1000.00

	// Anomaly policy.
	AnomalyWindow    time.Duration `yaml:"anomaly_window"`    // default 168h
	AnomalyThreshold float64       `yaml:"anomaly_threshold"` // default 0.20

	// StalenessWindow bounds data freshness. Default: 48h.
	StalenessWindow time.Duration `yaml:"staleness_window"`

	// Health thresholds, consumed by the health monitor.
	HealthSuccessRateMin float64 `yaml:"health_success_rate_min"` // default 0.80
	HealthStaleMax       float64 `yaml:"health_stale_max"`        // default 0.20
	HealthErrorRateMax   float64 `yaml:"health_error_rate_max"`   // default 0.30

	Browser BrowserConfig `yaml:"browser"`
}

// BrowserConfig controls the shared Chrome process.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome. Empty = launch
	// a local one.
	Remote string `yaml:"remote"`
	// Headful shows the browser window (debugging).
	Headful bool `yaml:"headful"`
	// RecycleInterval is the maximum Chrome lifetime. Default: 4h.
	RecycleInterval time.Duration `yaml:"recycle_interval"`
}

func (c *Config) defaults() {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 3
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.NavRetries <= 0 {
		c.NavRetries = 3
	}
	if c.SelectorWait <= 0 {
		c.SelectorWait = 10 * time.Second
	}
	if c.ThinkTimeMin <= 0 {
		c.ThinkTimeMin = 2 * time.Second
	}
	if c.ThinkTimeMax <= c.ThinkTimeMin {
		c.ThinkTimeMax = 8 * time.Second
	}
	if c.PriceMin == 0 {
		c.PriceMin = 0.01
	}
	if c.PriceMax == 0 {
		c.PriceMax = 1000.00
	}
	if c.AnomalyWindow <= 0 {
		c.AnomalyWindow = 7 * 24 * time.Hour
	}
	if c.AnomalyThreshold <= 0 {
		c.AnomalyThreshold = 0.20
	}
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = 48 * time.Hour
	}
	if c.HealthSuccessRateMin <= 0 {
		c.HealthSuccessRateMin = 0.80
	}
	if c.HealthStaleMax <= 0 {
		c.HealthStaleMax = 0.20
	}
	if c.HealthErrorRateMax <= 0 {
		c.HealthErrorRateMax = 0.30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
}

// LoadConfigFile reads a YAML configuration file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tracker: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tracker: parse config: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}
