// Package config loads goledger settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hed1ad/goledger/pkg/detectors"
)

// Config holds all application configuration.
type Config struct {
	WindowDays int `yaml:"window_days"`
	Anomaly    struct {
		Threshold  float64 `yaml:"threshold"`
		MinSamples int     `yaml:"min_samples"`
	} `yaml:"anomaly"`
	SkipList struct {
		MaxLevel int   `yaml:"max_level"`
		Seed     int64 `yaml:"seed"`
	} `yaml:"skiplist"`
	Queue struct {
		Capacity       int     `yaml:"capacity"`
		AlertThreshold float64 `yaml:"alert_threshold"`
	} `yaml:"queue"`
	// Budgets maps a category to its spending limit.
	Budgets map[string]float64 `yaml:"budgets"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("GOLEDGER_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowDays = n
		}
	}
	if v := os.Getenv("GOLEDGER_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Anomaly.Threshold = f
		}
	}
	if v := os.Getenv("GOLEDGER_ANOMALY_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Anomaly.MinSamples = n
		}
	}
	if v := os.Getenv("GOLEDGER_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Capacity = n
		}
	}
	if v := os.Getenv("GOLEDGER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GOLEDGER_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GOLEDGER_METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := detectors.DefaultConfig()

	if c.WindowDays == 0 {
		c.WindowDays = 30
	}
	if c.Anomaly.Threshold == 0 {
		c.Anomaly.Threshold = def.Threshold
	}
	if c.Anomaly.MinSamples == 0 {
		c.Anomaly.MinSamples = def.MinSamples
	}
	if c.SkipList.MaxLevel == 0 {
		c.SkipList.MaxLevel = 16
	}
	if c.SkipList.Seed == 0 {
		c.SkipList.Seed = 42
	}
	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = 1000
	}
	if c.Queue.AlertThreshold == 0 {
		c.Queue.AlertThreshold = 80
	}
	if c.Budgets == nil {
		c.Budgets = make(map[string]float64)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Detector returns the anomaly settings as a detector configuration.
func (c *Config) Detector() detectors.Config {
	return detectors.Config{
		Threshold:  c.Anomaly.Threshold,
		MinSamples: c.Anomaly.MinSamples,
	}
}

// Validate checks that every field is in range.
func (c *Config) Validate() error {
	if c.WindowDays < 1 || c.WindowDays > 365 {
		return fmt.Errorf("window_days must be between 1 and 365, got %d", c.WindowDays)
	}
	if c.Anomaly.Threshold <= 0 {
		return fmt.Errorf("anomaly.threshold must be positive")
	}
	if c.Anomaly.MinSamples < 2 {
		return fmt.Errorf("anomaly.min_samples must be at least 2")
	}
	if c.SkipList.MaxLevel < 1 || c.SkipList.MaxLevel > 32 {
		return fmt.Errorf("skiplist.max_level must be between 1 and 32")
	}
	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be positive")
	}
	for cat, limit := range c.Budgets {
		if limit <= 0 {
			return fmt.Errorf("budget for %q must be positive", cat)
		}
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}
