// Package config provides configuration loading and management for caseflow.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete caseflow configuration
type Config struct {
	Automation  AutomationConfig  `yaml:"automation"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Definitions DefinitionsConfig `yaml:"definitions"`
	Log         LogConfig         `yaml:"log"`
}

// AutomationConfig configures the automation engine
type AutomationConfig struct {
	// DrainInterval is how often the scheduler drains pending automations
	// (Go duration string, default: 30s)
	DrainInterval string `yaml:"drain_interval"`
	// HistoryLimit caps the in-memory execution history (default: 1000)
	HistoryLimit int `yaml:"history_limit"`
}

// DrainIntervalDuration parses the drain interval.
func (c AutomationConfig) DrainIntervalDuration() (time.Duration, error) {
	if c.DrainInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.DrainInterval)
}

// ScheduleConfig configures the scheduling engine
type ScheduleConfig struct {
	// ConflictThreshold is the overlap gap treated as a conflict
	// (Go duration string, default: 30m)
	ConflictThreshold string `yaml:"conflict_threshold"`
	// AvailableHours is the weekly per-user capacity baseline (default: 40)
	AvailableHours float64 `yaml:"available_hours"`
}

// ConflictThresholdDuration parses the conflict threshold.
func (c ScheduleConfig) ConflictThresholdDuration() (time.Duration, error) {
	if c.ConflictThreshold == "" {
		return 0, nil
	}
	return time.ParseDuration(c.ConflictThreshold)
}

// StorageConfig configures persistence
type StorageConfig struct {
	// Path is the sqlite database path (empty = in-memory stores only)
	Path string `yaml:"path"`
}

// DefinitionsConfig configures declarative rule/template loading
type DefinitionsConfig struct {
	// Dir is the directory holding YAML definition files
	// (rules.yaml, automations.yaml, templates.yaml, escalations.yaml)
	Dir string `yaml:"dir"`
	// Watch reloads definitions when files in Dir change
	Watch bool `yaml:"watch"`
	// DebounceDelay is how long to wait for more changes before reloading
	// (Go duration string, default: 500ms)
	DebounceDelay string `yaml:"debounce_delay"`
}

// DebounceDelayDuration parses the debounce delay.
func (c DefinitionsConfig) DebounceDelayDuration() (time.Duration, error) {
	if c.DebounceDelay == "" {
		return 0, nil
	}
	return time.ParseDuration(c.DebounceDelay)
}

// LogConfig configures logging
type LogConfig struct {
	// Level is debug, info, warn, or error (default: info)
	Level string `yaml:"level"`
	// Format is text or json (default: text)
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Automation: AutomationConfig{
			DrainInterval: "30s",
			HistoryLimit:  1000,
		},
		Schedule: ScheduleConfig{
			ConflictThreshold: "30m",
			AvailableHours:    40,
		},
		Storage: StorageConfig{
			Path: "", // In-memory
		},
		Definitions: DefinitionsConfig{
			Dir:           "",
			Watch:         false,
			DebounceDelay: "500ms",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.Automation.DrainIntervalDuration(); err != nil {
		return fmt.Errorf("automation.drain_interval: %w", err)
	}
	if c.Automation.HistoryLimit < 0 {
		return fmt.Errorf("automation.history_limit must not be negative")
	}
	if _, err := c.Schedule.ConflictThresholdDuration(); err != nil {
		return fmt.Errorf("schedule.conflict_threshold: %w", err)
	}
	if c.Schedule.AvailableHours < 0 {
		return fmt.Errorf("schedule.available_hours must not be negative")
	}
	if _, err := c.Definitions.DebounceDelayDuration(); err != nil {
		return fmt.Errorf("definitions.debounce_delay: %w", err)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn, or error")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Automation
	if other.Automation.DrainInterval != "" {
		c.Automation.DrainInterval = other.Automation.DrainInterval
	}
	if other.Automation.HistoryLimit != 0 {
		c.Automation.HistoryLimit = other.Automation.HistoryLimit
	}

	// Schedule
	if other.Schedule.ConflictThreshold != "" {
		c.Schedule.ConflictThreshold = other.Schedule.ConflictThreshold
	}
	if other.Schedule.AvailableHours != 0 {
		c.Schedule.AvailableHours = other.Schedule.AvailableHours
	}

	// Storage
	if other.Storage.Path != "" {
		c.Storage.Path = other.Storage.Path
	}

	// Definitions
	if other.Definitions.Dir != "" {
		c.Definitions.Dir = other.Definitions.Dir
		c.Definitions.Watch = other.Definitions.Watch
	}
	if other.Definitions.DebounceDelay != "" {
		c.Definitions.DebounceDelay = other.Definitions.DebounceDelay
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}
