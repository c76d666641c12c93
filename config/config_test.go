package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Automation.DrainInterval != "30s" {
		t.Errorf("expected default drain interval 30s, got %s", cfg.Automation.DrainInterval)
	}
	if cfg.Automation.HistoryLimit != 1000 {
		t.Errorf("expected default history limit 1000, got %d", cfg.Automation.HistoryLimit)
	}
	if cfg.Schedule.ConflictThreshold != "30m" {
		t.Errorf("expected default conflict threshold 30m, got %s", cfg.Schedule.ConflictThreshold)
	}
	if cfg.Schedule.AvailableHours != 40 {
		t.Errorf("expected default available hours 40, got %f", cfg.Schedule.AvailableHours)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("expected default logging info/text, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Storage.Path != "" {
		t.Errorf("expected in-memory storage by default, got %s", cfg.Storage.Path)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "bad drain interval",
			modify:  func(c *Config) { c.Automation.DrainInterval = "soon" },
			wantErr: true,
		},
		{
			name:    "negative history limit",
			modify:  func(c *Config) { c.Automation.HistoryLimit = -1 },
			wantErr: true,
		},
		{
			name:    "bad conflict threshold",
			modify:  func(c *Config) { c.Schedule.ConflictThreshold = "half an hour" },
			wantErr: true,
		},
		{
			name:    "negative available hours",
			modify:  func(c *Config) { c.Schedule.AvailableHours = -8 },
			wantErr: true,
		},
		{
			name:    "bad debounce delay",
			modify:  func(c *Config) { c.Definitions.DebounceDelay = "a while" },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
automation:
  drain_interval: 10s
  history_limit: 250
schedule:
  conflict_threshold: 45m
  available_hours: 35
storage:
  path: /var/lib/caseflow/caseflow.db
definitions:
  dir: /etc/caseflow/definitions
  watch: true
log:
  level: debug
  format: json
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if d, err := cfg.Automation.DrainIntervalDuration(); err != nil || d != 10*time.Second {
		t.Errorf("expected drain interval 10s, got %v (%v)", d, err)
	}
	if cfg.Automation.HistoryLimit != 250 {
		t.Errorf("expected history limit 250, got %d", cfg.Automation.HistoryLimit)
	}
	if d, err := cfg.Schedule.ConflictThresholdDuration(); err != nil || d != 45*time.Minute {
		t.Errorf("expected conflict threshold 45m, got %v (%v)", d, err)
	}
	if cfg.Schedule.AvailableHours != 35 {
		t.Errorf("expected available hours 35, got %f", cfg.Schedule.AvailableHours)
	}
	if cfg.Storage.Path != "/var/lib/caseflow/caseflow.db" {
		t.Errorf("expected storage path, got %s", cfg.Storage.Path)
	}
	if cfg.Definitions.Dir != "/etc/caseflow/definitions" || !cfg.Definitions.Watch {
		t.Errorf("expected watched definitions dir, got %+v", cfg.Definitions)
	}
	// Unset fields keep their defaults.
	if cfg.Definitions.DebounceDelay != "500ms" {
		t.Errorf("expected default debounce delay, got %s", cfg.Definitions.DebounceDelay)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("expected logging debug/json, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Automation: AutomationConfig{
			DrainInterval: "5s",
		},
		Storage: StorageConfig{
			Path: "/override/caseflow.db",
		},
	}

	base.Merge(override)

	if base.Automation.DrainInterval != "5s" {
		t.Errorf("expected drain interval 5s, got %s", base.Automation.DrainInterval)
	}
	// History limit should remain from base since override didn't set it
	if base.Automation.HistoryLimit != 1000 {
		t.Errorf("expected history limit to remain default, got %d", base.Automation.HistoryLimit)
	}
	if base.Storage.Path != "/override/caseflow.db" {
		t.Errorf("expected storage path /override/caseflow.db, got %s", base.Storage.Path)
	}
	if base.Schedule.ConflictThreshold != "30m" {
		t.Errorf("expected conflict threshold to remain default, got %s", base.Schedule.ConflictThreshold)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Schedule.ConflictThreshold = "20m"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Schedule.ConflictThreshold != "20m" {
		t.Errorf("expected conflict threshold 20m, got %s", loaded.Schedule.ConflictThreshold)
	}
}
