package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
sportsdata:
  base_url: https://fixtures.example.com
ledger:
  base_url: https://ledger.example.com
  auth_token: secret
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal config should validate: %v", err)
	}

	if cfg.Resolution.TypicalDuration != 95*time.Minute {
		t.Errorf("typical_duration default = %v, want 95m", cfg.Resolution.TypicalDuration)
	}
	if cfg.Resolution.HardCutoff != 3*time.Hour {
		t.Errorf("hard_cutoff default = %v, want 3h", cfg.Resolution.HardCutoff)
	}
	if cfg.Resolution.Lookback != 48*time.Hour {
		t.Errorf("lookback default = %v, want 48h", cfg.Resolution.Lookback)
	}
	if cfg.Sweep.Interval != 15*time.Minute {
		t.Errorf("sweep interval default = %v, want 15m", cfg.Sweep.Interval)
	}
	if cfg.Sweep.GracePeriod != time.Hour {
		t.Errorf("grace_period default = %v, want 1h", cfg.Sweep.GracePeriod)
	}
	if cfg.Sync.Schedule != "0 6 * * *" {
		t.Errorf("sync schedule default = %q, want %q", cfg.Sync.Schedule, "0 6 * * *")
	}
	if cfg.Telegram.Enabled {
		t.Error("telegram should be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
resolution:
  typical_duration: 120m
  hard_cutoff: 4h
sweep:
  grace_period: 30m
logging:
  level: debug
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Resolution.TypicalDuration != 120*time.Minute {
		t.Errorf("typical_duration = %v, want 120m", cfg.Resolution.TypicalDuration)
	}
	if cfg.Resolution.HardCutoff != 4*time.Hour {
		t.Errorf("hard_cutoff = %v, want 4h", cfg.Resolution.HardCutoff)
	}
	if cfg.Sweep.GracePeriod != 30*time.Minute {
		t.Errorf("grace_period = %v, want 30m", cfg.Sweep.GracePeriod)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, minimalConfig))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing sportsdata base url", func(c *Config) { c.SportsData.BaseURL = "" }},
		{"missing ledger base url", func(c *Config) { c.Ledger.BaseURL = "" }},
		{"missing ledger token", func(c *Config) { c.Ledger.AuthToken = "" }},
		{"zero sportsdata retries", func(c *Config) { c.SportsData.MaxRetries = 0 }},
		{"sub-minute typical duration", func(c *Config) { c.Resolution.TypicalDuration = 30 * time.Second }},
		{"cutoff inside typical duration", func(c *Config) { c.Resolution.HardCutoff = time.Hour }},
		{"sub-minute sweep interval", func(c *Config) { c.Sweep.Interval = 10 * time.Second }},
		{"sub-minute grace period", func(c *Config) { c.Sweep.GracePeriod = 0 }},
		{"sync without schedule", func(c *Config) { c.Sync.Schedule = "" }},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }},
		{"telegram without chat id", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.BotToken = "x" }},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"web without admin token", func(c *Config) { c.Web.Enabled = true }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
