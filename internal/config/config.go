// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	SportsData SportsDataConfig `mapstructure:"sportsdata"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Web        WebConfig        `mapstructure:"web"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SportsDataConfig holds the upstream fixtures API configuration.
type SportsDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RetryDelayMax  time.Duration `mapstructure:"retry_delay_max"`
}

// LedgerConfig holds the settlement ledger service configuration.
type LedgerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AuthToken      string        `mapstructure:"auth_token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RetryDelayMax  time.Duration `mapstructure:"retry_delay_max"`
}

// ResolutionConfig holds the completion-prediction policy.
type ResolutionConfig struct {
	// TypicalDuration is the expected kickoff-to-final-whistle duration.
	TypicalDuration time.Duration `mapstructure:"typical_duration"`
	// HardCutoff, measured from kickoff, ends predictive polling.
	HardCutoff time.Duration `mapstructure:"hard_cutoff"`
	// RecheckInterval paces rechecks after the initial back-off sequence.
	RecheckInterval time.Duration `mapstructure:"recheck_interval"`
	// Lookback is the window for re-fetching older unresolved events.
	Lookback time.Duration `mapstructure:"lookback"`
}

// SweepConfig holds the stale-event cancellation policy.
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// GracePeriod is how long a same-day postponement may linger before it
	// is voided on the ledger.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// SyncConfig holds the daily fixture-ingestion schedule.
type SyncConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// TelegramConfig holds announcement and admin-command configuration.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds event-store configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// WebConfig holds the administrative HTTP API configuration.
type WebConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	AdminToken string `mapstructure:"admin_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	v.SetEnvPrefix("MATCHDAY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures the documented defaults for all options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("sportsdata.timeout", "30s")
	v.SetDefault("sportsdata.max_retries", 3)
	v.SetDefault("sportsdata.retry_delay_base", "1s")
	v.SetDefault("sportsdata.retry_delay_max", "30s")

	v.SetDefault("ledger.timeout", "30s")
	v.SetDefault("ledger.max_retries", 3)
	v.SetDefault("ledger.retry_delay_base", "1s")
	v.SetDefault("ledger.retry_delay_max", "30s")

	v.SetDefault("resolution.typical_duration", "95m")
	v.SetDefault("resolution.hard_cutoff", "3h")
	v.SetDefault("resolution.recheck_interval", "10m")
	v.SetDefault("resolution.lookback", "48h")

	v.SetDefault("sweep.interval", "15m")
	v.SetDefault("sweep.grace_period", "1h")

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.schedule", "0 6 * * *")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.db_path", "./data/matchday.db")

	v.SetDefault("web.enabled", false)
	v.SetDefault("web.listen_addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are usable.
func (c *Config) Validate() error {
	if c.SportsData.BaseURL == "" {
		return fmt.Errorf("sportsdata.base_url is required")
	}
	if c.SportsData.MaxRetries < 1 {
		return fmt.Errorf("sportsdata.max_retries must be at least 1")
	}
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required")
	}
	if c.Ledger.AuthToken == "" {
		return fmt.Errorf("ledger.auth_token is required")
	}
	if c.Ledger.MaxRetries < 1 {
		return fmt.Errorf("ledger.max_retries must be at least 1")
	}

	if c.Resolution.TypicalDuration < time.Minute {
		return fmt.Errorf("resolution.typical_duration must be at least 1 minute")
	}
	if c.Resolution.HardCutoff <= c.Resolution.TypicalDuration {
		return fmt.Errorf("resolution.hard_cutoff must exceed resolution.typical_duration")
	}
	if c.Resolution.RecheckInterval < time.Minute {
		return fmt.Errorf("resolution.recheck_interval must be at least 1 minute")
	}
	if c.Resolution.Lookback < time.Hour {
		return fmt.Errorf("resolution.lookback must be at least 1 hour")
	}

	if c.Sweep.Interval < time.Minute {
		return fmt.Errorf("sweep.interval must be at least 1 minute")
	}
	if c.Sweep.GracePeriod < time.Minute {
		return fmt.Errorf("sweep.grace_period must be at least 1 minute")
	}

	if c.Sync.Enabled && c.Sync.Schedule == "" {
		return fmt.Errorf("sync.schedule is required when sync is enabled")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Web.Enabled {
		if c.Web.ListenAddr == "" {
			return fmt.Errorf("web.listen_addr is required when web is enabled")
		}
		if c.Web.AdminToken == "" {
			return fmt.Errorf("web.admin_token is required when web is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
