package config

import (
	"time"

	"github.com/streamwatch/streamwatch/internal/consts"
)

type (
	Config struct {
		Server  ServerConfig  `yaml:"server"`
		Logging LoggingConfig `yaml:"logging"`
		Engine  EngineConfig  `yaml:"engine"`
		Browser BrowserConfig `yaml:"browser"`
	}

	ServerConfig struct {
		Bind        string `yaml:"bind"`
		APIKey      string `yaml:"api_key"`
		MetricsBind string `yaml:"metrics_bind"`
	}

	LoggingConfig struct {
		Level      string `yaml:"level"`  // debug, info, warn, error
		Format     string `yaml:"format"` // json, text
		Output     string `yaml:"output"` // stdout, file, both
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"` // MB
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"` // days
	}

	EngineConfig struct {
		Store                  string `yaml:"store"`
		TickIntervalSec        int    `yaml:"tick_interval_sec"`
		CleanupSchedule        string `yaml:"cleanup_schedule"` // 5-field cron expression
		CompletedRetentionDays int    `yaml:"completed_retention_days"`
	}

	BrowserConfig struct {
		ChromeBin        string `yaml:"chrome_bin"`
		UserDataDir      string `yaml:"user_data_dir"`
		DownloadDir      string `yaml:"download_dir"`
		Headless         *bool  `yaml:"headless"`
		VacateTimeoutSec int    `yaml:"vacate_timeout_sec"`
		SettleDelaySec   int    `yaml:"settle_delay_sec"`
	}
)

func (c *EngineConfig) StorePath() string {
	if c.Store != "" {
		return c.Store
	}
	return consts.DefaultSchedulesPath()
}

func (c *EngineConfig) TickInterval() time.Duration {
	if c.TickIntervalSec > 0 {
		return time.Duration(c.TickIntervalSec) * time.Second
	}
	return 30 * time.Second
}

func (c *EngineConfig) Retention() time.Duration {
	days := c.CompletedRetentionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c *BrowserConfig) VacateTimeout() time.Duration {
	if c.VacateTimeoutSec > 0 {
		return time.Duration(c.VacateTimeoutSec) * time.Second
	}
	return 10 * time.Second
}

func (c *BrowserConfig) SettleDelay() time.Duration {
	if c.SettleDelaySec > 0 {
		return time.Duration(c.SettleDelaySec) * time.Second
	}
	return 3 * time.Second
}

func (c *BrowserConfig) IsHeadless() bool {
	if c.Headless == nil {
		return true
	}
	return *c.Headless
}
