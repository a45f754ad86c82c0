package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/streamwatch/streamwatch/internal/consts"
)

// Load reads and validates the YAML config file at path. Missing optional
// fields keep their documented defaults; a missing file is an error so the
// caller can point the user at onboarding.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = consts.DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// WriteDefault creates a starter config file at path if none exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}

	cfg := &Config{}
	applyDefaults(cfg)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "0.0.0.0:8591"
	}
	if cfg.Server.MetricsBind == "" {
		cfg.Server.MetricsBind = "127.0.0.1:9591"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Engine.Store == "" {
		cfg.Engine.Store = consts.DefaultSchedulesPath()
	}
	if cfg.Engine.CleanupSchedule == "" {
		cfg.Engine.CleanupSchedule = "0 4 * * *"
	}
	if cfg.Browser.UserDataDir == "" {
		cfg.Browser.UserDataDir = consts.DefaultChromeDataDir()
	}
	if cfg.Browser.DownloadDir == "" {
		cfg.Browser.DownloadDir = consts.DefaultDownloadDir()
	}
}
