// Package app wires the conversation engine, storage, and recovery router
// to the Telegram transport.
package app

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/babababa22003300kaka-bot/eafc232cons/core/config"
	coredatabase "github.com/babababa22003300kaka-bot/eafc232cons/core/database"
)

// BackupConfig controls the periodic sqlite file backup.
type BackupConfig struct {
	Dir             string `yaml:"dir" envconfig:"BACKUP_DIR"`
	IntervalMinutes int    `yaml:"interval_minutes" envconfig:"BACKUP_INTERVAL_MINUTES"`
	Retention       int    `yaml:"retention" envconfig:"BACKUP_RETENTION"`
}

// Config is the bot configuration: the shared core sections plus the
// database and backup sections this bot adds.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Backup   BackupConfig        `yaml:"backup"`
}

// CoreConfig exposes the embedded core configuration to the runner.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Core }

// LoadConfig reads YAML, applies environment overrides, and validates.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) error {
	if cfg.Core.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/bot.db"
	}
	if cfg.Database.BusyTimeoutMS <= 0 {
		cfg.Database.BusyTimeoutMS = 5000
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 4
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "migrations"
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "backups"
	}
	if cfg.Backup.IntervalMinutes < 0 {
		return fmt.Errorf("backup.interval_minutes must be >= 0")
	}
	if cfg.Backup.Retention <= 0 {
		cfg.Backup.Retention = 10
	}
	return nil
}
