package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file at the root of a workspace.
const FileName = "edubill.yaml"

// Store drivers.
const (
	DriverWorkspace = "workspace"
	DriverPostgres  = "postgres"
)

// Config represents the top-level edubill.yaml configuration.
type Config struct {
	Institution InstitutionConfig `yaml:"institution"`
	Store       StoreConfig       `yaml:"store"`
	Billing     BillingConfig     `yaml:"billing"`
	Server      ServerConfig      `yaml:"server"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
}

// InstitutionConfig identifies who runs the accounts.
type InstitutionConfig struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"` // display label only
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "workspace" or "postgres"
	DSN    string `yaml:"dsn,omitempty"`
}

// BillingConfig holds defaults for new courses.
type BillingConfig struct {
	DefaultDeadlineDays int    `yaml:"default_deadline_days"`
	Timezone            string `yaml:"timezone"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// SchedulerConfig controls execution of scheduled ledger entries.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // robfig/cron spec, e.g. "@every 1m"
}

// Load reads an edubill.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new workspace.
func Default(institution string) *Config {
	return &Config{
		Institution: InstitutionConfig{
			Name:     institution,
			Currency: "SGD",
		},
		Store: StoreConfig{
			Driver: DriverWorkspace,
		},
		Billing: BillingConfig{
			DefaultDeadlineDays: 14,
			Timezone:            "UTC",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MetricsPath: "/metrics",
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Cron:    "@every 1m",
		},
	}
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverWorkspace:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Billing.DefaultDeadlineDays < 0 {
		return errors.New("billing.default_deadline_days must not be negative")
	}
	return nil
}

// Env variables overlaid by ApplyEnv.
const (
	EnvDSN       = "EDUBILL_DATABASE_DSN"
	EnvDriver    = "EDUBILL_STORE_DRIVER"
	EnvAddr      = "EDUBILL_SERVER_ADDR"
	EnvCron      = "EDUBILL_SCHEDULER_CRON"
	EnvScheduler = "EDUBILL_SCHEDULER_ENABLED"
)

// ApplyEnv loads envFile (if it exists) into the process environment and
// overlays EDUBILL_* variables onto cfg. Variables already set in the
// environment win over the file.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if v := os.Getenv(EnvDriver); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv(EnvCron); v != "" {
		cfg.Scheduler.Cron = v
	}
	if v := os.Getenv(EnvScheduler); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvScheduler, err)
		}
		cfg.Scheduler.Enabled = enabled
	}
	return nil
}
