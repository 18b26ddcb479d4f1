package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"medadmin/internal/schedule"
	"medadmin/internal/store"
)

// DefaultPath is used when MEDADMIN_CONFIG_PATH is not set.
const DefaultPath = "configs/config.yaml"

// PartitionConfig describes one document-store partition.
type PartitionConfig struct {
	Index   int    `yaml:"index"`
	BaseURL string `yaml:"base_url"`
	Auth    string `yaml:"auth"`
}

// BackupConfig controls periodic journal backups.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Config is the application configuration.
type Config struct {
	Partitions []PartitionConfig `yaml:"partitions"`

	Store struct {
		TimeoutSeconds    int     `yaml:"timeout_seconds"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"store"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Booking struct {
		Slots                  []string `yaml:"slots"`
		Cutoff                 string   `yaml:"cutoff"`
		ReleaseOwnSlotOnChange bool     `yaml:"release_own_slot_on_change"`
	} `yaml:"booking"`

	Journal struct {
		Path   string       `yaml:"path"`
		Backup BackupConfig `yaml:"backup"`
	} `yaml:"journal"`

	Export struct {
		Dir string `yaml:"dir"`
	} `yaml:"export"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// PathFromEnv returns MEDADMIN_CONFIG_PATH or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("MEDADMIN_CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML file at path, expands ${VAR} references and validates the result.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML config data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.TimeoutSeconds <= 0 {
		c.Store.TimeoutSeconds = 10
	}
	if c.Store.RequestsPerSecond == 0 {
		c.Store.RequestsPerSecond = 20
	}
	if c.Store.Burst <= 0 {
		c.Store.Burst = 5
	}
	if c.Booking.Cutoff == "" {
		c.Booking.Cutoff = schedule.DefaultCutoff
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/medadmin.db"
	}
	if c.Journal.Backup.IntervalHours <= 0 {
		c.Journal.Backup.IntervalHours = 24
	}
	if c.Journal.Backup.Path == "" {
		c.Journal.Backup.Path = filepath.Join(filepath.Dir(c.Journal.Path), "backups")
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks partitions, slots and cutoff.
func (c *Config) Validate() error {
	if len(c.Partitions) == 0 {
		return fmt.Errorf("config: no partitions configured")
	}
	seen := make(map[int]bool, len(c.Partitions))
	for _, p := range c.Partitions {
		if p.BaseURL == "" {
			return fmt.Errorf("config: partition %d has empty base_url", p.Index)
		}
		if p.Index < 0 {
			return fmt.Errorf("config: partition index %d is negative", p.Index)
		}
		if seen[p.Index] {
			return fmt.Errorf("config: duplicate partition index %d", p.Index)
		}
		seen[p.Index] = true
	}
	for i := range c.Partitions {
		if !seen[i] {
			return fmt.Errorf("config: partition indexes must be contiguous from 0, missing %d", i)
		}
	}

	slots, ok := schedule.NormalizeSlots(c.Booking.Slots)
	if !ok {
		return fmt.Errorf("config: booking.slots must be HH:MM values")
	}
	c.Booking.Slots = slots

	if !schedule.ValidTime(c.Booking.Cutoff) {
		return fmt.Errorf("config: booking.cutoff %q is not HH:MM", c.Booking.Cutoff)
	}
	return nil
}

// Endpoints converts the partition list for store.Open.
func (c *Config) Endpoints() []store.Endpoint {
	out := make([]store.Endpoint, 0, len(c.Partitions))
	for _, p := range c.Partitions {
		out = append(out, store.Endpoint{Index: p.Index, BaseURL: p.BaseURL, Auth: p.Auth})
	}
	return out
}

// Rules returns the booking rules.
func (c *Config) Rules() schedule.Rules {
	return schedule.Rules{
		Cutoff:                 c.Booking.Cutoff,
		ReleaseOwnSlotOnChange: c.Booking.ReleaseOwnSlotOnChange,
	}
}

// StoreTimeout returns the per-request timeout of partition clients.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long collection reads stay cached in Redis.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// BackupInterval returns the journal backup interval.
func (c *Config) BackupInterval() time.Duration {
	return time.Duration(c.Journal.Backup.IntervalHours) * time.Hour
}
