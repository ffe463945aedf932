package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete edjournal configuration.
type Config struct {
	Journal  JournalConfig  `yaml:"journal"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Backfill BackfillConfig `yaml:"backfill"`
	Log      LogConfig      `yaml:"log"`
}

// JournalConfig controls journal discovery and tailing.
type JournalConfig struct {
	Dir             string `yaml:"dir"`                // Journal directory (empty = game default)
	PollIntervalMs  int    `yaml:"poll_interval_ms"`   // Fallback poll interval when no fs events arrive
	MaxFiles        int    `yaml:"max_files"`          // Max journal files considered per listing
	MaxLinesPerRead int    `yaml:"max_lines_per_read"` // Max lines returned by a single read
}

// DatabaseConfig controls the embedded store.
type DatabaseConfig struct {
	Path                 string `yaml:"path"`                   // Database file (empty = data dir default)
	BusyTimeoutMs        int    `yaml:"busy_timeout_ms"`        // SQLite busy timeout
	CheckpointIntervalMs int    `yaml:"checkpoint_interval_ms"` // WAL checkpoint cadence (0 = disabled)
}

// UpstreamConfig controls the EDSM read-through cache.
type UpstreamConfig struct {
	BaseURL            string `yaml:"base_url"`
	TimeoutMs          int    `yaml:"timeout_ms"`
	MinIntervalMs      int    `yaml:"min_interval_ms"` // Minimum spacing between outbound requests
	MaxRetries         int    `yaml:"max_retries"`
	RetryBackoffMs     int    `yaml:"retry_backoff_ms"`
	MemoryTTLSeconds   int    `yaml:"memory_ttl_seconds"`
	PersistentTTLHours int    `yaml:"persistent_ttl_hours"`
	MaxMemoryEntries   int    `yaml:"max_memory_entries"`
	SweepIntervalMins  int    `yaml:"sweep_interval_mins"`
}

// BackfillConfig controls bulk historical replay.
type BackfillConfig struct {
	MaxFiles int `yaml:"max_files"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`  // Empty = stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Journal: JournalConfig{
			Dir:             "",
			PollIntervalMs:  1000,
			MaxFiles:        10000,
			MaxLinesPerRead: 200000,
		},
		Database: DatabaseConfig{
			Path:                 "",
			BusyTimeoutMs:        5000,
			CheckpointIntervalMs: 300000,
		},
		Upstream: UpstreamConfig{
			BaseURL:            "https://www.edsm.net",
			TimeoutMs:          10000,
			MinIntervalMs:      1000,
			MaxRetries:         3,
			RetryBackoffMs:     500,
			MemoryTTLSeconds:   600,
			PersistentTTLHours: 24,
			MaxMemoryEntries:   500,
			SweepIntervalMins:  30,
		},
		Backfill: BackfillConfig{
			MaxFiles: 10000,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	return LoadFromFile(DefaultPaths().ConfigFile())
}

// LoadFromFile loads configuration from a specific file.
// A missing file yields the defaults with environment overrides applied.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Journal.PollIntervalMs <= 0 {
		return errors.New("journal.poll_interval_ms must be > 0")
	}
	if c.Journal.MaxFiles <= 0 {
		return errors.New("journal.max_files must be > 0")
	}
	if c.Journal.MaxLinesPerRead <= 0 {
		return errors.New("journal.max_lines_per_read must be > 0")
	}
	if c.Database.BusyTimeoutMs < 0 {
		return errors.New("database.busy_timeout_ms must be >= 0")
	}
	if c.Database.CheckpointIntervalMs < 0 {
		return errors.New("database.checkpoint_interval_ms must be >= 0")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url must not be empty")
	}
	if c.Upstream.MinIntervalMs < 0 {
		return errors.New("upstream.min_interval_ms must be >= 0")
	}
	if c.Upstream.MaxRetries < 0 || c.Upstream.MaxRetries > 10 {
		return fmt.Errorf("upstream.max_retries must be between 0 and 10 (got: %d)", c.Upstream.MaxRetries)
	}
	if c.Upstream.MemoryTTLSeconds <= 0 {
		return errors.New("upstream.memory_ttl_seconds must be > 0")
	}
	if c.Upstream.PersistentTTLHours <= 0 {
		return errors.New("upstream.persistent_ttl_hours must be > 0")
	}
	if c.Upstream.MaxMemoryEntries <= 0 {
		return errors.New("upstream.max_memory_entries must be > 0")
	}
	if c.Backfill.MaxFiles <= 0 {
		return errors.New("backfill.max_files must be > 0")
	}
	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EDJOURNAL_JOURNAL_DIR"); v != "" {
		c.Journal.Dir = v
	}
	if v := os.Getenv("EDJOURNAL_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("EDJOURNAL_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
	if v := os.Getenv("EDJOURNAL_EDSM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
}

// JournalDir returns the configured journal directory or the game default.
func (c *Config) JournalDir() string {
	if c.Journal.Dir != "" {
		return c.Journal.Dir
	}
	return DefaultJournalDir()
}

// DatabasePath returns the configured database path or the data dir default.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return DefaultPaths().DatabaseFile()
}

// PollInterval returns the fallback poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Journal.PollIntervalMs) * time.Millisecond
}

// MemoryTTL returns the upstream memory tier TTL.
func (c *Config) MemoryTTL() time.Duration {
	return time.Duration(c.Upstream.MemoryTTLSeconds) * time.Second
}

// PersistentTTL returns the upstream persistent tier TTL.
func (c *Config) PersistentTTL() time.Duration {
	return time.Duration(c.Upstream.PersistentTTLHours) * time.Hour
}
