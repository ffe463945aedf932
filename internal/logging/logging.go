// Package logging provides JSON-lines structured logging for edjournal.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config configures the structured logger.
type Config struct {
	// Output is the writer for log output (default: os.Stderr)
	Output io.Writer

	// Level is the minimum log level (default: LevelInfo)
	Level slog.Level

	// Debug enables debug level logging (overrides Level)
	Debug bool

	// File, when set, tees output into a size-rotated log file.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns the default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Output:     os.Stderr,
		Level:      slog.LevelInfo,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// New creates a new JSON-lines structured logger. Log lines look like:
//
//	{"ts":"2024-01-15T10:30:00Z","level":"INFO","msg":"journal rotated","path":"Journal.2024-01-15T103000.01.log"}
//
// The returned closer releases the rotating file, if any.
func New(cfg *Config) (*slog.Logger, io.Closer) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    positiveOr(cfg.MaxSizeMB, 10),
				MaxBackups: positiveOr(cfg.MaxBackups, 3),
				MaxAge:     positiveOr(cfg.MaxAgeDays, 28),
			}
			output = io.MultiWriter(output, rotator)
			closer = rotator
		}
	}

	level := cfg.Level
	if cfg.Debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Key = "ts"
			}
			return a
		},
	}

	return slog.New(slog.NewJSONHandler(output, opts)), closer
}

// NewFromEnv creates a logger configured from environment variables.
// EDJOURNAL_DEBUG=1 enables debug logging.
func NewFromEnv() *slog.Logger {
	cfg := DefaultConfig()
	if os.Getenv("EDJOURNAL_DEBUG") == "1" {
		cfg.Debug = true
	}
	logger, _ := New(cfg)
	return logger
}

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns logger, or slog.Default() when nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// StartupInfo holds information to log at engine startup.
type StartupInfo struct {
	Version       string
	ConfigPath    string
	DatabasePath  string
	SchemaVersion int
	JournalDir    string
	PID           int
}

// LogStartup logs engine startup information.
func LogStartup(logger *slog.Logger, info StartupInfo) {
	logger.Info("engine started",
		"version", info.Version,
		"config_path", info.ConfigPath,
		"database_path", info.DatabasePath,
		"schema_version", info.SchemaVersion,
		"journal_dir", info.JournalDir,
		"pid", info.PID,
	)
}

// LogShutdown logs engine shutdown.
func LogShutdown(logger *slog.Logger, reason string) {
	logger.Info("engine shutting down", "reason", reason)
}

// LogSQLiteError logs SQLite errors.
func LogSQLiteError(logger *slog.Logger, operation string, err error) {
	logger.Error("sqlite error", "operation", operation, "error", err)
}

// LogIntegrityCheckFailed logs when an integrity check fails.
func LogIntegrityCheckFailed(logger *slog.Logger, dbPath string, err error) {
	logger.Error("database integrity check failed",
		"database_path", dbPath,
		"error", err,
	)
}
