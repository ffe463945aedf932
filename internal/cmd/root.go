// Package cmd implements the edjournal command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/runger/edjournal/internal/config"
	"github.com/runger/edjournal/internal/engine"
	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/metrics"
	"github.com/runger/edjournal/internal/store"
)

const (
	groupCore  = "core"
	groupData  = "data"
	groupSetup = "setup"
)

// Global flags.
var (
	configPath string
	journalDir string
	dbPath     string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "edjournal",
	Short: "Exploration journal ingestion for Elite Dangerous",
	Long: `edjournal - follows the game's journal and keeps an exploration database
  - watch     tail the newest journal and stream what you discover
  - backfill  replay every historical journal into the database
  - route     list recent jumps and what was found along the way`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed in a form fit for
// players; raw store text only goes to the log.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logging.NewFromEnv().Debug("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "edjournal: %s\n", UserMessage(err))
	}
	return err
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Journal Commands:"},
		&cobra.Group{ID: groupData, Title: "Data Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup Commands:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "config file (default: "+config.DefaultPaths().ConfigFile()+")")
	pf.StringVar(&journalDir, "journal-dir", "", "journal directory (overrides config)")
	pf.StringVar(&dbPath, "db", "", "database file (overrides config)")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(versionCmd)
}

// UserMessage turns err into text safe to show a player.
func UserMessage(err error) string {
	var se *store.Error
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return err.Error()
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPaths().ConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if journalDir != "" {
		cfg.Journal.Dir = journalDir
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app is everything a command needs, opened from the config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	metrics *metrics.Metrics
	engine  *engine.Engine
	closers []io.Closer
}

type appOptions struct {
	metricsAddr string
}

func openApp(ctx context.Context, stderr io.Writer, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCloser := logging.New(&logging.Config{
		Output:     stderr,
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	a := &app{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}

	s, err := store.Open(ctx, store.Options{
		Path:               cfg.DatabasePath(),
		Logger:             logger,
		BusyTimeout:        msDuration(cfg.Database.BusyTimeoutMs),
		CheckpointInterval: checkpointInterval(cfg.Database.CheckpointIntervalMs),
	})
	if err != nil {
		if errors.Is(err, store.ErrMigrationFailed) {
			logger.Error("database migration failed", "path", cfg.DatabasePath(), "error", err)
		}
		a.Close()
		return nil, err
	}
	a.store = s
	a.closers = append([]io.Closer{s}, a.closers...)

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = m

	e, err := engine.New(engine.Options{
		Config:      cfg,
		Store:       s,
		Logger:      logger,
		Metrics:     m,
		MetricsAddr: opts.metricsAddr,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = e

	version, _ := s.Version(ctx)
	logging.LogStartup(logger, logging.StartupInfo{
		Version:       Version,
		ConfigPath:    configPath,
		DatabasePath:  cfg.DatabasePath(),
		SchemaVersion: version,
		JournalDir:    e.JournalDir(),
		PID:           os.Getpid(),
	})
	return a, nil
}

// Close releases the engine, the store and the log file, in that order.
func (a *app) Close() {
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			a.logger.Warn("engine stopped with error", "error", err)
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}
