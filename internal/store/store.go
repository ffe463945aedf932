// Package store persists exploration state in an embedded SQLite database.
//
// Every write merges with what is already stored instead of replacing it:
// fidelity and "by me" flags only move up, descriptive fields keep their
// existing value when an observation leaves them out, and system aggregates
// are recomputed after each body mutation. Replaying the same journal twice
// therefore leaves the database unchanged.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrDatabaseClosed is returned when an operation is attempted on a closed store.
var ErrDatabaseClosed = errors.New("database is closed")

const defaultCheckpointInterval = 5 * time.Minute

// Store is the exploration database.
type Store struct {
	db        *sql.DB
	lock      *dirLock
	logger    *slog.Logger
	path      string
	stopCh    chan struct{}
	stoppedCh chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	now       func() time.Time
}

// Options configures Open.
type Options struct {
	Logger             *slog.Logger
	Path               string
	LockTimeout        time.Duration
	BusyTimeout        time.Duration
	CheckpointInterval time.Duration
	SkipLock           bool
	ReadOnly           bool
}

// Open opens the database at opts.Path, takes the directory lock and brings
// the schema up to date. A migration failure is fatal: the returned error
// satisfies errors.Is(err, ErrMigrationFailed).
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, &Error{Op: "open", Kind: KindConfiguration, Err: errors.New("database path is required")}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(opts.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, wrap("open", fmt.Errorf("failed to create database directory: %w", err))
	}

	var lock *dirLock
	if !opts.SkipLock && !opts.ReadOnly {
		wait := defaultLockWait
		if opts.LockTimeout > 0 {
			wait = opts.LockTimeout
		}
		l, err := acquireDirLock(dir, wait)
		if err != nil {
			return nil, &Error{Op: "open", Kind: KindConfiguration, Err: err}
		}
		lock = l
	}

	db, err := openAndInit(ctx, opts)
	if err != nil {
		_ = lock.release()
		return nil, err
	}

	s := &Store{
		db:        db,
		lock:      lock,
		logger:    logger,
		path:      opts.Path,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		now:       time.Now,
	}

	interval := opts.CheckpointInterval
	if interval == 0 {
		interval = defaultCheckpointInterval
	}
	if opts.ReadOnly || interval < 0 {
		close(s.stoppedCh)
	} else {
		go s.walCheckpointLoop(interval)
	}
	return s, nil
}

func openAndInit(ctx context.Context, opts Options) (*sql.DB, error) {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		opts.Path, busy.Milliseconds())
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, wrap("open", fmt.Errorf("failed to open database: %w", err))
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrap("open", fmt.Errorf("failed to connect to database: %w", err))
	}

	if !opts.ReadOnly {
		if err := RunMigrations(ctx, db); err != nil {
			db.Close()
			kind := Classify(err)
			if kind != KindCorruption {
				kind = KindConfiguration
			}
			return nil, &Error{Op: "migrate", Kind: kind, Err: fmt.Errorf("%w: %w", ErrMigrationFailed, err)}
		}
	}
	return db, nil
}

// Close stops background work, checkpoints the WAL and releases the lock.
// It is safe to call Close multiple times.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
		<-s.stoppedCh

		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		s.closeErr = s.db.Close()

		if err := s.lock.release(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// Version returns the current schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	v, err := GetSchemaVersion(ctx, s.db)
	return v, wrap("version", err)
}

// GetMeta returns a metadata value, ErrNotFound when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, wrap("get_meta", err)
}

// SetMeta stores a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return wrap("set_meta", err)
}

func (s *Store) walCheckpointLoop(interval time.Duration) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
				s.logger.Warn("WAL checkpoint failed", "error", err)
			}
		}
	}
}

// withTx runs fn in a transaction and classifies any failure.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if s.closed.Load() {
		return &Error{Op: op, Kind: KindConfiguration, Err: ErrDatabaseClosed}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap(op, fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // Best effort rollback on error

	if err := fn(tx); err != nil {
		return wrap(op, err)
	}
	if err := tx.Commit(); err != nil {
		return wrap(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullBool maps a tri-state flag onto a nullable INTEGER.
func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(boolToInt(*b)), Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}
