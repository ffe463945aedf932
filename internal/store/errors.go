package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind classifies a store failure by what the caller can do about it.
type Kind int

const (
	// KindUnknown is anything that could not be classified.
	KindUnknown Kind = iota
	// KindTransient failures (busy, locked, cancelled) may succeed on retry.
	KindTransient
	// KindConstraint failures violate a schema constraint.
	KindConstraint
	// KindCorruption means the database file is damaged.
	KindCorruption
	// KindConfiguration covers unreadable paths, permissions, full disks and
	// schema mismatches.
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConstraint:
		return "constraint"
	case KindCorruption:
		return "corruption"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// ErrMigrationFailed is wrapped by Open when the schema cannot be brought
// up to date. The store is unusable when this happens.
var ErrMigrationFailed = errors.New("database migration failed")

// ErrCacheNotFound is returned when a cache entry is missing or expired.
var ErrCacheNotFound = errors.New("cache entry not found")

// ErrNotFound is returned by getters when the row does not exist.
var ErrNotFound = errors.New("not found")

// Error is a classified store failure.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether repeating the operation may succeed.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// Fatal reports whether the store should be considered unusable.
func (e *Error) Fatal() bool {
	return errors.Is(e.Err, ErrMigrationFailed) || e.Kind == KindCorruption
}

// UserMessage returns a message safe to show to a player. Raw driver text
// is only ever logged.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindTransient:
		return "The exploration database is busy. Please try again."
	case KindConstraint:
		return "The exploration database rejected conflicting data."
	case KindCorruption:
		return "The exploration database appears to be damaged. Restore a backup or clear the data."
	case KindConfiguration:
		if errors.Is(e.Err, ErrMigrationFailed) {
			return "The exploration database could not be upgraded. Check file permissions and free disk space."
		}
		return "The exploration database could not be opened. Check file permissions and free disk space."
	default:
		return "An unexpected database error occurred."
	}
}

// wrap classifies err and tags it with op. nil stays nil.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Op: op, Kind: Classify(err), Err: err}
}

// Classify maps an error to a Kind using SQLite result codes where
// available and message text otherwise.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if k, ok := classifyCode(sqliteErr.Code()); ok {
			return k
		}
	}

	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.ENOSPC) {
		return KindConfiguration
	}

	return classifyMessage(err.Error())
}

func classifyCode(code int) (Kind, bool) {
	// Extended result codes carry the primary code in the low byte.
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT, sqlite3.SQLITE_PROTOCOL:
		return KindTransient, true
	case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH:
		return KindConstraint, true
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR:
		return KindCorruption, true
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY,
		sqlite3.SQLITE_FULL, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_SCHEMA:
		return KindConfiguration, true
	default:
		return KindUnknown, false
	}
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	switch {
	case containsAny(msg, "database is locked", "database table is locked", "sqlite_busy"):
		return KindTransient
	case containsAny(msg, "constraint failed", "unique constraint", "foreign key constraint"):
		return KindConstraint
	case containsAny(msg, "malformed", "not a database", "disk i/o error", "sqlite_corrupt"):
		return KindCorruption
	case containsAny(msg, "unable to open", "permission denied", "readonly database",
		"no space left", "disk full", "no such table", "no such column"):
		return KindConfiguration
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
