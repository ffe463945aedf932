package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned by Open when another process holds the data
// directory.
var ErrLocked = errors.New("database directory is in use by another process")

const (
	lockFileName      = ".edjournal.lock"
	defaultLockWait   = 5 * time.Second
	lockRetryInterval = 100 * time.Millisecond
)

// dirLock is an advisory lock on the data directory, held while a store is
// open so two engines never write the same database. The lock file records
// the holder's PID.
type dirLock struct {
	path string
	file *os.File
}

// acquireDirLock locks dir, retrying until wait elapses. A zero wait makes
// a single attempt.
func acquireDirLock(dir string, wait time.Duration) (*dirLock, error) {
	path := filepath.Join(dir, lockFileName)
	deadline := time.Now().Add(wait)
	for {
		l, err := tryDirLock(path)
		if err == nil {
			return l, nil
		}
		if !contended(err) {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if !time.Now().Before(deadline) {
			if pid := lockHolder(dir); pid > 0 {
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
			return nil, ErrLocked
		}
		time.Sleep(lockRetryInterval)
	}
}

func tryDirLock(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := lockFD(f); err != nil {
		f.Close()
		return nil, err
	}

	// The PID is informational; a failed write still leaves us the lock.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
		_ = f.Sync()
	}
	return &dirLock{path: path, file: f}, nil
}

// release unlocks and removes the lock file. It is nil-safe and idempotent.
func (l *dirLock) release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	unlockFD(f)
	if err := f.Close(); err != nil {
		return fmt.Errorf("close lock file: %w", err)
	}
	_ = os.Remove(l.path)
	return nil
}

// lockHolder returns the PID recorded in dir's lock file, 0 if unknown.
func lockHolder(dir string) int {
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// DirLocked reports whether some open store holds dir.
func DirLocked(dir string) bool {
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := lockFD(f); err != nil {
		return contended(err)
	}
	unlockFD(f)
	return false
}
