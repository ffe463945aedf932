package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultConfig(t *testing.T) {
	t.Parallel()

	logger, closer := New(nil)
	assert.NotNil(t, logger)
	assert.NoError(t, closer.Close())
}

func TestNew_JSONOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := New(&Config{Output: &buf, Level: slog.LevelInfo})

	logger.Info("journal rotated", "path", "Journal.01.log")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, "ts")
	assert.NotContains(t, entry, "time")
	assert.Equal(t, "journal rotated", entry["msg"])
	assert.Equal(t, "Journal.01.log", entry["path"])
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := New(&Config{Output: &buf, Level: slog.LevelError, Debug: true})

	logger.Debug("debug message")
	assert.Contains(t, buf.String(), "debug message")
}

func TestNew_InfoHidesDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := New(&Config{Output: &buf, Level: slog.LevelInfo})

	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNew_FileRotation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "edjournal.log")
	var buf bytes.Buffer
	logger, closer := New(&Config{Output: &buf, File: path})

	logger.Warn("store busy", "error", errors.New("database is locked"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "store busy")
	assert.Contains(t, buf.String(), "store busy")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestOrDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.Default(), OrDefault(nil))
	l := Discard()
	assert.Equal(t, l, OrDefault(l))
}

func TestLogHelpers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, _ := New(&Config{Output: &buf, Level: slog.LevelDebug})

	LogStartup(logger, StartupInfo{Version: "1.0.0", SchemaVersion: 1, PID: 42})
	LogShutdown(logger, "signal")
	LogSQLiteError(logger, "upsert_body", errors.New("boom"))
	LogIntegrityCheckFailed(logger, "/tmp/x.db", errors.New("corrupt"))

	out := buf.String()
	assert.Contains(t, out, "engine started")
	assert.Contains(t, out, `"schema_version":1`)
	assert.Contains(t, out, "engine shutting down")
	assert.Contains(t, out, "upsert_body")
	assert.Contains(t, out, "database integrity check failed")
}
