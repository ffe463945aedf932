package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1000, cfg.Journal.PollIntervalMs)
	assert.Equal(t, 10000, cfg.Journal.MaxFiles)
	assert.Equal(t, 200000, cfg.Journal.MaxLinesPerRead)
	assert.Equal(t, "https://www.edsm.net", cfg.Upstream.BaseURL)
	assert.Equal(t, 3, cfg.Upstream.MaxRetries)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 10*time.Minute, cfg.MemoryTTL())
	assert.Equal(t, 24*time.Hour, cfg.PersistentTTL())
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"EDJOURNAL_JOURNAL_DIR", "EDJOURNAL_LOG_LEVEL", "EDJOURNAL_DEBUG", "EDJOURNAL_EDSM_URL"} {
		t.Setenv(k, "")
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromFile_Valid(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
journal:
  dir: /games/journals
  poll_interval_ms: 250
upstream:
  max_retries: 5
log:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/games/journals", cfg.Journal.Dir)
	assert.Equal(t, 250, cfg.Journal.PollIntervalMs)
	assert.Equal(t, 5, cfg.Upstream.MaxRetries)
	assert.Equal(t, "warn", cfg.Log.Level)
	// untouched sections keep defaults
	assert.Equal(t, 10000, cfg.Backfill.MaxFiles)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad yaml", "journal: [", "failed to parse config file"},
		{"bad log level", "log:\n  level: chatty\n", "log.level"},
		{"negative retries", "upstream:\n  max_retries: -1\n", "upstream.max_retries"},
		{"zero poll", "journal:\n  poll_interval_ms: 0\n", "journal.poll_interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadFromFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("EDJOURNAL_JOURNAL_DIR", "/tmp/journals")
	t.Setenv("EDJOURNAL_EDSM_URL", "http://localhost:9999")
	t.Setenv("EDJOURNAL_DEBUG", "1")
	t.Setenv("EDJOURNAL_LOG_LEVEL", "")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/tmp/journals", cfg.Journal.Dir)
	assert.Equal(t, "http://localhost:9999", cfg.Upstream.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvOverrides_InvalidLevelIgnored(t *testing.T) {
	t.Setenv("EDJOURNAL_DEBUG", "")
	t.Setenv("EDJOURNAL_LOG_LEVEL", "loud")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Journal.Dir = "/saved"

	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/saved", loaded.Journal.Dir)
}

func TestJournalDirFallback(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultJournalDir(), cfg.JournalDir())

	cfg.Journal.Dir = "/explicit"
	assert.Equal(t, "/explicit", cfg.JournalDir())
}
