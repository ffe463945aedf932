package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests drive rootCmd and its package-level flag variables, so none
// of them run in parallel.

type cliEnv struct {
	journals string
	db       string
	config   string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()

	dir := t.TempDir()
	env := cliEnv{
		journals: filepath.Join(dir, "journals"),
		db:       filepath.Join(dir, "edjournal.db"),
		config:   filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(env.journals, 0o755))
	return env
}

func (e cliEnv) writeJournal(t *testing.T, day int, lines ...string) {
	t.Helper()

	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	name := fmt.Sprintf("Journal.2024-02-%02dT120000.01.log", day)
	require.NoError(t, os.WriteFile(filepath.Join(e.journals, name), buf.Bytes(), 0o600))
}

func resetFlags() {
	configPath, journalDir, dbPath, logLevel = "", "", "", ""
	backfillQuiet = false
	dbClearYes = false
	cacheClearKind = ""
	cacheLookupBodies = false
	watchMetricsAddr = ""
	routeLimit = 20
}

// run executes the CLI with the env's paths and returns stdout.
func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	full := append([]string{
		"--config", e.config,
		"--journal-dir", e.journals,
		"--db", e.db,
		"--log-level", "error",
	}, args...)
	rootCmd.SetArgs(full)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func jump(day, minute int, name string, address int64) string {
	return fmt.Sprintf(`{"timestamp":"2024-02-%02dT12:%02d:00Z","event":"FSDJump","StarSystem":"%s","SystemAddress":%d,"StarPos":[1,2,3],"JumpDist":12.5,"FuelUsed":2}`,
		day, minute, name, address)
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"watch"},
		{"backfill"},
		{"cache", "stats"},
		{"cache", "clear"},
		{"cache", "lookup"},
		{"db", "backup"},
		{"db", "validate"},
		{"db", "import"},
		{"db", "clear"},
		{"db", "check"},
		{"route"},
		{"version"},
	} {
		c, _, err := rootCmd.Find(path)
		require.NoError(t, err, "find %v", path)
		assert.Equal(t, path[len(path)-1], c.Name())
	}
}

func TestCommandArgs(t *testing.T) {
	assert.Error(t, cacheLookupCmd.Args(cacheLookupCmd, nil))
	assert.NoError(t, cacheLookupCmd.Args(cacheLookupCmd, []string{"Sol"}))
	assert.NoError(t, dbBackupCmd.Args(dbBackupCmd, nil))
	assert.Error(t, dbBackupCmd.Args(dbBackupCmd, []string{"a", "b"}))
	assert.Error(t, backfillCmd.Args(backfillCmd, []string{"extra"}))
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "edjournal "+Version)
	assert.Contains(t, out, "commit:")
}

func TestBackfill_PrintsProgressAndSummary(t *testing.T) {
	env := newCLIEnv(t)
	env.writeJournal(t, 1, jump(1, 1, "Sol", 10477373803))
	env.writeJournal(t, 2, jump(2, 1, "Alpha Centauri", 1458376315610), jump(2, 5, "Barnard's Star", 10477373804))

	out, err := env.run(t, "backfill")
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2] Journal.2024-02-01T120000.01.log")
	assert.Contains(t, out, "[2/2] Journal.2024-02-02T120000.01.log")
	assert.Contains(t, out, "backfill complete: 2/2 files, 3 lines applied, 0 parse errors, 0 store errors")

	// Running again changes nothing but succeeds.
	out, err = env.run(t, "backfill", "--quiet")
	require.NoError(t, err)
	assert.NotContains(t, out, "[1/2]")
	assert.Contains(t, out, "backfill complete: 2/2 files")
}

func TestBackfill_MissingJournalDirectory(t *testing.T) {
	env := newCLIEnv(t)
	env.journals = filepath.Join(t.TempDir(), "missing")

	_, err := env.run(t, "backfill")
	require.Error(t, err)
}

func TestDB_BackupValidateImport(t *testing.T) {
	env := newCLIEnv(t)
	env.writeJournal(t, 1, jump(1, 1, "Sol", 10477373803))

	_, err := env.run(t, "backfill", "--quiet")
	require.NoError(t, err)

	backup := filepath.Join(t.TempDir(), "backup.db")
	out, err := env.run(t, "db", "backup", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up to "+backup)

	out, err = env.run(t, "db", "validate", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "Valid")
	assert.Contains(t, out, "Systems:       1")

	out, err = env.run(t, "db", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Exploration data cleared")

	out, err = env.run(t, "db", "import", backup)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported")
	assert.Contains(t, out, "Systems:       1")
}

func TestRoute_ListsBackfilledJumps(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "route")
	require.NoError(t, err)
	assert.Contains(t, out, "No jumps recorded yet")

	env.writeJournal(t, 1, jump(1, 1, "Sol", 10477373803), jump(1, 9, "Alpha Centauri", 1458376315610))
	_, err = env.run(t, "backfill", "--quiet")
	require.NoError(t, err)

	out, err = env.run(t, "route", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha Centauri")
	assert.NotContains(t, out, "Sol ")
	assert.Contains(t, out, "12.50 ly")
}

func TestDBCheck(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "db", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, env.db)
}

func TestDBValidate_MissingFileHasPlayerMessage(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "db", "validate", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Contains(t, UserMessage(err), "could not be opened")
}

func TestDBClear_RequiresConfirmation(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "db", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}

func TestCacheClear_RejectsUnknownKind(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "cache", "clear", "--kind", "stations")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown cache kind")

	out, err := env.run(t, "cache", "clear", "--kind", "bodies")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 bodies entries")
}

func TestCacheStats_EmptyCache(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:  0 (0 expired)")
	assert.NotContains(t, out, "Last failure")
}

func TestDefaultBackupPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("LOCALAPPDATA", "/data")

	got := defaultBackupPath(time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC))
	assert.Equal(t, filepath.Join("/data", "edjournal", "backups", "exploration-20240203-040506.db"), got)
}

func TestUserMessage_PlainError(t *testing.T) {
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}

func TestCheckpointInterval(t *testing.T) {
	assert.Equal(t, time.Duration(-1), checkpointInterval(0))
	assert.Equal(t, time.Duration(-1), checkpointInterval(-5))
	assert.Equal(t, 2*time.Second, checkpointInterval(2000))
}
