//go:build !windows

package store

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLock_Exclusive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := acquireDirLock(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lockHolder(dir))
	assert.True(t, DirLocked(dir))

	start := time.Now()
	_, err = acquireDirLock(dir, 250*time.Millisecond)
	require.ErrorIs(t, err, ErrLocked)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	require.NoError(t, first.release())
	assert.False(t, DirLocked(dir))
	assert.Zero(t, lockHolder(dir))

	again, err := acquireDirLock(dir, 0)
	require.NoError(t, err)
	require.NoError(t, again.release())
	require.NoError(t, again.release())
}

func TestDirLock_ReleaseNilSafe(t *testing.T) {
	t.Parallel()

	var l *dirLock
	assert.NoError(t, l.release())
}
