package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEntry_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PutCacheEntry(ctx, CacheEntry{
		Key:     "system:Sol",
		Kind:    "system",
		Payload: []byte(`{"name":"Sol"}`),
	}, time.Hour))

	entry, err := s.GetCacheEntry(ctx, "system:Sol")
	require.NoError(t, err)
	assert.Equal(t, "system", entry.Kind)
	assert.JSONEq(t, `{"name":"Sol"}`, string(entry.Payload))
	assert.Equal(t, int64(1), entry.HitCount)

	_, err = s.GetCacheEntry(ctx, "system:Achenar")
	assert.ErrorIs(t, err, ErrCacheNotFound)
}

func TestCacheEntry_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	assert.Error(t, s.PutCacheEntry(ctx, CacheEntry{Kind: "system", Payload: []byte("{}")}, 0))
	assert.Error(t, s.PutCacheEntry(ctx, CacheEntry{Key: "k", Payload: []byte("{}")}, 0))
	assert.Error(t, s.PutCacheEntry(ctx, CacheEntry{Key: "k", Kind: "system"}, 0))
	_, err := s.GetCacheEntry(ctx, "")
	assert.Error(t, err)
}

func TestCacheEntry_ExpiryAndPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.PutCacheEntry(ctx, CacheEntry{Key: "system:A", Kind: "system", Payload: []byte(`{}`)}, time.Hour))
	require.NoError(t, s.PutCacheEntry(ctx, CacheEntry{Key: "bodies:A", Kind: "bodies", Payload: []byte(`{}`)}, 48*time.Hour))

	now = now.Add(2 * time.Hour)

	_, err := s.GetCacheEntry(ctx, "system:A")
	assert.ErrorIs(t, err, ErrCacheNotFound, "expired entries are misses")

	stats, err := s.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.ExpiredEntries)

	pruned, err := s.PruneExpiredCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = s.GetCacheEntry(ctx, "bodies:A")
	require.NoError(t, err)

	stats, err = s.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, map[string]int64{"bodies": 1}, stats.ByKind)
}

func TestDeleteCacheEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	for _, key := range []string{"system:A", "system:B", "bodies:A"} {
		kind := key[:len(key)-2]
		require.NoError(t, s.PutCacheEntry(ctx, CacheEntry{Key: key, Kind: kind, Payload: []byte(`{}`)}, time.Hour))
	}

	n, err := s.DeleteCacheEntries(ctx, "system")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.DeleteCacheEntries(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
