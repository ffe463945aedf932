package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), store.Options{
		Path:               filepath.Join(t.TempDir(), "exploration.db"),
		Logger:             logging.Discard(),
		SkipLock:           true,
		CheckpointInterval: -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countingFetcher answers every name with a payload naming it.
type countingFetcher struct {
	calls atomic.Int32
	err   error
	gate  chan struct{}
}

func (f *countingFetcher) Fetch(ctx context.Context, kind, name string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []byte(fmt.Sprintf(`{"name":%q}`, name)), nil
}

func newTestCache(t *testing.T, f Fetcher, p Persistent, maxMemory int) *Cache {
	t.Helper()

	c, err := NewCache(CacheOptions{
		Fetcher:          f,
		Persistent:       p,
		MemoryTTL:        time.Minute,
		PersistentTTL:    time.Hour,
		MaxMemoryEntries: maxMemory,
		Logger:           logging.Discard(),
	})
	require.NoError(t, err)
	return c
}

func TestLookup_TierOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	f := &countingFetcher{}
	c := newTestCache(t, f, s, 10)

	// Network on first sight, written through to both tiers.
	payload, err := c.Lookup(ctx, KindSystem, "Sol")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Sol"}`, string(payload))
	entry, err := s.GetCacheEntry(ctx, Key(KindSystem, "Sol"))
	require.NoError(t, err)
	assert.Equal(t, KindSystem, entry.Kind)

	// Memory answers the repeat, ignoring case and padding.
	_, err = c.Lookup(ctx, KindSystem, "  SOL")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.NetworkFetches)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Zero(t, stats.PersistentHits)
}

func TestLookup_PromotesPersistentHits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.PutCacheEntry(ctx, store.CacheEntry{
		Key:     Key(KindBodies, "Sol"),
		Kind:    KindBodies,
		Payload: []byte(bodiesJSON),
	}, time.Hour))

	f := &countingFetcher{}
	c := newTestCache(t, f, s, 10)

	info, err := c.LookupBodies(ctx, "Sol")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 2, info.BodyCount)

	_, err = c.LookupBodies(ctx, "sol")
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PersistentHits)
	assert.Equal(t, int64(1), stats.Promotions)
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Zero(t, f.calls.Load())
	assert.Equal(t, 1, stats.MemoryEntries)
	require.NotNil(t, stats.Persistent)
	assert.Equal(t, int64(1), stats.Persistent.TotalHits)
}

func TestLookup_FailureReturnsNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := &countingFetcher{err: errors.New("upstream: status 503")}
	c := newTestCache(t, f, newTestStore(t), 10)

	assert.Nil(t, c.LastError())
	payload, err := c.Lookup(ctx, KindSystem, "Sol")
	require.NoError(t, err)
	assert.Nil(t, payload)

	last := c.LastError()
	require.NotNil(t, last)
	assert.Equal(t, "Sol", last.Name)
	assert.EqualError(t, last.Err, "upstream: status 503")

	// Failures are not cached.
	_, _ = c.Lookup(ctx, KindSystem, "Sol")
	assert.Equal(t, int32(2), f.calls.Load())
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Failures)
}

func TestLookup_NotFoundIsNotAFailure(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{err: ErrNotFound}
	c := newTestCache(t, f, nil, 10)

	info, err := c.LookupSystem(context.Background(), "Nowhere")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Nil(t, c.LastError())
}

func TestLookup_ConcurrentCallsShareOneRequest(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{gate: make(chan struct{})}
	c := newTestCache(t, f, nil, 10)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Lookup(context.Background(), KindSystem, "Sol")
		}()
	}
	// Let every caller queue behind the first before it completes.
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, r := range results {
		assert.JSONEq(t, `{"name":"Sol"}`, string(r))
	}
}

func TestLookup_CancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{gate: make(chan struct{})}
	c := newTestCache(t, f, nil, 10)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Lookup(firstCtx, KindSystem, "Sol")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		payload []byte
		err     error
	}
	second := make(chan result, 1)
	go func() {
		p, err := c.Lookup(context.Background(), KindSystem, "Sol")
		second <- result{p, err}
	}()

	// The caller that started the request gives up; the request goes on.
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(f.gate)
	got := <-second
	require.NoError(t, got.err)
	assert.JSONEq(t, `{"name":"Sol"}`, string(got.payload))
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Nil(t, c.LastError())

	// The answer was cached for everyone.
	p, err := c.Lookup(context.Background(), KindSystem, "Sol")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Sol"}`, string(p))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLookup_EvictsOldestHalfWhenFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := &countingFetcher{}
	c := newTestCache(t, f, nil, 4)

	for _, name := range []string{"A", "B", "C", "D"} {
		_, err := c.Lookup(ctx, KindSystem, name)
		require.NoError(t, err)
	}
	_, err := c.Lookup(ctx, KindSystem, "E")
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MemoryEntries)
	assert.Equal(t, int64(2), stats.MemoryEvictions)

	// C, D and E survive; A was evicted and costs another fetch.
	for _, name := range []string{"C", "D", "E"} {
		_, err := c.Lookup(ctx, KindSystem, name)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), f.calls.Load())
	_, err = c.Lookup(ctx, KindSystem, "A")
	require.NoError(t, err)
	assert.Equal(t, int32(6), f.calls.Load())
}

func TestClear_ByKind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	f := &countingFetcher{}
	c := newTestCache(t, f, s, 10)

	_, _ = c.Lookup(ctx, KindSystem, "Sol")
	_, _ = c.Lookup(ctx, KindBodies, "Sol")

	n, err := c.Clear(ctx, KindBodies)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _ = c.Lookup(ctx, KindSystem, "Sol")
	assert.Equal(t, int32(2), f.calls.Load())
	_, _ = c.Lookup(ctx, KindBodies, "Sol")
	assert.Equal(t, int32(3), f.calls.Load())

	n, err = c.Clear(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.MemoryEntries)
	assert.Zero(t, stats.Persistent.TotalEntries)
}

func TestLookup_RejectsBadInput(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, &countingFetcher{}, nil, 10)
	_, err := c.Lookup(context.Background(), "stations", "Sol")
	assert.Error(t, err)
	_, err = c.Lookup(context.Background(), KindSystem, " ")
	assert.Error(t, err)

	_, err = NewCache(CacheOptions{})
	assert.Error(t, err)
}

// TestCache_WithHTTPClient runs the whole path against a mocked EDSM.
func TestCache_WithHTTPClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, mock := newMockClient(t, 1)
	mock.RegisterResponder(http.MethodGet, testBaseURL+"/api-v1/system",
		httpmock.NewStringResponder(http.StatusOK, systemJSON))

	s := newTestStore(t)
	c := newTestCache(t, client, s, 10)

	info, err := c.LookupSystem(ctx, "Sol")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Sol", info.Name)

	// A second cache over the same store never reaches the network.
	cold := newTestCache(t, client, s, 10)
	info, err = cold.LookupSystem(ctx, "sol")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 1, mock.GetTotalCallCount())
}
