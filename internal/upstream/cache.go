package upstream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/runger/edjournal/internal/logging"
	"github.com/runger/edjournal/internal/metrics"
	"github.com/runger/edjournal/internal/store"
)

// Fetcher retrieves payloads from the network.
type Fetcher interface {
	Fetch(ctx context.Context, kind, name string) ([]byte, error)
}

// Persistent is the durable cache tier.
type Persistent interface {
	GetCacheEntry(ctx context.Context, key string) (*store.CacheEntry, error)
	PutCacheEntry(ctx context.Context, entry store.CacheEntry, ttl time.Duration) error
	DeleteCacheEntries(ctx context.Context, kind string) (int64, error)
	PruneExpiredCache(ctx context.Context) (int64, error)
	CacheStats(ctx context.Context) (*store.CacheStats, error)
}

// CacheOptions configures a Cache.
type CacheOptions struct {
	Fetcher    Fetcher
	Persistent Persistent
	MemoryTTL  time.Duration
	// PersistentTTL bounds entries written to the durable tier.
	PersistentTTL    time.Duration
	MaxMemoryEntries int
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
}

// Failure records the most recent upstream failure.
type Failure struct {
	Kind string
	Name string
	Err  error
	At   time.Time
}

// CacheStats reports both tiers and the lookup counters since start.
type CacheStats struct {
	MemoryEntries   int
	MemoryHits      int64
	PersistentHits  int64
	NetworkFetches  int64
	NotFound        int64
	Failures        int64
	Promotions      int64
	MemoryEvictions int64
	Persistent      *store.CacheStats
}

// sharedFetchTimeout bounds one network lookup, retries included.
const sharedFetchTimeout = 2 * time.Minute

// memoryEntry is what the memory tier holds. seq orders entries by write.
type memoryEntry struct {
	payload []byte
	seq     uint64
}

// Cache is a read-through cache over EDSM. A lookup tries memory, then
// the persistent tier (promoting hits into memory), then the network,
// writing successful fetches through to both tiers. Concurrent lookups of
// the same key share one request. A failed fetch yields no payload and no
// error; the failure is kept for LastError.
type Cache struct {
	fetcher       Fetcher
	persistent    Persistent
	memory        *gocache.Cache
	memoryTTL     time.Duration
	persistentTTL time.Duration
	maxMemory     int
	logger        *slog.Logger
	metrics       *metrics.Metrics

	group singleflight.Group
	seq   atomic.Uint64

	// evictMu serializes capacity checks so two writers cannot both evict.
	evictMu sync.Mutex

	memoryHits     atomic.Int64
	persistentHits atomic.Int64
	networkFetches atomic.Int64
	notFound       atomic.Int64
	failures       atomic.Int64
	promotions     atomic.Int64
	evictions      atomic.Int64

	failMu   sync.Mutex
	lastFail *Failure
}

// NewCache returns a cache. Fetcher is required; Persistent may be nil,
// in which case only the memory tier is used.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("upstream fetcher is required")
	}
	memoryTTL := opts.MemoryTTL
	if memoryTTL <= 0 {
		memoryTTL = 10 * time.Minute
	}
	persistentTTL := opts.PersistentTTL
	if persistentTTL <= 0 {
		persistentTTL = 24 * time.Hour
	}
	maxMemory := opts.MaxMemoryEntries
	if maxMemory <= 0 {
		maxMemory = 500
	}

	return &Cache{
		fetcher:    opts.Fetcher,
		persistent: opts.Persistent,
		// No janitor goroutine; Sweep drops expired entries.
		memory:        gocache.New(memoryTTL, 0),
		memoryTTL:     memoryTTL,
		persistentTTL: persistentTTL,
		maxMemory:     maxMemory,
		logger:        logging.OrDefault(opts.Logger).With("component", "upstream_cache"),
		metrics:       opts.Metrics,
	}, nil
}

// Key returns the cache key for a lookup. System names compare
// case-insensitively.
func Key(kind, name string) string {
	return kind + ":" + strings.ToLower(strings.TrimSpace(name))
}

// Lookup returns the payload for name, or nil when EDSM does not know the
// system or could not be reached.
func (c *Cache) Lookup(ctx context.Context, kind, name string) ([]byte, error) {
	if kind != KindSystem && kind != KindBodies {
		return nil, errors.New("unknown lookup kind " + kind)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("system name is required")
	}
	key := Key(kind, name)

	if v, ok := c.memory.Get(key); ok {
		c.memoryHits.Add(1)
		c.metrics.CacheLookup(kind, metrics.TierMemory)
		return v.(memoryEntry).payload, nil
	}

	if payload := c.fromPersistent(ctx, key); payload != nil {
		c.persistentHits.Add(1)
		c.promotions.Add(1)
		c.metrics.CacheLookup(kind, metrics.TierPersistent)
		c.metrics.CachePromotion()
		c.remember(key, payload)
		return payload, nil
	}

	// The request is shared, so it runs detached from whichever caller
	// started it. Each caller still stops waiting when its own ctx ends.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, kind, name, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		payload, _ := res.Val.([]byte)
		return payload, nil
	}
}

func (c *Cache) fromPersistent(ctx context.Context, key string) []byte {
	if c.persistent == nil {
		return nil
	}
	entry, err := c.persistent.GetCacheEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrCacheNotFound) {
			c.logger.Warn("persistent cache read failed", "key", key, "error", err)
		}
		return nil
	}
	return entry.Payload
}

func (c *Cache) fetch(ctx context.Context, kind, name, key string) (any, error) {
	payload, err := c.fetcher.Fetch(ctx, kind, name)
	switch {
	case errors.Is(err, ErrNotFound):
		c.notFound.Add(1)
		c.metrics.CacheLookup(kind, metrics.TierNetwork)
		return nil, nil
	case err != nil:
		c.failures.Add(1)
		c.metrics.CacheLookup(kind, metrics.TierFailed)
		c.setFailure(&Failure{Kind: kind, Name: name, Err: err, At: time.Now()})
		c.logger.Warn("upstream lookup failed", "kind", kind, "system", name, "error", err)
		return nil, nil
	}

	c.networkFetches.Add(1)
	c.metrics.CacheLookup(kind, metrics.TierNetwork)
	c.remember(key, payload)
	if c.persistent != nil {
		entry := store.CacheEntry{Key: key, Kind: kind, Payload: payload}
		if err := c.persistent.PutCacheEntry(ctx, entry, c.persistentTTL); err != nil {
			c.logger.Warn("persistent cache write failed", "key", key, "error", err)
		}
	}
	return payload, nil
}

// remember writes into the memory tier, first evicting the oldest half of
// the entries when the tier is full.
func (c *Cache) remember(key string, payload []byte) {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	if _, ok := c.memory.Get(key); !ok && c.memory.ItemCount() >= c.maxMemory {
		c.memory.DeleteExpired()
		if items := c.memory.Items(); len(items) >= c.maxMemory {
			type aged struct {
				key string
				seq uint64
			}
			order := make([]aged, 0, len(items))
			for k, it := range items {
				order = append(order, aged{k, it.Object.(memoryEntry).seq})
			}
			sort.Slice(order, func(i, j int) bool { return order[i].seq < order[j].seq })
			n := max(len(order)/2, 1)
			for _, a := range order[:n] {
				c.memory.Delete(a.key)
			}
			c.evictions.Add(int64(n))
			c.logger.Debug("memory cache full, evicted oldest entries", "evicted", n)
		}
	}
	c.memory.Set(key, memoryEntry{payload: payload, seq: c.seq.Add(1)}, c.memoryTTL)
}

// LookupSystem returns decoded system data, or nil when unavailable.
func (c *Cache) LookupSystem(ctx context.Context, name string) (*SystemInfo, error) {
	payload, err := c.Lookup(ctx, KindSystem, name)
	if err != nil || payload == nil {
		return nil, err
	}
	return DecodeSystem(payload)
}

// LookupBodies returns decoded body data, or nil when unavailable.
func (c *Cache) LookupBodies(ctx context.Context, name string) (*BodiesInfo, error) {
	payload, err := c.Lookup(ctx, KindBodies, name)
	if err != nil || payload == nil {
		return nil, err
	}
	return DecodeBodies(payload)
}

// Clear drops entries of one kind from both tiers, or everything when kind
// is empty. It returns the number of persistent entries removed.
func (c *Cache) Clear(ctx context.Context, kind string) (int64, error) {
	if kind == "" {
		c.memory.Flush()
	} else {
		prefix := kind + ":"
		for k := range c.memory.Items() {
			if strings.HasPrefix(k, prefix) {
				c.memory.Delete(k)
			}
		}
	}
	if c.persistent == nil {
		return 0, nil
	}
	return c.persistent.DeleteCacheEntries(ctx, kind)
}

// Sweep removes expired entries from both tiers.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	c.memory.DeleteExpired()
	if c.persistent == nil {
		return 0, nil
	}
	return c.persistent.PruneExpiredCache(ctx)
}

// Stats reports tier sizes and counters.
func (c *Cache) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		MemoryEntries:   c.memory.ItemCount(),
		MemoryHits:      c.memoryHits.Load(),
		PersistentHits:  c.persistentHits.Load(),
		NetworkFetches:  c.networkFetches.Load(),
		NotFound:        c.notFound.Load(),
		Failures:        c.failures.Load(),
		Promotions:      c.promotions.Load(),
		MemoryEvictions: c.evictions.Load(),
	}
	if c.persistent != nil {
		p, err := c.persistent.CacheStats(ctx)
		if err != nil {
			return stats, err
		}
		stats.Persistent = p
	}
	return stats, nil
}

// LastError returns the most recent upstream failure, or nil.
func (c *Cache) LastError() *Failure {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	if c.lastFail == nil {
		return nil
	}
	f := *c.lastFail
	return &f
}

func (c *Cache) setFailure(f *Failure) {
	c.failMu.Lock()
	c.lastFail = f
	c.failMu.Unlock()
}
