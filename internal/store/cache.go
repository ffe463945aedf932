package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetCacheEntry returns a persistent cache entry. Missing and expired
// entries both yield ErrCacheNotFound. A hit bumps the hit count.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT cache_key, kind, payload_json, created_at_ms, expires_at_ms, hit_count
		FROM upstream_cache
		WHERE cache_key = ? AND expires_at_ms > ?
	`, key, s.nowMs())

	var (
		entry            CacheEntry
		payload          string
		created, expires int64
	)
	if err := row.Scan(&entry.Key, &entry.Kind, &payload, &created, &expires, &entry.HitCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCacheNotFound
		}
		return nil, wrap("get_cache_entry", err)
	}
	entry.Payload = []byte(payload)
	entry.CreatedAt = msToTime(created)
	entry.ExpiresAt = msToTime(expires)

	// Best effort; a lost hit count is harmless.
	_, _ = s.db.ExecContext(ctx, `
		UPDATE upstream_cache SET hit_count = hit_count + 1 WHERE cache_key = ?
	`, key)
	entry.HitCount++

	return &entry, nil
}

// PutCacheEntry stores or replaces a cache entry. A zero CreatedAt defaults
// to now, a zero ExpiresAt to ttl after it.
func (s *Store) PutCacheEntry(ctx context.Context, entry CacheEntry, ttl time.Duration) error {
	if entry.Key == "" {
		return errors.New("cache key is required")
	}
	if entry.Kind == "" {
		return errors.New("cache kind is required")
	}
	if len(entry.Payload) == 0 {
		return errors.New("cache payload is required")
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.ExpiresAt.IsZero() {
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		entry.ExpiresAt = entry.CreatedAt.Add(ttl)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upstream_cache (cache_key, kind, payload_json, created_at_ms, expires_at_ms, hit_count)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(cache_key) DO UPDATE SET
			kind = excluded.kind,
			payload_json = excluded.payload_json,
			created_at_ms = excluded.created_at_ms,
			expires_at_ms = excluded.expires_at_ms
	`, entry.Key, entry.Kind, string(entry.Payload), entry.CreatedAt.UnixMilli(), entry.ExpiresAt.UnixMilli())
	return wrap("put_cache_entry", err)
}

// DeleteCacheEntries removes entries of one kind, or all entries when kind
// is empty. It returns the number of rows removed.
func (s *Store) DeleteCacheEntries(ctx context.Context, kind string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if kind == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM upstream_cache`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM upstream_cache WHERE kind = ?`, kind)
	}
	if err != nil {
		return 0, wrap("delete_cache_entries", err)
	}
	return res.RowsAffected()
}

// PruneExpiredCache removes expired entries and returns how many were removed.
func (s *Store) PruneExpiredCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upstream_cache WHERE expires_at_ms <= ?`, s.nowMs())
	if err != nil {
		return 0, wrap("prune_cache", fmt.Errorf("failed to prune expired cache: %w", err))
	}
	return res.RowsAffected()
}

// CacheStats summarizes the persistent cache tier.
func (s *Store) CacheStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{ByKind: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN expires_at_ms <= ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(hit_count), 0)
		FROM upstream_cache
	`, s.nowMs()).Scan(&stats.TotalEntries, &stats.ExpiredEntries, &stats.TotalHits)
	if err != nil {
		return nil, wrap("cache_stats", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM upstream_cache GROUP BY kind`)
	if err != nil {
		return nil, wrap("cache_stats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind string
			n    int64
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, wrap("cache_stats", err)
		}
		stats.ByKind[kind] = n
	}
	return stats, wrap("cache_stats", rows.Err())
}
