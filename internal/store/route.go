package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/runger/edjournal/internal/journal"
)

// AppendRoute records an arrival in route history. An entry for the same
// system at the same instant is ignored.
func (s *Store) AppendRoute(ctx context.Context, e RouteEntry) error {
	return s.withTx(ctx, "append_route", func(tx *sql.Tx) error {
		if err := ensureSystem(ctx, tx, e.SystemAddress, e.SystemName); err != nil {
			return err
		}
		if err := appendRoute(ctx, tx, e); err != nil {
			return err
		}
		return recomputeVisitCount(ctx, tx, e.SystemAddress)
	})
}

// ListRoute returns the most recent route entries, newest first. A limit of
// zero or less returns everything.
func (s *Store) ListRoute(ctx context.Context, limit int) ([]RouteEntry, error) {
	query := `
		SELECT id, session_id, system_address, system_name, timestamp_ms, jump_dist, fuel_used, kind
		FROM route_history ORDER BY timestamp_ms DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list_route", err)
	}
	defer rows.Close()

	var out []RouteEntry
	for rows.Next() {
		var (
			e    RouteEntry
			ts   int64
			kind string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.SystemAddress, &e.SystemName, &ts,
			&e.JumpDist, &e.FuelUsed, &kind); err != nil {
			return nil, wrap("list_route", err)
		}
		e.Timestamp = msToTime(ts)
		e.Kind = journal.Kind(kind)
		out = append(out, e)
	}
	return out, wrap("list_route", rows.Err())
}

// CountRoute returns the number of route history entries.
func (s *Store) CountRoute(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM route_history`).Scan(&n)
	return n, wrap("count_route", err)
}

func appendRoute(ctx context.Context, tx *sql.Tx, e RouteEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO route_history
			(session_id, system_address, system_name, timestamp_ms, jump_dist, fuel_used, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.SessionID, e.SystemAddress, e.SystemName, timeToMs(e.Timestamp), e.JumpDist, e.FuelUsed, string(e.Kind))
	if err != nil {
		return fmt.Errorf("append route %d: %w", e.SystemAddress, err)
	}
	return nil
}
