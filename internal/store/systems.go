package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runger/edjournal/internal/journal"
)

// UpsertSystem records a system. Coordinates are never overwritten once
// set; first and last visit times widen monotonically.
func (s *Store) UpsertSystem(ctx context.Context, obs SystemObservation) error {
	return s.withTx(ctx, "upsert_system", func(tx *sql.Tx) error {
		return upsertSystem(ctx, tx, obs)
	})
}

// RecordVisit upserts the system and appends the arrival to route history
// in one transaction. Re-recording the same arrival is a no-op.
func (s *Store) RecordVisit(ctx context.Context, v Visit) error {
	return s.withTx(ctx, "record_visit", func(tx *sql.Tx) error {
		if err := upsertSystem(ctx, tx, v.System); err != nil {
			return err
		}
		if err := appendRoute(ctx, tx, RouteEntry{
			SessionID:     v.SessionID,
			SystemAddress: v.System.Address,
			SystemName:    v.System.Name,
			Timestamp:     v.System.VisitedAt,
			JumpDist:      v.JumpDist,
			FuelUsed:      v.FuelUsed,
			Kind:          v.Kind,
		}); err != nil {
			return err
		}
		return recomputeVisitCount(ctx, tx, v.System.Address)
	})
}

// SetDeclaredBodyCount records the body count announced by a discovery scan.
func (s *Store) SetDeclaredBodyCount(ctx context.Context, address int64, name string, count int) error {
	return s.withTx(ctx, "set_declared_body_count", func(tx *sql.Tx) error {
		if err := ensureSystem(ctx, tx, address, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE systems SET declared_body_count = MAX(declared_body_count, ?)
			WHERE address = ?
		`, count, address)
		return err
	})
}

// MarkAllBodiesFound flags a system as fully discovered. The flag is sticky.
func (s *Store) MarkAllBodiesFound(ctx context.Context, address int64, name string, count int) error {
	return s.withTx(ctx, "mark_all_bodies_found", func(tx *sql.Tx) error {
		if err := ensureSystem(ctx, tx, address, name); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE systems SET
				all_bodies_found = 1,
				declared_body_count = MAX(declared_body_count, ?)
			WHERE address = ?
		`, count, address)
		return err
	})
}

// GetSystem returns a system by address, ErrNotFound if unknown.
func (s *Store) GetSystem(ctx context.Context, address int64) (*System, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, name, x, y, z, star_class, first_visited_ms, last_visited_ms,
		       visit_count, declared_body_count, all_bodies_found, known_bodies,
		       discovered_count, mapped_count, estimated_value, mapped_value, updated_at_ms
		FROM systems WHERE address = ?
	`, address)

	var (
		sys                   System
		x, y, z               sql.NullFloat64
		starClass             sql.NullString
		firstVisit, lastVisit sql.NullInt64
		allFound              int
		updated               int64
	)
	err := row.Scan(&sys.Address, &sys.Name, &x, &y, &z, &starClass, &firstVisit, &lastVisit,
		&sys.VisitCount, &sys.DeclaredBodyCount, &allFound, &sys.KnownBodies,
		&sys.DiscoveredCount, &sys.MappedCount, &sys.EstimatedValue, &sys.MappedValue, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap("get_system", err)
	}

	if x.Valid && y.Valid && z.Valid {
		sys.Pos = &journal.Position{x.Float64, y.Float64, z.Float64}
	}
	sys.StarClass = starClass.String
	sys.FirstVisited = msToTime(firstVisit.Int64)
	sys.LastVisited = msToTime(lastVisit.Int64)
	sys.AllBodiesFound = allFound != 0
	sys.UpdatedAt = msToTime(updated)
	return &sys, nil
}

// RecomputeSystemAggregates recalculates the derived counters of a system
// from its bodies.
func (s *Store) RecomputeSystemAggregates(ctx context.Context, address int64) error {
	return s.withTx(ctx, "recompute_aggregates", func(tx *sql.Tx) error {
		return recomputeAggregates(ctx, tx, address)
	})
}

func upsertSystem(ctx context.Context, tx *sql.Tx, obs SystemObservation) error {
	var x, y, z sql.NullFloat64
	if obs.Pos != nil {
		x = sql.NullFloat64{Float64: obs.Pos[0], Valid: true}
		y = sql.NullFloat64{Float64: obs.Pos[1], Valid: true}
		z = sql.NullFloat64{Float64: obs.Pos[2], Valid: true}
	}
	var visited sql.NullInt64
	if !obs.VisitedAt.IsZero() {
		visited = sql.NullInt64{Int64: obs.VisitedAt.UnixMilli(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO systems (address, name, x, y, z, star_class, first_visited_ms, last_visited_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE systems.name END,
			x = COALESCE(systems.x, excluded.x),
			y = COALESCE(systems.y, excluded.y),
			z = COALESCE(systems.z, excluded.z),
			star_class = COALESCE(excluded.star_class, systems.star_class),
			first_visited_ms = CASE
				WHEN systems.first_visited_ms IS NULL THEN excluded.first_visited_ms
				WHEN excluded.first_visited_ms IS NULL THEN systems.first_visited_ms
				ELSE MIN(systems.first_visited_ms, excluded.first_visited_ms) END,
			last_visited_ms = CASE
				WHEN systems.last_visited_ms IS NULL THEN excluded.last_visited_ms
				WHEN excluded.last_visited_ms IS NULL THEN systems.last_visited_ms
				ELSE MAX(systems.last_visited_ms, excluded.last_visited_ms) END,
			updated_at_ms = MAX(systems.updated_at_ms, excluded.updated_at_ms)
	`, obs.Address, obs.Name, x, y, z, nullString(obs.StarClass), visited, visited, visited.Int64)
	if err != nil {
		return fmt.Errorf("upsert system %d: %w", obs.Address, err)
	}
	return nil
}

// ensureSystem creates a placeholder row so bodies can reference it.
func ensureSystem(ctx context.Context, tx *sql.Tx, address int64, name string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO systems (address, name) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = CASE WHEN systems.name = '' THEN excluded.name ELSE systems.name END
	`, address, name)
	if err != nil {
		return fmt.Errorf("ensure system %d: %w", address, err)
	}
	return nil
}

func recomputeVisitCount(ctx context.Context, tx *sql.Tx, address int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE systems SET visit_count = (
			SELECT COUNT(*) FROM route_history WHERE system_address = ?
		) WHERE address = ?
	`, address, address)
	if err != nil {
		return fmt.Errorf("recompute visit count %d: %w", address, err)
	}
	return nil
}

// recomputeAggregates derives the system counters from its bodies. Belts
// and rings are excluded from body counts to match the discovery scan.
func recomputeAggregates(ctx context.Context, tx *sql.Tx, address int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE systems SET
			known_bodies = (SELECT COUNT(*) FROM bodies
				WHERE system_address = ? AND fidelity >= 1 AND body_type IN ('Star', 'Planet', 'Moon')),
			discovered_count = (SELECT COUNT(*) FROM bodies
				WHERE system_address = ? AND discovered_by_me = 1),
			mapped_count = (SELECT COUNT(*) FROM bodies
				WHERE system_address = ? AND mapped_by_me = 1),
			estimated_value = (SELECT COALESCE(SUM(value), 0) FROM bodies
				WHERE system_address = ?),
			mapped_value = (SELECT COALESCE(SUM(value), 0) FROM bodies
				WHERE system_address = ? AND fidelity = 3)
		WHERE address = ?
	`, address, address, address, address, address, address)
	if err != nil {
		return fmt.Errorf("recompute aggregates %d: %w", address, err)
	}
	return nil
}
