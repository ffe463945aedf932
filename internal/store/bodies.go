package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/runger/edjournal/internal/journal"
)

// upsertBodySQL merges an observation into the stored body.
//
//   - descriptive fields keep the stored value when the observation is NULL
//   - fidelity, signal counts and the by-me flags only increase
//   - value is taken only from an observation at least as detailed as the row
//   - the game's was_* flags keep the first observation, which is what
//     decides first-discovery payouts
//   - the raw snapshot is merged with json_patch; the higher tier wins on
//     overlapping keys and the stored key order is kept
const upsertBodySQL = `
INSERT INTO bodies (
	system_address, body_id, name, body_type, sub_type,
	distance_ls, radius, mass_em, stellar_mass, gravity, surface_temp, surface_pressure,
	atmosphere, volcanism, terraform_state, landable, tidal_lock,
	fidelity, value,
	bio_signals, geo_signals, human_signals, thargoid_signals, guardian_signals, other_signals,
	was_discovered, was_mapped, was_footfalled,
	discovered_by_me, mapped_by_me, footfalled_by_me, mapped_efficient,
	parent_body_id, raw_json, raw_tier, updated_at_ms
) VALUES (
	?, ?, ?, ?, ?,
	?, ?, ?, ?, ?, ?, ?,
	?, ?, ?, ?, ?,
	?, ?,
	?, ?, ?, ?, ?, ?,
	?, ?, ?,
	?, ?, ?, ?,
	?, json(?), ?, ?
)
ON CONFLICT(system_address, body_id) DO UPDATE SET
	name = COALESCE(excluded.name, bodies.name),
	body_type = COALESCE(excluded.body_type, bodies.body_type),
	sub_type = COALESCE(excluded.sub_type, bodies.sub_type),
	distance_ls = COALESCE(excluded.distance_ls, bodies.distance_ls),
	radius = COALESCE(excluded.radius, bodies.radius),
	mass_em = COALESCE(excluded.mass_em, bodies.mass_em),
	stellar_mass = COALESCE(excluded.stellar_mass, bodies.stellar_mass),
	gravity = COALESCE(excluded.gravity, bodies.gravity),
	surface_temp = COALESCE(excluded.surface_temp, bodies.surface_temp),
	surface_pressure = COALESCE(excluded.surface_pressure, bodies.surface_pressure),
	atmosphere = COALESCE(excluded.atmosphere, bodies.atmosphere),
	volcanism = COALESCE(excluded.volcanism, bodies.volcanism),
	terraform_state = COALESCE(excluded.terraform_state, bodies.terraform_state),
	landable = COALESCE(excluded.landable, bodies.landable),
	tidal_lock = COALESCE(excluded.tidal_lock, bodies.tidal_lock),
	fidelity = MAX(bodies.fidelity, excluded.fidelity),
	value = CASE
		WHEN excluded.value IS NOT NULL AND (bodies.value IS NULL OR excluded.fidelity >= bodies.fidelity)
		THEN excluded.value ELSE bodies.value END,
	bio_signals = MAX(bodies.bio_signals, excluded.bio_signals),
	geo_signals = MAX(bodies.geo_signals, excluded.geo_signals),
	human_signals = MAX(bodies.human_signals, excluded.human_signals),
	thargoid_signals = MAX(bodies.thargoid_signals, excluded.thargoid_signals),
	guardian_signals = MAX(bodies.guardian_signals, excluded.guardian_signals),
	other_signals = MAX(bodies.other_signals, excluded.other_signals),
	was_discovered = COALESCE(bodies.was_discovered, excluded.was_discovered),
	was_mapped = COALESCE(bodies.was_mapped, excluded.was_mapped),
	was_footfalled = COALESCE(bodies.was_footfalled, excluded.was_footfalled),
	discovered_by_me = MAX(bodies.discovered_by_me, excluded.discovered_by_me),
	mapped_by_me = MAX(bodies.mapped_by_me, excluded.mapped_by_me),
	footfalled_by_me = MAX(bodies.footfalled_by_me, excluded.footfalled_by_me),
	mapped_efficient = MAX(bodies.mapped_efficient, excluded.mapped_efficient),
	parent_body_id = COALESCE(excluded.parent_body_id, bodies.parent_body_id),
	raw_json = CASE
		WHEN excluded.raw_json IS NULL THEN bodies.raw_json
		WHEN bodies.raw_json IS NULL THEN excluded.raw_json
		WHEN excluded.raw_tier >= bodies.raw_tier THEN json_patch(bodies.raw_json, excluded.raw_json)
		ELSE json_patch(bodies.raw_json, json_patch(excluded.raw_json, bodies.raw_json)) END,
	raw_tier = CASE
		WHEN excluded.raw_json IS NULL THEN bodies.raw_tier
		ELSE MAX(bodies.raw_tier, excluded.raw_tier) END,
	updated_at_ms = MAX(bodies.updated_at_ms, excluded.updated_at_ms)
`

const bodyColumns = `
	id, system_address, body_id, name, body_type, sub_type,
	distance_ls, radius, mass_em, stellar_mass, gravity, surface_temp, surface_pressure,
	atmosphere, volcanism, terraform_state, landable, tidal_lock,
	fidelity, value,
	bio_signals, geo_signals, human_signals, thargoid_signals, guardian_signals, other_signals,
	was_discovered, was_mapped, was_footfalled,
	discovered_by_me, mapped_by_me, footfalled_by_me, mapped_efficient,
	parent_body_id, raw_json, raw_tier, updated_at_ms`

// UpsertBody merges an observation into the stored body, creating the body
// and its system as needed, then recomputes the system aggregates.
func (s *Store) UpsertBody(ctx context.Context, obs BodyObservation) error {
	return s.withTx(ctx, "upsert_body", func(tx *sql.Tx) error {
		if err := upsertBody(ctx, tx, obs); err != nil {
			return err
		}
		return recomputeAggregates(ctx, tx, obs.SystemAddress)
	})
}

// ApplySignals merges signal counts into an existing body. It reports false,
// without writing, when the body is not stored yet.
func (s *Store) ApplySignals(ctx context.Context, u SignalUpdate) (bool, error) {
	applied := false
	err := s.withTx(ctx, "apply_signals", func(tx *sql.Tx) error {
		exists, err := bodyExists(ctx, tx, u.SystemAddress, u.BodyID)
		if err != nil || !exists {
			return err
		}

		raw := map[string]any{"Signals": u.Counts}
		if len(u.Genuses) > 0 {
			raw["Genuses"] = u.Genuses
		}
		if len(u.Hotspots) > 0 {
			raw["Hotspots"] = u.Hotspots
		}
		if err := upsertBody(ctx, tx, BodyObservation{
			SystemAddress: u.SystemAddress,
			BodyID:        u.BodyID,
			Signals:       u.Counts,
			Raw:           raw,
			RawTier:       TierSignals,
			ObservedAt:    u.ObservedAt,
		}); err != nil {
			return err
		}
		applied = true
		return recomputeAggregates(ctx, tx, u.SystemAddress)
	})
	return applied, err
}

// MarkMapped records a completed surface mapping by the commander.
func (s *Store) MarkMapped(ctx context.Context, m MappingObservation) error {
	return s.UpsertBody(ctx, BodyObservation{
		SystemAddress:   m.SystemAddress,
		SystemName:      m.SystemName,
		BodyID:          m.BodyID,
		Name:            m.Name,
		Fidelity:        journal.FidelityMapped,
		Value:           m.Value,
		MappedByMe:      true,
		MappedEfficient: m.Efficient,
		Raw: map[string]any{"Mapping": map[string]any{
			"ProbesUsed":       m.ProbesUsed,
			"EfficiencyTarget": m.EfficiencyTarget,
		}},
		RawTier:    TierMapped,
		ObservedAt: m.ObservedAt,
	})
}

// MarkFootfall records that the commander set foot on a body.
func (s *Store) MarkFootfall(ctx context.Context, address int64, bodyID int, name string, obs BodyObservation) error {
	obs.SystemAddress = address
	obs.BodyID = bodyID
	obs.Name = name
	obs.FootfalledByMe = true
	return s.UpsertBody(ctx, obs)
}

// BodyExists reports whether a body is stored.
func (s *Store) BodyExists(ctx context.Context, address int64, bodyID int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bodies WHERE system_address = ? AND body_id = ?
	`, address, bodyID).Scan(&n)
	if err != nil {
		return false, wrap("body_exists", err)
	}
	return n > 0, nil
}

// GetBody returns a stored body, ErrNotFound if unknown.
func (s *Store) GetBody(ctx context.Context, address int64, bodyID int) (*Body, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bodyColumns+`
		FROM bodies WHERE system_address = ? AND body_id = ?`, address, bodyID)
	b, err := scanBody(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap("get_body", err)
	}
	return b, nil
}

// ListBodies returns all stored bodies of a system ordered by body id.
func (s *Store) ListBodies(ctx context.Context, address int64) ([]Body, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bodyColumns+`
		FROM bodies WHERE system_address = ? ORDER BY body_id`, address)
	if err != nil {
		return nil, wrap("list_bodies", err)
	}
	defer rows.Close()

	var out []Body
	for rows.Next() {
		b, err := scanBody(rows)
		if err != nil {
			return nil, wrap("list_bodies", err)
		}
		out = append(out, *b)
	}
	return out, wrap("list_bodies", rows.Err())
}

func upsertBody(ctx context.Context, tx *sql.Tx, obs BodyObservation) error {
	if err := ensureSystem(ctx, tx, obs.SystemAddress, obs.SystemName); err != nil {
		return err
	}

	var raw sql.NullString
	if len(obs.Raw) > 0 {
		data, err := json.Marshal(obs.Raw)
		if err != nil {
			return fmt.Errorf("marshal raw snapshot: %w", err)
		}
		raw = sql.NullString{String: string(data), Valid: true}
	}

	var value sql.NullInt64
	if obs.Value != nil {
		value = sql.NullInt64{Int64: *obs.Value, Valid: true}
	}

	discoveredByMe := obs.DiscoveredByMe
	// A detailed scan of a body nobody had scanned before is our discovery.
	if obs.WasDiscovered != nil && !*obs.WasDiscovered && obs.Fidelity >= journal.FidelityDetailed {
		discoveredByMe = true
	}

	_, err := tx.ExecContext(ctx, upsertBodySQL,
		obs.SystemAddress, obs.BodyID, nullString(obs.Name), nullString(string(obs.Type)), nullString(obs.SubType),
		nullFloat(obs.DistanceLS), nullFloat(obs.Radius), nullFloat(obs.MassEM), nullFloat(obs.StellarMass),
		nullFloat(obs.Gravity), nullFloat(obs.SurfaceTemp), nullFloat(obs.SurfacePressure),
		nullString(obs.Atmosphere), nullString(obs.Volcanism), nullString(obs.TerraformState),
		nullBool(obs.Landable), nullBool(obs.TidalLock),
		int(obs.Fidelity), value,
		obs.Signals.Biological, obs.Signals.Geological, obs.Signals.Human,
		obs.Signals.Thargoid, obs.Signals.Guardian, obs.Signals.Other,
		nullBool(obs.WasDiscovered), nullBool(obs.WasMapped), nullBool(obs.WasFootfalled),
		boolToInt(discoveredByMe), boolToInt(obs.MappedByMe), boolToInt(obs.FootfalledByMe), boolToInt(obs.MappedEfficient),
		nullInt(obs.ParentBodyID), raw, obs.RawTier, timeToMs(obs.ObservedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert body %d/%d: %w", obs.SystemAddress, obs.BodyID, err)
	}
	return nil
}

func bodyExists(ctx context.Context, tx *sql.Tx, address int64, bodyID int) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bodies WHERE system_address = ? AND body_id = ?
	`, address, bodyID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check body %d/%d: %w", address, bodyID, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBody(r rowScanner) (*Body, error) {
	var (
		b                                                    Body
		name, bodyType, subType                              sql.NullString
		distance, radius, mass, stellarMass                  sql.NullFloat64
		gravity, temp, pressure                              sql.NullFloat64
		atmosphere, volcanism, terraform                     sql.NullString
		landable, tidalLock                                  sql.NullInt64
		fidelity                                             int
		value                                                sql.NullInt64
		wasDiscovered, wasMapped, wasFootfalled              sql.NullInt64
		discoveredByMe, mappedByMe, footfalledByMe, efficient int
		parent                                               sql.NullInt64
		raw                                                  sql.NullString
		updated                                              int64
	)
	err := r.Scan(
		&b.RowID, &b.SystemAddress, &b.BodyID, &name, &bodyType, &subType,
		&distance, &radius, &mass, &stellarMass, &gravity, &temp, &pressure,
		&atmosphere, &volcanism, &terraform, &landable, &tidalLock,
		&fidelity, &value,
		&b.Signals.Biological, &b.Signals.Geological, &b.Signals.Human,
		&b.Signals.Thargoid, &b.Signals.Guardian, &b.Signals.Other,
		&wasDiscovered, &wasMapped, &wasFootfalled,
		&discoveredByMe, &mappedByMe, &footfalledByMe, &efficient,
		&parent, &raw, &b.RawTier, &updated,
	)
	if err != nil {
		return nil, err
	}

	b.Name = name.String
	b.Type = journal.BodyType(bodyType.String)
	b.SubType = subType.String
	b.DistanceLS = floatPtr(distance)
	b.Radius = floatPtr(radius)
	b.MassEM = floatPtr(mass)
	b.StellarMass = floatPtr(stellarMass)
	b.Gravity = floatPtr(gravity)
	b.SurfaceTemp = floatPtr(temp)
	b.SurfacePressure = floatPtr(pressure)
	b.Atmosphere = atmosphere.String
	b.Volcanism = volcanism.String
	b.TerraformState = terraform.String
	b.Landable = boolPtr(landable)
	b.TidalLock = boolPtr(tidalLock)
	b.Fidelity = journal.Fidelity(fidelity)
	if value.Valid {
		v := value.Int64
		b.Value = &v
	}
	b.WasDiscovered = boolPtr(wasDiscovered)
	b.WasMapped = boolPtr(wasMapped)
	b.WasFootfalled = boolPtr(wasFootfalled)
	b.DiscoveredByMe = discoveredByMe != 0
	b.MappedByMe = mappedByMe != 0
	b.FootfalledByMe = footfalledByMe != 0
	b.MappedEfficient = efficient != 0
	if parent.Valid {
		p := int(parent.Int64)
		b.ParentBodyID = &p
	}
	if raw.Valid {
		b.Raw = json.RawMessage(raw.String)
	}
	b.UpdatedAt = msToTime(updated)
	return &b, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolPtr(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 != 0
	return &b
}
