package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/runger/edjournal/internal/journal"
)

// UpsertBiological records an organic scan step. The body gets a stub row if
// it has not been scanned yet. Progress never moves backwards.
func (s *Store) UpsertBiological(ctx context.Context, obs BiologicalObservation) error {
	return s.withTx(ctx, "upsert_biological", func(tx *sql.Tx) error {
		if err := upsertBody(ctx, tx, BodyObservation{
			SystemAddress: obs.SystemAddress,
			BodyID:        obs.BodyID,
			ObservedAt:    obs.ObservedAt,
		}); err != nil {
			return err
		}

		var rowID int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM bodies WHERE system_address = ? AND body_id = ?
		`, obs.SystemAddress, obs.BodyID).Scan(&rowID)
		if err != nil {
			return fmt.Errorf("resolve body %d/%d: %w", obs.SystemAddress, obs.BodyID, err)
		}

		ts := timeToMs(obs.ObservedAt)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO biologicals (
				body_row_id, genus, species, genus_name, species_name, variant, variant_name,
				progress, fully_scanned, value, first_seen_ms, updated_at_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(body_row_id, genus, species) DO UPDATE SET
				genus_name = COALESCE(excluded.genus_name, biologicals.genus_name),
				species_name = COALESCE(excluded.species_name, biologicals.species_name),
				variant = COALESCE(excluded.variant, biologicals.variant),
				variant_name = COALESCE(excluded.variant_name, biologicals.variant_name),
				progress = MAX(biologicals.progress, excluded.progress),
				fully_scanned = MAX(biologicals.fully_scanned, excluded.fully_scanned),
				value = MAX(biologicals.value, excluded.value),
				first_seen_ms = MIN(biologicals.first_seen_ms, excluded.first_seen_ms),
				updated_at_ms = MAX(biologicals.updated_at_ms, excluded.updated_at_ms)
		`, rowID, obs.Genus, obs.Species, nullString(obs.GenusName), nullString(obs.SpeciesName),
			nullString(obs.Variant), nullString(obs.VariantName),
			obs.Progress, boolToInt(obs.Progress >= journal.OrganicAnalyse), obs.Value, ts, ts)
		if err != nil {
			return fmt.Errorf("upsert biological %s on %d/%d: %w", obs.Species, obs.SystemAddress, obs.BodyID, err)
		}
		return nil
	})
}

// ListBiologicals returns the organisms recorded on a body.
func (s *Store) ListBiologicals(ctx context.Context, address int64, bodyID int) ([]Biological, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bio.id, b.system_address, b.body_id, bio.genus, bio.genus_name, bio.species,
		       bio.species_name, bio.variant, bio.variant_name, bio.progress, bio.fully_scanned,
		       bio.value, bio.first_seen_ms, bio.updated_at_ms
		FROM biologicals bio
		JOIN bodies b ON b.id = bio.body_row_id
		WHERE b.system_address = ? AND b.body_id = ?
		ORDER BY bio.genus, bio.species
	`, address, bodyID)
	if err != nil {
		return nil, wrap("list_biologicals", err)
	}
	defer rows.Close()

	var out []Biological
	for rows.Next() {
		var (
			bio                                       Biological
			genusName, speciesName, variant, varName sql.NullString
			full                                      int
			first, updated                            int64
		)
		if err := rows.Scan(&bio.ID, &bio.SystemAddress, &bio.BodyID, &bio.Genus, &genusName,
			&bio.Species, &speciesName, &variant, &varName, &bio.Progress, &full,
			&bio.Value, &first, &updated); err != nil {
			return nil, wrap("list_biologicals", err)
		}
		bio.GenusName = genusName.String
		bio.SpeciesName = speciesName.String
		bio.Variant = variant.String
		bio.VariantName = varName.String
		bio.FullyScanned = full != 0
		bio.FirstSeen = msToTime(first)
		bio.UpdatedAt = msToTime(updated)
		out = append(out, bio)
	}
	return out, wrap("list_biologicals", rows.Err())
}

// UpsertCodexEntry records a codex discovery. The first sighting per entry
// and region is kept; a later "new entry" flag or voucher is merged in.
func (s *Store) UpsertCodexEntry(ctx context.Context, e CodexEntry) error {
	return s.withTx(ctx, "upsert_codex_entry", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO codex_entries (
				entry_id, region, name, category, sub_category, system_address, system_name,
				body_id, latitude, longitude, is_new_entry, voucher_amount, first_seen_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entry_id, region) DO UPDATE SET
				is_new_entry = MAX(codex_entries.is_new_entry, excluded.is_new_entry),
				voucher_amount = MAX(codex_entries.voucher_amount, excluded.voucher_amount),
				first_seen_ms = MIN(codex_entries.first_seen_ms, excluded.first_seen_ms)
		`, e.EntryID, e.Region, nullString(e.Name), nullString(e.Category), nullString(e.SubCategory),
			e.SystemAddress, nullString(e.SystemName), nullInt(e.BodyID),
			nullFloat(e.Latitude), nullFloat(e.Longitude),
			boolToInt(e.IsNewEntry), e.VoucherAmount, timeToMs(e.FirstSeen))
		if err != nil {
			return fmt.Errorf("upsert codex entry %d: %w", e.EntryID, err)
		}
		return nil
	})
}

// GetCodexEntry returns a codex entry, ErrNotFound if unknown.
func (s *Store) GetCodexEntry(ctx context.Context, entryID int64, region string) (*CodexEntry, error) {
	var (
		e                               CodexEntry
		name, category, sub, systemName sql.NullString
		bodyID                          sql.NullInt64
		lat, lon                        sql.NullFloat64
		isNew                           int
		first                           int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT entry_id, region, name, category, sub_category, system_address, system_name,
		       body_id, latitude, longitude, is_new_entry, voucher_amount, first_seen_ms
		FROM codex_entries WHERE entry_id = ? AND region = ?
	`, entryID, region).Scan(&e.EntryID, &e.Region, &name, &category, &sub, &e.SystemAddress,
		&systemName, &bodyID, &lat, &lon, &isNew, &e.VoucherAmount, &first)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrap("get_codex_entry", err)
	}

	e.Name = name.String
	e.Category = category.String
	e.SubCategory = sub.String
	e.SystemName = systemName.String
	if bodyID.Valid {
		b := int(bodyID.Int64)
		e.BodyID = &b
	}
	e.Latitude = floatPtr(lat)
	e.Longitude = floatPtr(lon)
	e.IsNewEntry = isNew != 0
	e.FirstSeen = msToTime(first)
	return &e, nil
}
