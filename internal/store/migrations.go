package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SchemaVersion is the schema version this code writes.
const SchemaVersion = 2

// ErrSchemaVersionTooNew is returned when the database was written by a
// newer edjournal. Running old code against it could lose data.
var ErrSchemaVersionTooNew = errors.New("database schema version is newer than supported; upgrade edjournal")

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	SQL     string
}

// Migrations returns all migrations in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, SQL: schemaV1},
		{Version: 2, SQL: schemaV2},
	}
}

// DomainTables are wiped by ClearExplorationData and copied by Import,
// children before parents.
var DomainTables = []string{
	"biologicals",
	"codex_entries",
	"route_history",
	"bodies",
	"systems",
}

// AllTables lists every table a valid database must carry.
var AllTables = []string{
	"meta",
	"systems",
	"bodies",
	"biologicals",
	"codex_entries",
	"route_history",
	"upstream_cache",
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS systems (
	address             INTEGER PRIMARY KEY,
	name                TEXT NOT NULL DEFAULT '',
	x                   REAL,
	y                   REAL,
	z                   REAL,
	star_class          TEXT,
	first_visited_ms    INTEGER,
	last_visited_ms     INTEGER,
	visit_count         INTEGER NOT NULL DEFAULT 0,
	declared_body_count INTEGER NOT NULL DEFAULT 0,
	all_bodies_found    INTEGER NOT NULL DEFAULT 0,
	known_bodies        INTEGER NOT NULL DEFAULT 0,
	discovered_count    INTEGER NOT NULL DEFAULT 0,
	mapped_count        INTEGER NOT NULL DEFAULT 0,
	estimated_value     INTEGER NOT NULL DEFAULT 0,
	mapped_value        INTEGER NOT NULL DEFAULT 0,
	updated_at_ms       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bodies (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	system_address    INTEGER NOT NULL REFERENCES systems(address) ON DELETE CASCADE,
	body_id           INTEGER NOT NULL,
	name              TEXT,
	body_type         TEXT,
	sub_type          TEXT,
	distance_ls       REAL,
	radius            REAL,
	mass_em           REAL,
	stellar_mass      REAL,
	gravity           REAL,
	surface_temp      REAL,
	surface_pressure  REAL,
	atmosphere        TEXT,
	volcanism         TEXT,
	terraform_state   TEXT,
	landable          INTEGER,
	tidal_lock        INTEGER,
	fidelity          INTEGER NOT NULL DEFAULT 0,
	value             INTEGER,
	bio_signals       INTEGER NOT NULL DEFAULT 0,
	geo_signals       INTEGER NOT NULL DEFAULT 0,
	human_signals     INTEGER NOT NULL DEFAULT 0,
	thargoid_signals  INTEGER NOT NULL DEFAULT 0,
	guardian_signals  INTEGER NOT NULL DEFAULT 0,
	other_signals     INTEGER NOT NULL DEFAULT 0,
	was_discovered    INTEGER,
	was_mapped        INTEGER,
	was_footfalled    INTEGER,
	discovered_by_me  INTEGER NOT NULL DEFAULT 0,
	mapped_by_me      INTEGER NOT NULL DEFAULT 0,
	footfalled_by_me  INTEGER NOT NULL DEFAULT 0,
	mapped_efficient  INTEGER NOT NULL DEFAULT 0,
	parent_body_id    INTEGER,
	raw_json          TEXT,
	raw_tier          INTEGER NOT NULL DEFAULT 0,
	updated_at_ms     INTEGER NOT NULL DEFAULT 0,
	UNIQUE (system_address, body_id)
);

CREATE TABLE IF NOT EXISTS biologicals (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	body_row_id    INTEGER NOT NULL REFERENCES bodies(id) ON DELETE CASCADE,
	genus          TEXT NOT NULL,
	species        TEXT NOT NULL,
	genus_name     TEXT,
	species_name   TEXT,
	variant        TEXT,
	variant_name   TEXT,
	progress       INTEGER NOT NULL DEFAULT 0,
	fully_scanned  INTEGER NOT NULL DEFAULT 0,
	value          INTEGER NOT NULL DEFAULT 0,
	first_seen_ms  INTEGER NOT NULL,
	updated_at_ms  INTEGER NOT NULL,
	UNIQUE (body_row_id, genus, species)
);

CREATE TABLE IF NOT EXISTS codex_entries (
	entry_id        INTEGER NOT NULL,
	region          TEXT NOT NULL,
	name            TEXT,
	category        TEXT,
	sub_category    TEXT,
	system_address  INTEGER,
	system_name     TEXT,
	body_id         INTEGER,
	latitude        REAL,
	longitude       REAL,
	is_new_entry    INTEGER NOT NULL DEFAULT 0,
	voucher_amount  INTEGER NOT NULL DEFAULT 0,
	first_seen_ms   INTEGER NOT NULL,
	PRIMARY KEY (entry_id, region)
);

CREATE TABLE IF NOT EXISTS route_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL DEFAULT '',
	system_address  INTEGER NOT NULL,
	system_name     TEXT NOT NULL DEFAULT '',
	timestamp_ms    INTEGER NOT NULL,
	jump_dist       REAL NOT NULL DEFAULT 0,
	fuel_used       REAL NOT NULL DEFAULT 0,
	kind            TEXT NOT NULL,
	UNIQUE (system_address, timestamp_ms)
);

CREATE TABLE IF NOT EXISTS upstream_cache (
	cache_key      TEXT PRIMARY KEY,
	kind           TEXT NOT NULL,
	payload_json   TEXT NOT NULL,
	created_at_ms  INTEGER NOT NULL,
	expires_at_ms  INTEGER NOT NULL,
	hit_count      INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bodies_system ON bodies(system_address);
CREATE INDEX IF NOT EXISTS idx_route_history_ts ON route_history(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_upstream_cache_expires ON upstream_cache(expires_at_ms);
`

const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_route_history_session ON route_history(session_id);
CREATE INDEX IF NOT EXISTS idx_upstream_cache_kind ON upstream_cache(kind);
CREATE INDEX IF NOT EXISTS idx_codex_system ON codex_entries(system_address);
`

// GetSchemaVersion returns the schema version recorded in meta, 0 for a
// fresh database.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master WHERE type='table' AND name='meta'
	`).Scan(&tableName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to check for meta table: %w", err)
	}

	var raw string
	err = db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}

	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	return version, nil
}

// RunMigrations applies all pending migrations, each in its own
// transaction. It refuses to touch a database newer than SchemaVersion.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("%w: database version %d, supported version %d",
			ErrSchemaVersionTooNew, currentVersion, SchemaVersion)
	}

	for _, m := range Migrations() {
		if m.Version <= currentVersion {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.Version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Best effort rollback on error

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.Itoa(m.Version))
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// ValidateSchema checks that every expected table exists.
func ValidateSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range AllTables {
		var name string
		err := db.QueryRowContext(ctx, `
			SELECT name FROM sqlite_master WHERE type='table' AND name=?
		`, table).Scan(&name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("table %q does not exist", table)
			}
			return fmt.Errorf("failed to check table %q: %w", table, err)
		}
	}
	return nil
}
