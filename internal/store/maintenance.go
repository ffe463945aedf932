package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidImport is returned when a file offered for import is not a
// usable exploration database.
var ErrInvalidImport = errors.New("not a valid exploration database")

// ImportInfo describes a database offered for import.
type ImportInfo struct {
	Path          string
	SchemaVersion int
	Systems       int64
	Bodies        int64
	RouteEntries  int64
}

// ClearExplorationData wipes every domain table. Metadata, including the
// schema version, and the upstream cache survive.
func (s *Store) ClearExplorationData(ctx context.Context) error {
	err := s.withTx(ctx, "clear_exploration_data", func(tx *sql.Tx) error {
		for _, table := range DomainTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Info("exploration data cleared")
	}
	return err
}

// Backup writes a consistent copy of the database to dest. dest must not
// exist yet.
func (s *Store) Backup(ctx context.Context, dest string) error {
	if dest == "" {
		return &Error{Op: "backup", Kind: KindConfiguration, Err: errors.New("backup path is required")}
	}
	if _, err := os.Stat(dest); err == nil {
		return &Error{Op: "backup", Kind: KindConfiguration, Err: fmt.Errorf("backup target %s already exists", dest)}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return wrap("backup", fmt.Errorf("failed to create backup directory: %w", err))
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return wrap("backup", fmt.Errorf("vacuum into %s: %w", dest, err))
	}
	s.logger.Info("database backed up", "dest", dest)
	return nil
}

// IntegrityCheck runs PRAGMA integrity_check. A damaged database yields a
// KindCorruption error.
func (s *Store) IntegrityCheck(ctx context.Context) error {
	return integrityCheck(ctx, s.db)
}

// ValidateImport checks that path holds an exploration database this
// version can read, without modifying it.
func (s *Store) ValidateImport(ctx context.Context, path string) (*ImportInfo, error) {
	return validateImport(ctx, path)
}

// Import replaces all exploration data with the contents of the database at
// path. The source is copied and migrated first, so older files are
// accepted and the source is never modified. The cache tier is kept.
func (s *Store) Import(ctx context.Context, path string) (*ImportInfo, error) {
	info, err := validateImport(ctx, path)
	if err != nil {
		return nil, err
	}

	tmp, err := stageImport(ctx, path, filepath.Dir(s.path))
	if err != nil {
		return nil, err
	}
	defer removeDatabaseFiles(tmp)

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, wrap("import", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS src`, tmp); err != nil {
		return nil, wrap("import", fmt.Errorf("attach: %w", err))
	}
	defer conn.ExecContext(context.Background(), `DETACH DATABASE src`) //nolint:errcheck // Best effort detach

	if err := copyDomainTables(ctx, conn); err != nil {
		return nil, wrap("import", err)
	}

	s.logger.Info("exploration data imported",
		"source", path,
		"systems", info.Systems,
		"bodies", info.Bodies,
	)
	return info, nil
}

func copyDomainTables(ctx context.Context, conn *sql.Conn) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Best effort rollback on error

	for _, table := range DomainTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM main."+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	// Parents before children.
	for i := len(DomainTables) - 1; i >= 0; i-- {
		table := DomainTables[i]
		cols, err := tableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		list := strings.Join(cols, ", ")
		stmt := fmt.Sprintf("INSERT INTO main.%s (%s) SELECT %s FROM src.%s", table, list, list, table)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("copy %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM pragma_table_info(?, 'main')`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table)
	}
	return cols, nil
}

// stageImport snapshots the source next to the live database and migrates
// the snapshot to the current schema.
func stageImport(ctx context.Context, src, dir string) (string, error) {
	f, err := os.CreateTemp(dir, "import-*.db")
	if err != nil {
		return "", wrap("import", fmt.Errorf("create staging file: %w", err))
	}
	tmp := f.Name()
	f.Close()
	// VACUUM INTO refuses an existing target.
	os.Remove(tmp)

	db, err := openReadOnly(ctx, src)
	if err != nil {
		return "", err
	}
	_, err = db.ExecContext(ctx, `VACUUM INTO ?`, tmp)
	db.Close()
	if err != nil {
		removeDatabaseFiles(tmp)
		return "", wrap("import", fmt.Errorf("snapshot source: %w", err))
	}

	staged, err := Open(ctx, Options{Path: tmp, SkipLock: true, CheckpointInterval: -1})
	if err != nil {
		removeDatabaseFiles(tmp)
		return "", err
	}
	if err := staged.Close(); err != nil {
		removeDatabaseFiles(tmp)
		return "", wrap("import", err)
	}
	return tmp, nil
}

func validateImport(ctx context.Context, path string) (*ImportInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &Error{Op: "validate_import", Kind: KindConfiguration, Err: err}
	}

	db, err := openReadOnly(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	version, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return nil, &Error{Op: "validate_import", Kind: KindCorruption, Err: fmt.Errorf("%w: %w", ErrInvalidImport, err)}
	}
	if version == 0 {
		return nil, &Error{Op: "validate_import", Kind: KindConfiguration, Err: fmt.Errorf("%w: no schema version", ErrInvalidImport)}
	}
	if version > SchemaVersion {
		return nil, &Error{Op: "validate_import", Kind: KindConfiguration, Err: fmt.Errorf("%w: %w", ErrInvalidImport, ErrSchemaVersionTooNew)}
	}
	if err := ValidateSchema(ctx, db); err != nil {
		return nil, &Error{Op: "validate_import", Kind: KindConfiguration, Err: fmt.Errorf("%w: %w", ErrInvalidImport, err)}
	}
	if err := integrityCheck(ctx, db); err != nil {
		return nil, err
	}

	info := &ImportInfo{Path: path, SchemaVersion: version}
	counts := []struct {
		table string
		dest  *int64
	}{
		{"systems", &info.Systems},
		{"bodies", &info.Bodies},
		{"route_history", &info.RouteEntries},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dest); err != nil {
			return nil, wrap("validate_import", err)
		}
	}
	return info, nil
}

func openReadOnly(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, wrap("open_read_only", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrap("open_read_only", err)
	}
	return db, nil
}

func integrityCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return wrap("integrity_check", fmt.Errorf("failed to run integrity check: %w", err))
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			return wrap("integrity_check", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return wrap("integrity_check", err)
	}

	// A healthy database returns exactly one row: "ok"
	if len(results) == 1 && results[0] == "ok" {
		return nil
	}
	return &Error{
		Op:   "integrity_check",
		Kind: KindCorruption,
		Err:  fmt.Errorf("integrity check failed: %s", strings.Join(results, "; ")),
	}
}

func removeDatabaseFiles(path string) {
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(f)
	}
}
