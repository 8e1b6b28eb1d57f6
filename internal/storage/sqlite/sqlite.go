package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"golang.org/x/mod/semver"
)

// Store implements the Storage interface using SQLite
type Store struct {
	db   *sql.DB
	path string
}

// New creates a new SQLite storage backend
func New(path string) (*Store, error) {
	// Ensure directory exists (skip for in-memory databases)
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency. The pragmas run
	// on every new pool connection, so foreign keys stay enforced even
	// after the pool recycles.
	dsn := "file:" + path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; a pool of them would be
	// a pool of empty databases.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Migrate databases created before interrupts carried a resumed_at column
	if err := migrateInterruptResumedAt(db); err != nil {
		return nil, fmt.Errorf("failed to migrate interrupts table: %w", err)
	}

	// Record or check the schema version
	if err := ensureSchemaVersion(db); err != nil {
		return nil, err
	}

	return &Store{
		db:   db,
		path: path,
	}, nil
}

// ensureSchemaVersion records the schema version on first open and refuses
// to open databases written by an incompatible (newer major) layout.
// Older same-major versions are stamped forward: all v1 migrations are
// additive and applied in New before this check.
func ensureSchemaVersion(db *sql.DB) error {
	var stored string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&stored)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, SchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if !semver.IsValid(stored) {
		return fmt.Errorf("database has malformed schema version %q", stored)
	}
	if semver.Major(stored) != semver.Major(SchemaVersion) {
		return fmt.Errorf("database schema %s is incompatible with this build (%s); refusing to open", stored, SchemaVersion)
	}
	if semver.Compare(stored, SchemaVersion) < 0 {
		_, err = db.Exec(`UPDATE meta SET value = ? WHERE key = 'schema_version'`, SchemaVersion)
		if err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

// migrateInterruptResumedAt adds the resumed_at column to databases created
// under v1.0.0, where a decided interrupt had no record of being applied.
// The column may already exist (created by schema), in which case there is
// nothing to do.
func migrateInterruptResumedAt(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(interrupts)`)
	if err != nil {
		return fmt.Errorf("failed to inspect interrupts table: %w", err)
	}
	defer rows.Close()

	hasColumn := false
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == "resumed_at" {
			hasColumn = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read column info: %w", err)
	}

	if !hasColumn {
		if _, err := db.Exec(`ALTER TABLE interrupts ADD COLUMN resumed_at DATETIME`); err != nil {
			return fmt.Errorf("failed to add resumed_at column: %w", err)
		}
	}
	return nil
}

// GetMeta gets a value from the meta table. Missing keys return "".
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMeta sets a value in the meta table
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
