package database

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is the schema version this build operates on. The
// stored version advances linearly through the migration steps below; an
// unrecognized stored version aborts startup rather than guessing.
const CurrentSchemaVersion = 4

// MigrationError indicates the on-disk schema cannot be brought to the
// current version. Operating on an unknown schema risks corruption, so this
// is fatal to startup.
type MigrationError struct {
	FromVersion int
	Reason      string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration from version %d failed: %s", e.FromVersion, e.Reason)
}

// Schema version 1: the base relational model. Later versions only add
// columns and indexes, never drop or rewrite.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS artists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS albums (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	artist_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	year INTEGER,
	genre TEXT,
	compilation BOOLEAN DEFAULT FALSE,
	path TEXT NOT NULL UNIQUE,
	dr_value TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (artist_id) REFERENCES artists (id) ON DELETE CASCADE,
	UNIQUE (artist_id, title, year)
);

CREATE TABLE IF NOT EXISTS tracks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	album_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	track_number INTEGER,
	disc_number INTEGER DEFAULT 1,
	duration_ms INTEGER NOT NULL,
	path TEXT NOT NULL UNIQUE,
	file_size INTEGER NOT NULL,
	format TEXT NOT NULL,
	sample_rate INTEGER NOT NULL,
	bits_per_sample INTEGER NOT NULL,
	channels INTEGER NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (album_id) REFERENCES albums (id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_artists_name ON artists (name);
CREATE INDEX IF NOT EXISTS idx_albums_artist_id ON albums (artist_id);
CREATE INDEX IF NOT EXISTS idx_albums_title ON albums (title);
CREATE INDEX IF NOT EXISTS idx_tracks_album_id ON tracks (album_id);
`

// migrations holds the DDL for each linear step n -> n+1, indexed by the
// starting version. All steps are additive.
var migrations = map[int][]string{
	1: {
		"ALTER TABLE albums ADD COLUMN artwork_path TEXT",
	},
	2: {
		"ALTER TABLE albums ADD COLUMN format TEXT",
		"ALTER TABLE albums ADD COLUMN bits_per_sample INTEGER",
		"ALTER TABLE albums ADD COLUMN sample_rate INTEGER",
	},
	3: {
		"ALTER TABLE tracks ADD COLUMN codec TEXT NOT NULL DEFAULT ''",
		"ALTER TABLE tracks ADD COLUMN is_lossless BOOLEAN DEFAULT FALSE",
		"ALTER TABLE tracks ADD COLUMN is_high_resolution BOOLEAN DEFAULT FALSE",
		"CREATE INDEX IF NOT EXISTS idx_tracks_path ON tracks (path)",
	},
}

// initializeSchema brings a fresh or outdated database to the current schema
// version. A fresh database gets the full current schema in one pass; an
// outdated one walks the linear migration steps, each applied atomically
// together with its version bump.
func (db *Database) initializeSchema() error {
	if _, err := db.conn.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		return db.createCurrentSchema()
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == CurrentSchemaVersion {
		return nil
	}
	if version < 1 || version > CurrentSchemaVersion {
		return &MigrationError{
			FromVersion: version,
			Reason:      fmt.Sprintf("unrecognized schema version (current is %d)", CurrentSchemaVersion),
		}
	}

	for v := version; v < CurrentSchemaVersion; v++ {
		if err := db.applyMigration(v); err != nil {
			return err
		}
		db.logger.WithField("version", v+1).Info("Applied schema migration")
	}

	return nil
}

// createCurrentSchema builds the full current schema on a fresh database and
// stamps the version, all in a single transaction.
func (db *Database) createCurrentSchema() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("failed to create base schema: %w", err)
	}
	for v := 1; v < CurrentSchemaVersion; v++ {
		for _, stmt := range migrations[v] {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply schema statement %q: %w", stmt, err)
			}
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to stamp schema version: %w", err)
	}

	return tx.Commit()
}

// applyMigration runs the DDL for step from -> from+1 and advances the stored
// version in the same transaction.
func (db *Database) applyMigration(from int) error {
	steps, ok := migrations[from]
	if !ok {
		return &MigrationError{FromVersion: from, Reason: "no migration path defined"}
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range steps {
		if _, err := tx.Exec(stmt); err != nil {
			return &MigrationError{
				FromVersion: from,
				Reason:      fmt.Sprintf("statement %q: %v", stmt, err),
			}
		}
	}
	if _, err := tx.Exec("UPDATE schema_version SET version = ?", from+1); err != nil {
		return fmt.Errorf("failed to advance schema version: %w", err)
	}

	return tx.Commit()
}

// SchemaVersion returns the stored schema version, or 0 for an uninitialized
// database.
func (db *Database) SchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
