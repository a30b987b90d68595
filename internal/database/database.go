package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB providing the typed query/update surface the
// library engine operates on. It is safe for concurrent use because the
// underlying *sql.DB is concurrency-safe; multi-statement batch operations
// run inside a single transaction for atomicity.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the hot incremental-sync paths
	trackExistsStmt   *sql.Stmt
	removeTrackStmt   *sql.Stmt
	getDRValueStmt    *sql.Stmt
	updateDRValueStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path,
// applies performance pragmas and brings the schema to the current version.
// Caller should Close() it when finished.
func NewDatabase(dbPath string) (*Database, error) {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Behavior-critical settings go in the DSN so every pooled connection
	// gets them, not just the one the pragma loop below runs on.
	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc&_busy_timeout=5000&_foreign_keys=1&_case_sensitive_like=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(5) // SQLite works better with fewer connections
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency. case_sensitive_like keeps the
	// substring filters case-sensitive; callers lower-case as needed.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA case_sensitive_like=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.initializeSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.trackExistsStmt, err = db.conn.Prepare(`
		SELECT COUNT(*) FROM tracks WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare track exists statement: %w", err)
	}

	db.removeTrackStmt, err = db.conn.Prepare(`
		DELETE FROM tracks WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove track statement: %w", err)
	}

	db.getDRValueStmt, err = db.conn.Prepare(`
		SELECT dr_value FROM albums WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get DR value statement: %w", err)
	}

	db.updateDRValueStmt, err = db.conn.Prepare(`
		UPDATE albums SET dr_value = ?, updated_at = CURRENT_TIMESTAMP WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update DR value statement: %w", err)
	}

	return nil
}

// withTx runs fn inside a transaction, rolling back on error and committing
// on success.
func (db *Database) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// TrackExists returns true if a track exists with the given file path.
func (db *Database) TrackExists(path string) (bool, error) {
	var count int
	err := db.trackExistsStmt.QueryRow(path).Scan(&count)
	if err != nil {
		db.logger.WithError(err).WithField("path", path).Error("Failed to check if track exists")
		return false, err
	}
	return count > 0, nil
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.trackExistsStmt,
		db.removeTrackStmt,
		db.getDRValueStmt,
		db.updateDRValueStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
