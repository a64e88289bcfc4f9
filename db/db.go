// Package db manages the SQLite database connection and schema migrations.
// it exposes a Database struct that wraps *sql.DB and is passed via dependency
// injection to any layer that needs database access (handlers, trigger, pipeline).
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// the underscore import registers the go-sqlite3 driver with database/sql.
	// without it, sql.Open("sqlite3", ...) returns an "unknown driver" error.
	_ "github.com/mattn/go-sqlite3"
)

// ErrRecordNotFound is returned when no row matches the given ID.
// callers check for it to tell "not found" (404) apart from a real database error (500).
var ErrRecordNotFound = errors.New("record not found")

/*
Database wraps the *sql.DB connection pool.
the connection field is private, so callers only get the project and build
queries defined in this package, never raw SQL access.
*/
type Database struct {
	connection *sql.DB
	logger     *slog.Logger
}

/*
schema creates the projects and builds tables.
IF NOT EXISTS makes it safe to run on every startup: existing tables and rows are left alone.

mount, push and cause are JSON text columns. nothing queries into them,
they are only read back whole with their row.
*/
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id                    TEXT PRIMARY KEY,
    name                  TEXT UNIQUE NOT NULL,
    repository_url        TEXT NOT NULL DEFAULT '',
    workspace             TEXT NOT NULL,
    script_path           TEXT NOT NULL,
    image_name            TEXT NOT NULL DEFAULT '',
    vm_version            TEXT NOT NULL DEFAULT '',
    container_working_dir TEXT NOT NULL DEFAULT '',
    mount                 TEXT,
    overwrite             INTEGER NOT NULL DEFAULT 0,
    no_base               INTEGER NOT NULL DEFAULT 0,
    diagnostic            INTEGER NOT NULL DEFAULT 0,
    login_user            TEXT NOT NULL DEFAULT '',
    login_password_env    TEXT NOT NULL DEFAULT '',
    push                  TEXT,
    export_directory      TEXT NOT NULL DEFAULT '',
    remove_image          INTEGER NOT NULL DEFAULT 0,
    created_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_projects_repository_url ON projects (repository_url COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS builds (
    id           TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL REFERENCES projects (id),
    status       TEXT NOT NULL,
    cause_kind   TEXT NOT NULL,
    description  TEXT NOT NULL DEFAULT '',
    cause        TEXT,
    tool_version TEXT,
    built_image  TEXT,
    remote_image TEXT,
    error        TEXT,
    queued_at    DATETIME NOT NULL,
    started_at   DATETIME,
    finished_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_builds_status_queued_at ON builds (status, queued_at);
CREATE INDEX IF NOT EXISTS idx_builds_project_id ON builds (project_id);
`

// migrate runs the schema DDL against the database.
func (database *Database) migrate() error {
	_, err := database.connection.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema migration (create tables & indexes): %w", err)
	}
	return nil
}

/*
OpenDatabase opens the SQLite database at the given file path, runs the schema
migration, and returns a ready-to-use *Database.
the parent directory of the database file is created if it does not exist.
*/
func OpenDatabase(dbPath string, logger *slog.Logger) (*Database, error) {
	dir := filepath.Dir(dbPath)

	// 0755: owner rwx, group and others r-x
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	// sql.Open only validates the arguments and prepares the pool.
	// the first real connection is made by the migration below.
	// go-sqlite3 applies the DSN options as pragmas on every new connection:
	// foreign keys are off in SQLite unless asked for.
	dbConnection, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %q: %w", dbPath, err)
	}

	// SQLite does not support concurrent writes from multiple connections.
	// a single connection also serializes the read-then-insert of ScheduleBuild
	// and the select-then-update of ClaimNextQueuedBuild.
	dbConnection.SetMaxOpenConns(1)

	database := &Database{
		connection: dbConnection,
		logger:     logger,
	}

	err = database.migrate()
	if err != nil {
		dbConnection.Close()
		return nil, fmt.Errorf("database migration (table & index creation, DDL) failed: %w", err)
	}

	logger.Info("database opened and schema migrated", "path", dbPath)
	return database, nil
}

// CloseDatabase releases the database connection pool.
// deferred in main right after OpenDatabase returns successfully.
func (database *Database) CloseDatabase() error {
	return database.connection.Close()
}

// Ping checks that the database file is still reachable. used by GET /health.
func (database *Database) Ping(ctx context.Context) error {
	return database.connection.PingContext(ctx)
}

// scanner is satisfied by both *sql.Row and *sql.Rows, so one scan function
// serves QueryRow (single row) and Query (multiple rows).
type scanner interface {
	Scan(dest ...any) error
}

// checkRowsAffected maps "the WHERE clause matched nothing" to ErrRecordNotFound,
// so an update or delete of an unknown ID is never a silent no-op.
func checkRowsAffected(result sql.Result, what string, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s %q: %w", what, id, err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
