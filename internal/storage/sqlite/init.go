package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_settings (
	user_id     TEXT PRIMARY KEY,
	prefix      TEXT NOT NULL DEFAULT '',
	upload_mode TEXT NOT NULL DEFAULT 'document',
	caption     TEXT NOT NULL DEFAULT '',
	thumbnail   TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transfers (
	id          INTEGER PRIMARY KEY,
	session_id  TEXT UNIQUE NOT NULL,
	user_id     TEXT NOT NULL,
	direction   TEXT NOT NULL,
	file_name   TEXT NOT NULL,
	status      TEXT NOT NULL,
	bytes       INTEGER NOT NULL DEFAULT 0,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS transfers_user_id ON transfers (user_id, started_at);

CREATE TABLE IF NOT EXISTS work_files (
	path       TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_locks (
	user_id     TEXT PRIMARY KEY,
	holder      TEXT NOT NULL DEFAULT '',
	acquired_at INTEGER NOT NULL DEFAULT 0,
	expires_at  INTEGER NOT NULL DEFAULT 0
);
`

// InitDB opens the SQLite database at path and creates the tables if they
// don't exist. ":memory:" is supported and kept on a single connection.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
