// Package store persists risk records, feed cache entries, notification
// dedup stamps, and background run snapshots in a local SQLite database.
// Each repository exclusively owns its tables; all access is serialized
// through the owning repository.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection shared by the repositories.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the database at path and initializes the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps repository batches serialized at the connection
	// level; SQLite does not benefit from write concurrency anyway.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feed_cache (
		feed_key TEXT PRIMARY KEY,
		etag TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT '',
		last_success INTEGER,
		next_planned INTEGER,
		body BLOB
	);

	CREATE TABLE IF NOT EXISTS notify_stamps (
		kind TEXT PRIMARY KEY,
		dedup_key TEXT NOT NULL,
		stamped_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_log (
		run_id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		outcome TEXT NOT NULL,
		notified INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		next_scheduled INTEGER,
		cadence_seconds INTEGER NOT NULL DEFAULT 0,
		cadence_rationale TEXT NOT NULL DEFAULT '',
		active_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_run_log_started ON run_log(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// riskTableSchema is instantiated once per record family. Bounding box
// columns stay NULL for records without polygons; the Active query excludes
// NULL bounds explicitly rather than through sentinel values.
const riskTableSchema = `
	CREATE TABLE IF NOT EXISTS %[1]s (
		key TEXT PRIMARY KEY,
		issued INTEGER NOT NULL,
		valid_start INTEGER NOT NULL,
		valid_end INTEGER NOT NULL,
		min_lat REAL,
		min_lon REAL,
		max_lat REAL,
		max_lon REAL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_valid_end ON %[1]s(valid_end);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_issued ON %[1]s(issued);
`
