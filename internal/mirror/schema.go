// Package mirror maintains the SQLite projection of the workspace: one row
// per entity plus the activity log. The mirror is derived state — the
// canonical files win every conflict — so the schema carries the fingerprint
// each row was synced from rather than any authority of its own.
package mirror

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	kind               TEXT NOT NULL,
	slug               TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	fields             TEXT NOT NULL DEFAULT '{}',
	last_modified      DATETIME,
	synced_fingerprint TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (kind, slug)
);

CREATE TABLE IF NOT EXISTS activity (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT NOT NULL,
	slug        TEXT NOT NULL,
	occurred_at DATETIME NOT NULL,
	note        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity(kind, slug, occurred_at);
`

// DB wraps a sql.DB with mirror-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("mirror: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
