// Package index provides the SQLite-backed persistence gateway for vaults,
// notes, links, tags, metric snapshots and scan records.
package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS vaults (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	root_path        TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL DEFAULT '',
	last_scanned_at  DATETIME,
	last_analyzed_at DATETIME
);

CREATE TABLE IF NOT EXISTS notes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	vault_id     INTEGER NOT NULL REFERENCES vaults(id) ON DELETE CASCADE,
	path         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	aliases      TEXT NOT NULL DEFAULT '[]',
	content_hash TEXT NOT NULL DEFAULT '',
	word_count   INTEGER NOT NULL DEFAULT 0,
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	modified_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(vault_id, path)
);

CREATE TABLE IF NOT EXISTS links (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	source_note_id   INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	raw_target       TEXT NOT NULL,
	display_text     TEXT,
	section          TEXT,
	embed            INTEGER NOT NULL DEFAULT 0,
	resolved_note_id INTEGER REFERENCES notes(id) ON DELETE SET NULL,
	broken           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_note_id);
CREATE INDEX IF NOT EXISTS idx_links_resolved ON links(resolved_note_id);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (note_id, tag_id)
);

-- Snapshot tables are only ever written by ReplaceGraphMetrics.
CREATE TABLE IF NOT EXISTS graph_metrics (
	vault_id    INTEGER NOT NULL,
	note_id     INTEGER NOT NULL,
	run_id      TEXT NOT NULL,
	pagerank    REAL NOT NULL,
	in_degree   INTEGER NOT NULL,
	out_degree  INTEGER NOT NULL,
	betweenness REAL NOT NULL,
	closeness   REAL NOT NULL,
	clustering  REAL NOT NULL,
	computed_at DATETIME NOT NULL,
	PRIMARY KEY (vault_id, note_id)
);

CREATE TABLE IF NOT EXISTS note_clusters (
	vault_id   INTEGER NOT NULL,
	note_id    INTEGER NOT NULL,
	cluster_id INTEGER NOT NULL,
	PRIMARY KEY (vault_id, note_id)
);

CREATE TABLE IF NOT EXISTS scans (
	run_id        TEXT PRIMARY KEY,
	vault_id      INTEGER NOT NULL REFERENCES vaults(id) ON DELETE CASCADE,
	started_at    DATETIME NOT NULL,
	duration_ms   INTEGER NOT NULL,
	notes_scanned INTEGER NOT NULL,
	notes_parsed  INTEGER NOT NULL,
	notes_skipped INTEGER NOT NULL,
	notes_removed INTEGER NOT NULL,
	links_found   INTEGER NOT NULL,
	tags_found    INTEGER NOT NULL,
	errors        TEXT NOT NULL DEFAULT '[]',
	warnings      TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_scans_vault ON scans(vault_id, started_at);
`

// DB wraps a sql.DB with gateway operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
