// Package store provides SQLite-backed persistence for category mappings,
// products, and the append-only price history, with optional FTS5 product
// search.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stalvia/pricewatch/internal/models"
)

// DefaultMaxBatchOps mirrors the atomic-commit ceiling of the original
// storage backend: no more than 500 writes per commit.
const DefaultMaxBatchOps = 500

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS category_mappings (
	source          TEXT NOT NULL,
	external_id     TEXT NOT NULL,
	external_name   TEXT NOT NULL DEFAULT '',
	external_parent TEXT NOT NULL DEFAULT '',
	taxonomy_node_id TEXT,
	status          TEXT NOT NULL DEFAULT 'pending',
	confidence      INTEGER,
	notes           TEXT NOT NULL DEFAULT '',
	last_reviewed   DATETIME,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_mappings_status ON category_mappings(source, status);

CREATE TABLE IF NOT EXISTS products (
	key              TEXT PRIMARY KEY,
	source           TEXT NOT NULL DEFAULT '',
	display_name     TEXT NOT NULL DEFAULT '',
	brand            TEXT NOT NULL DEFAULT '',
	category_path    TEXT NOT NULL DEFAULT '',
	taxonomy_node_id TEXT,
	price            TEXT,
	price_per_unit   TEXT,
	unit             TEXT NOT NULL DEFAULT '',
	url              TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	last_seen_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_products_source ON products(source);

CREATE TABLE IF NOT EXISTS price_history (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_key TEXT NOT NULL,
	price       TEXT,
	changed_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_product ON price_history(product_key, seq);
`

// ProductBackend is the storage contract the ingestion engine depends on:
// one bulk read per chunk, and writes applied entirely or not at all in a
// single commit bounded by MaxBatchOps.
type ProductBackend interface {
	GetProducts(ctx context.Context, keys []string) (map[string]models.StoredProduct, error)
	Commit(ctx context.Context, ops []Op) error
	MaxBatchOps() int
}

// Verify *DB satisfies ProductBackend at compile time.
var _ ProductBackend = (*DB)(nil)

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	conn        *sql.DB
	maxBatchOps int
}

// Open opens (or creates) the SQLite database and applies the schema.
// maxBatchOps bounds the number of writes per Commit; values <= 0 fall back
// to DefaultMaxBatchOps.
func Open(dsn string, maxBatchOps int) (*DB, error) {
	if maxBatchOps <= 0 {
		maxBatchOps = DefaultMaxBatchOps
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn, maxBatchOps: maxBatchOps}, nil
}

// MaxBatchOps returns the per-commit write ceiling.
func (db *DB) MaxBatchOps() int {
	return db.maxBatchOps
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
