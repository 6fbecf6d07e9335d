//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stalvia/pricewatch/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS products_fts USING fts5(
			key UNINDEXED,
			name,
			brand,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, key, name, brand, _ string) error {
	_, _ = tx.Exec(`DELETE FROM products_fts WHERE key = ?`, key)
	_, err := tx.Exec(`INSERT INTO products_fts (key, name, brand) VALUES (?, ?, ?)`,
		key, name, brand)
	if err != nil {
		return fmt.Errorf("store: upsert fts: %w", err)
	}
	return nil
}

// SearchProducts performs an FTS5 search over product names and brands and
// returns the matching stored products, best match first.
func (db *DB) SearchProducts(ctx context.Context, query string, limit int) ([]models.StoredProduct, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT key FROM products_fts
		WHERE products_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search products: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byKey, err := db.GetProducts(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]models.StoredProduct, 0, len(keys))
	for _, k := range keys {
		if p, ok := byKey[k]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
