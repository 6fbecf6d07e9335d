//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stalvia/pricewatch/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; product search uses a LIKE fallback on the
	// products table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error {
	// Name and brand already live in the products table; nothing extra to do.
	return nil
}

// SearchProducts performs a LIKE-based search over product names and brands
// (fallback when FTS5 is not compiled in).
func (db *DB) SearchProducts(ctx context.Context, query string, limit int) ([]models.StoredProduct, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `SELECT `+productColumns+`
		FROM products
		WHERE display_name LIKE ? OR brand LIKE ?
		ORDER BY display_name
		LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search products: %w", err)
	}
	defer rows.Close()

	var out []models.StoredProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
