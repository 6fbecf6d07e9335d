package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stalvia/pricewatch/internal/apperr"
	"github.com/stalvia/pricewatch/internal/models"
)

// OpKind enumerates the write kinds a Commit accepts.
type OpKind int

const (
	// OpPut writes a full product row (new product).
	OpPut OpKind = iota
	// OpMerge rewrites the mutable product fields, preserving created_at.
	OpMerge
	// OpTouch updates only last_seen_at.
	OpTouch
	// OpHistory appends one price-history entry.
	OpHistory
)

// Op is a single write inside an atomic commit.
type Op struct {
	Kind    OpKind
	Key     string
	Product *models.StoredProduct
	SeenAt  time.Time
	Entry   *models.PriceHistoryEntry
}

// PutProduct builds an op that inserts a full product row.
func PutProduct(p models.StoredProduct) Op {
	return Op{Kind: OpPut, Key: p.Key, Product: &p}
}

// MergeProduct builds an op that rewrites the mutable fields of an existing
// product, keeping its created_at.
func MergeProduct(p models.StoredProduct) Op {
	return Op{Kind: OpMerge, Key: p.Key, Product: &p}
}

// TouchProduct builds an op that only refreshes a product's last_seen_at.
func TouchProduct(key string, seenAt time.Time) Op {
	return Op{Kind: OpTouch, Key: key, SeenAt: seenAt}
}

// AppendHistory builds an op that appends one history entry for key.
func AppendHistory(key string, entry models.PriceHistoryEntry) Op {
	return Op{Kind: OpHistory, Key: key, Entry: &entry}
}

func priceText(p *decimal.Decimal) any {
	if p == nil {
		return nil
	}
	return p.String()
}

func scanPrice(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, fmt.Errorf("store: corrupt price %q: %w", s.String, err)
	}
	return &d, nil
}

const productColumns = `key, source, display_name, brand, category_path, taxonomy_node_id,
	price, price_per_unit, unit, url, image_url, created_at, last_seen_at`

func scanProduct(row interface{ Scan(...any) error }) (models.StoredProduct, error) {
	var p models.StoredProduct
	var nodeID sql.NullString
	var price, ppu sql.NullString
	err := row.Scan(&p.Key, &p.Source, &p.DisplayName, &p.Brand, &p.CategoryPath, &nodeID,
		&price, &ppu, &p.Unit, &p.URL, &p.ImageURL, &p.CreatedAt, &p.LastSeenAt)
	if err != nil {
		return models.StoredProduct{}, err
	}
	p.TaxonomyNodeID = nodeID.String
	if p.Price, err = scanPrice(price); err != nil {
		return models.StoredProduct{}, err
	}
	if p.PricePerUnit, err = scanPrice(ppu); err != nil {
		return models.StoredProduct{}, err
	}
	return p, nil
}

// GetProducts bulk-reads the stored state for every key in one round trip.
// Missing keys are simply absent from the result map.
func (db *DB) GetProducts(ctx context.Context, keys []string) (map[string]models.StoredProduct, error) {
	out := make(map[string]models.StoredProduct, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := db.conn.QueryContext(ctx, `SELECT `+productColumns+`
		FROM products WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.Key] = p
	}
	return out, rows.Err()
}

// GetProduct returns a single stored product, or apperr.ErrNotFound.
func (db *DB) GetProduct(ctx context.Context, key string) (models.StoredProduct, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+productColumns+`
		FROM products WHERE key = ?`, key)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return models.StoredProduct{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.StoredProduct{}, fmt.Errorf("store: get product: %w", err)
	}
	return p, nil
}

// Commit applies every op in a single transaction: all writes land or none
// do. Batches larger than MaxBatchOps are rejected before any write.
func (db *DB) Commit(ctx context.Context, ops []Op) error {
	if len(ops) > db.maxBatchOps {
		return fmt.Errorf("store: batch of %d ops exceeds ceiling of %d", len(ops), db.maxBatchOps)
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	for _, op := range ops {
		if err := applyOp(tx, op); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func applyOp(tx *sql.Tx, op Op) error {
	switch op.Kind {
	case OpPut:
		p := op.Product
		_, err := tx.Exec(`
			INSERT INTO products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				source           = excluded.source,
				display_name     = excluded.display_name,
				brand            = excluded.brand,
				category_path    = excluded.category_path,
				taxonomy_node_id = excluded.taxonomy_node_id,
				price            = excluded.price,
				price_per_unit   = excluded.price_per_unit,
				unit             = excluded.unit,
				url              = excluded.url,
				image_url        = excluded.image_url,
				last_seen_at     = excluded.last_seen_at
		`, p.Key, p.Source, p.DisplayName, p.Brand, p.CategoryPath, nullStr(p.TaxonomyNodeID),
			priceText(p.Price), priceText(p.PricePerUnit), p.Unit, p.URL, p.ImageURL,
			p.CreatedAt, p.LastSeenAt)
		if err != nil {
			return fmt.Errorf("store: put product %s: %w", p.Key, err)
		}
		return ftsUpsert(tx, p.Key, p.DisplayName, p.Brand, p.Source)

	case OpMerge:
		p := op.Product
		_, err := tx.Exec(`
			UPDATE products SET
				source = ?, display_name = ?, brand = ?, category_path = ?,
				taxonomy_node_id = ?, price = ?, price_per_unit = ?, unit = ?,
				url = ?, image_url = ?, last_seen_at = ?
			WHERE key = ?
		`, p.Source, p.DisplayName, p.Brand, p.CategoryPath, nullStr(p.TaxonomyNodeID),
			priceText(p.Price), priceText(p.PricePerUnit), p.Unit, p.URL, p.ImageURL,
			p.LastSeenAt, p.Key)
		if err != nil {
			return fmt.Errorf("store: merge product %s: %w", p.Key, err)
		}
		return ftsUpsert(tx, p.Key, p.DisplayName, p.Brand, p.Source)

	case OpTouch:
		_, err := tx.Exec(`UPDATE products SET last_seen_at = ? WHERE key = ?`, op.SeenAt, op.Key)
		if err != nil {
			return fmt.Errorf("store: touch product %s: %w", op.Key, err)
		}
		return nil

	case OpHistory:
		_, err := tx.Exec(`INSERT INTO price_history (product_key, price, changed_at) VALUES (?, ?, ?)`,
			op.Key, priceText(op.Entry.Price), op.Entry.ChangedAt)
		if err != nil {
			return fmt.Errorf("store: append history %s: %w", op.Key, err)
		}
		return nil
	}
	return fmt.Errorf("store: unknown op kind %d", op.Kind)
}

// History returns the append-only price history for a key in change order.
func (db *DB) History(ctx context.Context, key string) ([]models.PriceHistoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT price, changed_at FROM price_history
		WHERE product_key = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var out []models.PriceHistoryEntry
	for rows.Next() {
		var e models.PriceHistoryEntry
		var price sql.NullString
		if err := rows.Scan(&price, &e.ChangedAt); err != nil {
			return nil, err
		}
		if e.Price, err = scanPrice(price); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HistoryCount returns the total number of history entries across all
// products. Used by ingestion idempotence checks and stats.
func (db *DB) HistoryCount(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM price_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: history count: %w", err)
	}
	return n, nil
}
