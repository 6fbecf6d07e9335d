// Package ingest reconciles batches of canonical products against the
// persistent product store: new products are inserted, price changes append
// one history entry carrying the previous price, and everything else only
// refreshes its freshness marker.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stalvia/pricewatch/internal/models"
	"github.com/stalvia/pricewatch/internal/store"
)

// writesPerRecord is the worst case per record inside one commit: a product
// write plus an optional history append.
const writesPerRecord = 2

// Result reports the outcome of one Ingest call. When an error is returned
// alongside it, Processed tells how many records landed in committed chunks
// before the failure; earlier chunks are never rolled back.
type Result struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Dropped   int `json:"dropped,omitempty"`
	Processed int `json:"-"`
}

// Count returns the number of records accounted for in the counters.
func (r Result) Count() int {
	return r.New + r.Updated + r.Unchanged
}

// Engine is the sole writer of the product store and its price history.
type Engine struct {
	backend store.ProductBackend
}

// New creates an Engine over the given backend.
func New(backend store.ProductBackend) *Engine {
	return &Engine{backend: backend}
}

// SafeKey derives the storage key for a product identifier. The backend
// forbids the path separator in keys, so every "/" becomes "_"; an
// identifier that is blank, or all separators, has no usable key and yields
// "". Distinct identifiers that sanitize to the same key are deliberately
// treated as the same stored product.
func SafeKey(id string) string {
	key := strings.ReplaceAll(strings.TrimSpace(id), "/", "_")
	if strings.Trim(key, "_") == "" {
		return ""
	}
	return key
}

type record struct {
	key string
	p   models.CanonicalProduct
}

// Ingest upserts a batch of canonical products. Records without a usable
// key are dropped; duplicates of one key within the batch collapse to the
// last observation, counted once. The batch is processed in sequential
// chunks sized so each chunk's writes fit in one atomic commit; per-record
// product write and history append always share a commit, so no observer
// can see one without the other. A chunk failure stops the run and is
// reported with the records processed so far; committed chunks stay
// committed. Re-running an unchanged batch reports everything unchanged and
// appends no history.
func (e *Engine) Ingest(ctx context.Context, batch []models.CanonicalProduct) (Result, error) {
	var res Result

	seen := make(map[string]int, len(batch))
	records := make([]record, 0, len(batch))
	for _, p := range batch {
		key := SafeKey(p.ID)
		if key == "" {
			res.Dropped++
			continue
		}
		if i, ok := seen[key]; ok {
			records[i].p = p
			continue
		}
		seen[key] = len(records)
		records = append(records, record{key: key, p: p})
	}

	chunkSize := e.backend.MaxBatchOps() / writesPerRecord
	if chunkSize < 1 {
		chunkSize = 1
	}

	for start := 0; start < len(records); start += chunkSize {
		end := min(start+chunkSize, len(records))
		chunk := records[start:end]

		keys := make([]string, len(chunk))
		for i, r := range chunk {
			keys[i] = r.key
		}
		stored, err := e.backend.GetProducts(ctx, keys)
		if err != nil {
			return res, fmt.Errorf("ingest: read chunk after %d records: %w", res.Processed, err)
		}

		now := time.Now().UTC()
		ops := make([]store.Op, 0, len(chunk)*writesPerRecord)
		var created, updated, unchanged int
		for _, r := range chunk {
			prev, exists := stored[r.key]
			switch {
			case !exists:
				ops = append(ops, store.PutProduct(storedFrom(r.key, r.p, now, now)))
				created++
			case models.PriceChanged(prev.Price, r.p.Price):
				ops = append(ops,
					store.MergeProduct(storedFrom(r.key, r.p, prev.CreatedAt, now)),
					store.AppendHistory(r.key, models.PriceHistoryEntry{
						Price:     prev.Price,
						ChangedAt: now,
					}))
				updated++
			default:
				ops = append(ops, store.TouchProduct(r.key, now))
				unchanged++
			}
		}

		if err := e.backend.Commit(ctx, ops); err != nil {
			return res, fmt.Errorf("ingest: commit chunk after %d records: %w", res.Processed, err)
		}
		res.New += created
		res.Updated += updated
		res.Unchanged += unchanged
		res.Processed += len(chunk)
	}

	return res, nil
}

func storedFrom(key string, p models.CanonicalProduct, createdAt, seenAt time.Time) models.StoredProduct {
	return models.StoredProduct{
		Key:            key,
		Source:         p.Source,
		DisplayName:    p.DisplayName,
		Brand:          p.Brand,
		CategoryPath:   p.CategoryPath,
		TaxonomyNodeID: p.TaxonomyNodeID,
		Price:          p.Price,
		PricePerUnit:   p.PricePerUnit,
		Unit:           p.Unit,
		URL:            p.URL,
		ImageURL:       p.ImageURL,
		CreatedAt:      createdAt,
		LastSeenAt:     seenAt,
	}
}
