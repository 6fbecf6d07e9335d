// Package models defines the domain types shared across the ingestion core.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalProduct is the normalized, source-agnostic representation of one
// scraped item. It is produced per scrape cycle and superseded by the next
// scrape of the same product.
type CanonicalProduct struct {
	// ID is "<source>_<external product id>", unique across all sources.
	ID             string           `json:"id"`
	Source         string           `json:"source"`
	DisplayName    string           `json:"display_name"`
	Brand          string           `json:"brand,omitempty"`
	CategoryPath   string           `json:"category_path,omitempty"`
	TaxonomyNodeID string           `json:"taxonomy_node_id,omitempty"`
	Price          *decimal.Decimal `json:"price"`
	PricePerUnit   *decimal.Decimal `json:"price_per_unit,omitempty"`
	Unit           string           `json:"unit,omitempty"`
	URL            string           `json:"url,omitempty"`
	ImageURL       string           `json:"image_url,omitempty"`
}

// StoredProduct is the persistent superset of CanonicalProduct. Its price
// history is append-only and exclusively owned by the ingestion engine.
type StoredProduct struct {
	Key            string           `json:"key"`
	Source         string           `json:"source"`
	DisplayName    string           `json:"display_name"`
	Brand          string           `json:"brand,omitempty"`
	CategoryPath   string           `json:"category_path,omitempty"`
	TaxonomyNodeID string           `json:"taxonomy_node_id,omitempty"`
	Price          *decimal.Decimal `json:"price"`
	PricePerUnit   *decimal.Decimal `json:"price_per_unit,omitempty"`
	Unit           string           `json:"unit,omitempty"`
	URL            string           `json:"url,omitempty"`
	ImageURL       string           `json:"image_url,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	LastSeenAt     time.Time        `json:"last_seen_at"`
}

// PriceHistoryEntry records the price a product had *before* a change was
// observed. A nil Price means the product previously had no known price.
type PriceHistoryEntry struct {
	Price     *decimal.Decimal `json:"price"`
	ChangedAt time.Time        `json:"changed_at"`
}

// PriceChanged reports whether the observed price differs from the stored
// one. A previously unknown price is always considered changed when a price
// appears (and vice versa); otherwise prices are compared numerically, never
// by representation, so "3.5" and "3.50" are the same price.
func PriceChanged(stored, observed *decimal.Decimal) bool {
	if stored == nil && observed == nil {
		return false
	}
	if stored == nil || observed == nil {
		return true
	}
	return !stored.Equal(*observed)
}
