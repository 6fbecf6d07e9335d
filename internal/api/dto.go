package api

import (
	"github.com/stalvia/pricewatch/internal/ingest"
	"github.com/stalvia/pricewatch/internal/normalize"
)

// IngestRequest is the request body for POST /ingest: a bounded list of
// canonical product records.
type IngestRequest struct {
	Products []ProductPayload `json:"products"`
}

// ProductPayload mirrors models.CanonicalProduct but keeps the price fields
// loosely typed so clients may send numbers or formatted strings.
type ProductPayload struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	DisplayName  string `json:"display_name"`
	Brand        string `json:"brand"`
	CategoryPath string `json:"category_path"`
	// TaxonomyNodeID may be empty: unresolved categories are ingestable.
	TaxonomyNodeID string `json:"taxonomy_node_id"`
	Price          any    `json:"price"`
	PricePerUnit   any    `json:"price_per_unit"`
	Unit           string `json:"unit"`
	URL            string `json:"url"`
	ImageURL       string `json:"image_url"`
}

// IngestResponse reports the outcome of an ingest run.
type IngestResponse struct {
	OK        bool `json:"ok"`
	Count     int  `json:"count"`
	New       int  `json:"new"`
	Updated   int  `json:"updated"`
	Unchanged int  `json:"unchanged"`
	Dropped   int  `json:"dropped,omitempty"`
}

func ingestResponse(res ingest.Result) IngestResponse {
	return IngestResponse{
		OK:        true,
		Count:     res.Count(),
		New:       res.New,
		Updated:   res.Updated,
		Unchanged: res.Unchanged,
		Dropped:   res.Dropped,
	}
}

// RawItem pairs one raw product with its raw category, as produced by a
// per-source scraper.
type RawItem struct {
	Product  normalize.RawProduct  `json:"product"`
	Category normalize.RawCategory `json:"category"`
}

// IngestRawRequest is the request body for POST /ingest/raw.
type IngestRawRequest struct {
	Source string    `json:"source"`
	Items  []RawItem `json:"items"`
}

// IngestRawResponse extends the ingest outcome with normalization stats.
type IngestRawResponse struct {
	IngestResponse
	Skipped  map[string]int `json:"skipped,omitempty"`
	BadPrice int            `json:"bad_price,omitempty"`
}

// ReviewRequest is the request body for the manual confirm/reject
// operations and the automatic-match endpoint.
type ReviewRequest struct {
	Source         string `json:"source"`
	ExternalID     string `json:"external_id"`
	TaxonomyNodeID string `json:"taxonomy_node_id"`
	Confidence     int    `json:"confidence"`
	Notes          string `json:"notes"`
}
