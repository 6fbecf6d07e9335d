// Package normalize converts source-specific raw products and categories
// into canonical product records, resolving categories through the mapper.
package normalize

import (
	"fmt"

	"github.com/stalvia/pricewatch/internal/mapping"
	"github.com/stalvia/pricewatch/internal/models"
	"github.com/stalvia/pricewatch/internal/parser"
)

// RawProduct is the loosely-typed product shape at the scraper boundary.
// Each per-source scraper maps its own payload into these fields; adding a
// new source never changes this contract. Price-like fields stay `any`
// because sources disagree on numbers vs formatted strings.
type RawProduct struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Brand        string `json:"brand,omitempty"`
	Price        any    `json:"price,omitempty"`
	PricePerUnit any    `json:"price_per_unit,omitempty"`
	Unit         string `json:"unit,omitempty"`
	URL          string `json:"url,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
}

// RawCategory is the loosely-typed category shape at the scraper boundary.
type RawCategory struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	ParentName string `json:"parent_name,omitempty"`
}

// Discard reason codes accumulated in scrape-run statistics.
const (
	ReasonMissingID   = "missing_id"
	ReasonMissingName = "missing_name"
	ReasonBadPrice    = "bad_price"
)

// DiscardError reports that a raw record was skipped, and why. It is a
// normal per-record outcome, never a failure of the run.
type DiscardError struct {
	Reason string
}

func (e *DiscardError) Error() string {
	return "discarded: " + e.Reason
}

// RunStats accumulates the outcome of one scrape run. BadPrice counts
// products whose price field could not be parsed but which were still
// normalized (with a nil price).
type RunStats struct {
	Normalized int            `json:"normalized"`
	Discarded  map[string]int `json:"discarded,omitempty"`
	BadPrice   int            `json:"bad_price,omitempty"`
}

func (s *RunStats) discard(reason string) {
	if s.Discarded == nil {
		s.Discarded = make(map[string]int)
	}
	s.Discarded[reason]++
}

// DiscardedTotal returns the number of records skipped across all reasons.
func (s *RunStats) DiscardedTotal() int {
	n := 0
	for _, c := range s.Discarded {
		n += c
	}
	return n
}

// Normalizer builds canonical products from raw scrape output. It is safe
// for concurrent use; per-run state lives in the caller's RunStats.
type Normalizer struct {
	mapper   *mapping.Mapper
	baseURLs map[string]string
}

// New creates a Normalizer. baseURLs maps source name to the base URL used
// to absolutize relative product links; it may be nil.
func New(m *mapping.Mapper, baseURLs map[string]string) *Normalizer {
	return &Normalizer{mapper: m, baseURLs: baseURLs}
}

// Normalize converts one raw product (+ its raw category) into a canonical
// record. A record without a usable identifier or display name is discarded
// (*DiscardError); an unparseable price yields a nil price, not a discard.
// The category is resolved through the mapper, lazily registering unseen
// categories as pending, and the resulting taxonomy node (possibly none) is
// copied onto the record. stats may be nil.
func (n *Normalizer) Normalize(source string, rp RawProduct, rc RawCategory, stats *RunStats) (*models.CanonicalProduct, error) {
	if stats == nil {
		stats = &RunStats{}
	}
	id := parser.Clean(rp.ID)
	if id == "" {
		stats.discard(ReasonMissingID)
		return nil, &DiscardError{Reason: ReasonMissingID}
	}
	name := parser.Clean(rp.Name)
	if name == "" {
		stats.discard(ReasonMissingName)
		return nil, &DiscardError{Reason: ReasonMissingName}
	}

	price := parser.Price(rp.Price)
	if price == nil && rp.Price != nil {
		stats.BadPrice++
	}

	p := &models.CanonicalProduct{
		ID:           fmt.Sprintf("%s_%s", source, id),
		Source:       source,
		DisplayName:  name,
		Brand:        parser.Clean(rp.Brand),
		Price:        price,
		PricePerUnit: parser.Price(rp.PricePerUnit),
		Unit:         parser.Clean(rp.Unit),
		URL:          parser.AbsoluteURL(rp.URL, n.baseURLs[source]),
		ImageURL:     parser.AbsoluteURL(rp.ImageURL, n.baseURLs[source]),
	}

	if catID := parser.Clean(rc.ID); catID != "" {
		m, err := n.mapper.Resolve(source, catID, parser.Clean(rc.Name), parser.Clean(rc.ParentName))
		if err != nil {
			return nil, fmt.Errorf("normalize: resolve category %s/%s: %w", source, catID, err)
		}
		p.TaxonomyNodeID = m.TaxonomyNodeID
		p.CategoryPath = categoryPath(rc)
	}

	stats.Normalized++
	return p, nil
}

// categoryPath renders the source's own human-readable category path.
func categoryPath(rc RawCategory) string {
	parent := parser.Clean(rc.ParentName)
	name := parser.Clean(rc.Name)
	switch {
	case parent != "" && name != "":
		return parent + " > " + name
	case name != "":
		return name
	default:
		return parent
	}
}
