// Package mapping resolves per-source external category identifiers to
// shared taxonomy nodes through a four-state review lifecycle:
//
//	pending → automatic | confirmed | rejected
//	automatic → confirmed | rejected   (human override)
//
// Confirmed and rejected are terminal for automated calls; only manual
// review may still move between them.
package mapping

import (
	"errors"
	"fmt"
	"time"

	"github.com/stalvia/pricewatch/internal/apperr"
	"github.com/stalvia/pricewatch/internal/store"
	"github.com/stalvia/pricewatch/internal/taxonomy"
)

// Mapping is the review-lifecycle row linking one source category to
// (optionally) one taxonomy node.
type Mapping = store.Mapping

// Mapper coordinates the mapping table with the taxonomy it maps into.
type Mapper struct {
	db  *store.DB
	tax *taxonomy.Store
}

// New creates a Mapper over the given store and taxonomy.
func New(db *store.DB, tax *taxonomy.Store) *Mapper {
	return &Mapper{db: db, tax: tax}
}

// Resolve returns the mapping row for (source, externalID), creating a
// pending row with no taxonomy node on first sight. Existing rows are
// returned unchanged; repeated calls never create duplicates and never
// downgrade a status.
func (m *Mapper) Resolve(source, externalID, externalName, externalParent string) (Mapping, error) {
	if source == "" || externalID == "" {
		return Mapping{}, fmt.Errorf("mapping: source and external id are required")
	}
	if _, err := m.db.CreateMappingIfAbsent(Mapping{
		Source:         source,
		ExternalID:     externalID,
		ExternalName:   externalName,
		ExternalParent: externalParent,
		Status:         store.StatusPending,
	}); err != nil {
		return Mapping{}, err
	}
	return m.db.GetMapping(source, externalID)
}

// ApplyAutomaticMatch records a matcher's suggestion on a pending mapping.
// Confidence is a 0-100 score. The call fails with ErrInvalidTaxonomyRef
// when the node does not exist and with ErrConflict when the mapping has
// already been reviewed (or automatically matched); human review work is
// never clobbered by automation.
func (m *Mapper) ApplyAutomaticMatch(source, externalID, nodeID string, confidence int) (Mapping, error) {
	if confidence < 0 || confidence > 100 {
		return Mapping{}, fmt.Errorf("mapping: confidence %d out of range [0,100]", confidence)
	}
	if err := m.checkNode(nodeID); err != nil {
		return Mapping{}, err
	}
	applied, err := m.db.SetAutomaticMatch(source, externalID, nodeID, confidence)
	if err != nil {
		return Mapping{}, err
	}
	if !applied {
		cur, getErr := m.db.GetMapping(source, externalID)
		if getErr != nil {
			return Mapping{}, getErr
		}
		return cur, fmt.Errorf("mapping %s/%s is %s: %w", source, externalID, cur.Status, apperr.ErrConflict)
	}
	return m.db.GetMapping(source, externalID)
}

// Confirm manually assigns a taxonomy node to a mapping. Always allowed,
// whatever the current status.
func (m *Mapper) Confirm(source, externalID, nodeID, notes string) (Mapping, error) {
	if err := m.checkNode(nodeID); err != nil {
		return Mapping{}, err
	}
	return m.review(source, externalID, nodeID, store.StatusConfirmed, notes)
}

// Reject manually marks a mapping as unmappable and clears its node.
// Always allowed, whatever the current status.
func (m *Mapper) Reject(source, externalID, notes string) (Mapping, error) {
	return m.review(source, externalID, "", store.StatusRejected, notes)
}

func (m *Mapper) review(source, externalID, nodeID string, status store.MappingStatus, notes string) (Mapping, error) {
	updated, err := m.db.SetReviewed(source, externalID, nodeID, status, notes, time.Now().UTC())
	if err != nil {
		return Mapping{}, err
	}
	if !updated {
		return Mapping{}, fmt.Errorf("mapping %s/%s: %w", source, externalID, apperr.ErrNotFound)
	}
	return m.db.GetMapping(source, externalID)
}

// Get returns one mapping row without creating it.
func (m *Mapper) Get(source, externalID string) (Mapping, error) {
	return m.db.GetMapping(source, externalID)
}

// ListByStatus returns every mapping of a source in the given status.
func (m *Mapper) ListByStatus(source string, status store.MappingStatus) ([]Mapping, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("mapping: unknown status %q", status)
	}
	return m.db.ListMappingsByStatus(source, status)
}

// Stats returns per-status mapping counts for a source.
func (m *Mapper) Stats(source string) (map[store.MappingStatus]int, error) {
	return m.db.MappingStats(source)
}

func (m *Mapper) checkNode(nodeID string) error {
	if nodeID == "" {
		return fmt.Errorf("mapping: taxonomy node id is required: %w", apperr.ErrInvalidTaxonomyRef)
	}
	if _, err := m.tax.Lookup(nodeID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("mapping: taxonomy node %q: %w", nodeID, apperr.ErrInvalidTaxonomyRef)
		}
		return err
	}
	return nil
}
