package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/stalvia/pricewatch/internal/apperr"
)

// MappingStatus is the review lifecycle state of a category mapping.
type MappingStatus string

const (
	StatusPending   MappingStatus = "pending"
	StatusAutomatic MappingStatus = "automatic"
	StatusConfirmed MappingStatus = "confirmed"
	StatusRejected  MappingStatus = "rejected"
)

// Valid reports whether s is one of the four lifecycle states.
func (s MappingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAutomatic, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// Mapping is one row linking a source's external category to (optionally)
// one taxonomy node. Rows are created lazily on first sight and never
// deleted; they form the review audit trail.
type Mapping struct {
	Source         string        `json:"source"`
	ExternalID     string        `json:"external_id"`
	ExternalName   string        `json:"external_name,omitempty"`
	ExternalParent string        `json:"external_parent,omitempty"`
	TaxonomyNodeID string        `json:"taxonomy_node_id,omitempty"`
	Status         MappingStatus `json:"status"`
	Confidence     *int          `json:"confidence,omitempty"`
	Notes          string        `json:"notes,omitempty"`
	LastReviewed   *time.Time    `json:"last_reviewed,omitempty"`
}

const mappingColumns = `source, external_id, external_name, external_parent,
	taxonomy_node_id, status, confidence, notes, last_reviewed`

func scanMapping(row interface{ Scan(...any) error }) (Mapping, error) {
	var m Mapping
	var nodeID sql.NullString
	var confidence sql.NullInt64
	var reviewed sql.NullTime
	err := row.Scan(&m.Source, &m.ExternalID, &m.ExternalName, &m.ExternalParent,
		&nodeID, &m.Status, &confidence, &m.Notes, &reviewed)
	if err != nil {
		return Mapping{}, err
	}
	m.TaxonomyNodeID = nodeID.String
	if confidence.Valid {
		c := int(confidence.Int64)
		m.Confidence = &c
	}
	if reviewed.Valid {
		t := reviewed.Time
		m.LastReviewed = &t
	}
	return m, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetMapping returns the mapping row for (source, externalID), or
// apperr.ErrNotFound.
func (db *DB) GetMapping(source, externalID string) (Mapping, error) {
	row := db.conn.QueryRow(`SELECT `+mappingColumns+`
		FROM category_mappings WHERE source = ? AND external_id = ?`, source, externalID)
	m, err := scanMapping(row)
	if err == sql.ErrNoRows {
		return Mapping{}, apperr.ErrNotFound
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("store: get mapping: %w", err)
	}
	return m, nil
}

// CreateMappingIfAbsent inserts m only when no row exists for its key, in a
// single conditional insert, so concurrent first-sight resolution of the
// same category cannot create duplicates. Returns true when the row was
// created, false when one already existed.
func (db *DB) CreateMappingIfAbsent(m Mapping) (bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO category_mappings
			(source, external_id, external_name, external_parent, taxonomy_node_id, status, confidence, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO NOTHING
	`, m.Source, m.ExternalID, m.ExternalName, m.ExternalParent,
		nullStr(m.TaxonomyNodeID), m.Status, m.Confidence, m.Notes)
	if err != nil {
		return false, fmt.Errorf("store: create mapping: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: create mapping: %w", err)
	}
	return n > 0, nil
}

// SetAutomaticMatch transitions a pending mapping to automatic with the
// given node and confidence. The status guard lives in the statement itself,
// so a concurrent review cannot be clobbered. Returns true when applied,
// false when the row was not in pending state (or absent).
func (db *DB) SetAutomaticMatch(source, externalID, nodeID string, confidence int) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE category_mappings
		SET taxonomy_node_id = ?, status = ?, confidence = ?
		WHERE source = ? AND external_id = ? AND status = ?
	`, nodeID, StatusAutomatic, confidence, source, externalID, StatusPending)
	if err != nil {
		return false, fmt.Errorf("store: set automatic match: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: set automatic match: %w", err)
	}
	return n > 0, nil
}

// SetReviewed applies a manual confirm/reject: status, node (may be empty
// for reject), notes, and the review timestamp. Manual review is always
// allowed regardless of the current state. Returns true when a row was
// updated.
func (db *DB) SetReviewed(source, externalID, nodeID string, status MappingStatus, notes string, reviewedAt time.Time) (bool, error) {
	res, err := db.conn.Exec(`
		UPDATE category_mappings
		SET taxonomy_node_id = ?, status = ?, notes = ?, last_reviewed = ?
		WHERE source = ? AND external_id = ?
	`, nullStr(nodeID), status, notes, reviewedAt, source, externalID)
	if err != nil {
		return false, fmt.Errorf("store: set reviewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: set reviewed: %w", err)
	}
	return n > 0, nil
}

// ListMappingsByStatus returns all mappings for a source in the given
// status, ordered by external id.
func (db *DB) ListMappingsByStatus(source string, status MappingStatus) ([]Mapping, error) {
	rows, err := db.conn.Query(`SELECT `+mappingColumns+`
		FROM category_mappings
		WHERE source = ? AND status = ?
		ORDER BY external_id`, source, status)
	if err != nil {
		return nil, fmt.Errorf("store: list mappings: %w", err)
	}
	defer rows.Close()

	var out []Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MappingStats returns per-status row counts for a source. Statuses with no
// rows are present with a zero count.
func (db *DB) MappingStats(source string) (map[MappingStatus]int, error) {
	out := map[MappingStatus]int{
		StatusPending:   0,
		StatusAutomatic: 0,
		StatusConfirmed: 0,
		StatusRejected:  0,
	}
	rows, err := db.conn.Query(`
		SELECT status, COUNT(*) FROM category_mappings
		WHERE source = ? GROUP BY status`, source)
	if err != nil {
		return nil, fmt.Errorf("store: mapping stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status MappingStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
