// Package taxonomy holds the shared hierarchical category tree. The tree is
// authored externally, loaded at process start, and read-only from the
// ingestion core's perspective.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stalvia/pricewatch/internal/apperr"
)

// Node is one category of the shared taxonomy. IDs are stable dotted codes
// (e.g. "aceites.aceites"); Depth is derived from the parent chain, 0 for
// roots.
type Node struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	ParentID    string   `json:"parent_id,omitempty" yaml:"parent_id"`
	Depth       int      `json:"depth" yaml:"-"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords"`
	NeedsReview bool     `json:"needs_review,omitempty" yaml:"needs_review"`
}

// snapshot is one immutable, validated view of the tree.
type snapshot struct {
	nodes    map[string]Node
	children map[string][]string
	roots    []string
}

// Store provides concurrent read access to the taxonomy. Replace swaps the
// whole tree atomically, so readers never observe a half-loaded state.
type Store struct {
	mu   sync.RWMutex
	snap *snapshot
}

// New builds a Store from a flat node list, validating the tree invariants:
// unique IDs, existing parents, no cycles. Depth is computed, never trusted.
func New(nodes []Node) (*Store, error) {
	snap, err := build(nodes)
	if err != nil {
		return nil, err
	}
	return &Store{snap: snap}, nil
}

// Replace atomically swaps the tree for a new node set. On validation
// failure the previous tree stays in place.
func (s *Store) Replace(nodes []Node) error {
	snap, err := build(nodes)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	return nil
}

func build(nodes []Node) (*snapshot, error) {
	snap := &snapshot{
		nodes:    make(map[string]Node, len(nodes)),
		children: make(map[string][]string),
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("taxonomy: node with empty id (name %q)", n.Name)
		}
		if _, dup := snap.nodes[n.ID]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate node id %q", n.ID)
		}
		snap.nodes[n.ID] = n
	}
	for id, n := range snap.nodes {
		if n.ParentID == "" {
			snap.roots = append(snap.roots, id)
			continue
		}
		if _, ok := snap.nodes[n.ParentID]; !ok {
			return nil, fmt.Errorf("taxonomy: node %q references unknown parent %q", id, n.ParentID)
		}
		snap.children[n.ParentID] = append(snap.children[n.ParentID], id)
	}
	sort.Strings(snap.roots)
	for _, ids := range snap.children {
		sort.Strings(ids)
	}
	// Compute depth by walking parent chains; a chain longer than the node
	// count means the parent graph has a cycle.
	for id := range snap.nodes {
		depth := 0
		cur := snap.nodes[id]
		for cur.ParentID != "" {
			depth++
			if depth > len(snap.nodes) {
				return nil, fmt.Errorf("taxonomy: cycle in parent chain of %q", id)
			}
			cur = snap.nodes[cur.ParentID]
		}
		n := snap.nodes[id]
		n.Depth = depth
		snap.nodes[id] = n
	}
	return snap, nil
}

func (s *Store) view() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Lookup returns the node with the given id, or apperr.ErrNotFound.
func (s *Store) Lookup(id string) (Node, error) {
	n, ok := s.view().nodes[id]
	if !ok {
		return Node{}, apperr.ErrNotFound
	}
	return n, nil
}

// Children returns the direct children of id, sorted by id. An unknown id
// yields an empty slice, same as a leaf.
func (s *Store) Children(id string) []Node {
	snap := s.view()
	ids := snap.children[id]
	out := make([]Node, 0, len(ids))
	for _, c := range ids {
		out = append(out, snap.nodes[c])
	}
	return out
}

// Roots returns the depth-0 nodes, sorted by id.
func (s *Store) Roots() []Node {
	snap := s.view()
	out := make([]Node, 0, len(snap.roots))
	for _, id := range snap.roots {
		out = append(out, snap.nodes[id])
	}
	return out
}

// All returns every node, sorted by id.
func (s *Store) All() []Node {
	snap := s.view()
	ids := make([]string, 0, len(snap.nodes))
	for id := range snap.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, snap.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	return len(s.view().nodes)
}

// Path returns the human-readable path of a node, e.g. "Lácteos > Leche",
// or "" for an unknown id.
func (s *Store) Path(id string) string {
	snap := s.view()
	n, ok := snap.nodes[id]
	if !ok {
		return ""
	}
	parts := []string{n.Name}
	for n.ParentID != "" {
		n = snap.nodes[n.ParentID]
		parts = append([]string{n.Name}, parts...)
	}
	return strings.Join(parts, " > ")
}

// Match is a scored search hit.
type Match struct {
	Node  Node
	Score float64
}

// Search returns nodes matching query by name or keyword, best first.
// Exact name matches rank above keyword matches, which rank above
// substring matches.
func (s *Store) Search(query string, limit int) []Match {
	if limit <= 0 {
		limit = 5
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Match
	for _, n := range s.view().nodes {
		if score := matchScore(q, n); score > 0 {
			out = append(out, Match{Node: n, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchScore(q string, n Node) float64 {
	name := strings.ToLower(n.Name)
	if q == name {
		return 1.0
	}
	score := 0.0
	if strings.Contains(name, q) {
		score = 0.8
	}
	for _, kw := range n.Keywords {
		kw = strings.ToLower(kw)
		switch {
		case q == kw:
			score = max(score, 0.9)
		case strings.Contains(kw, q) || strings.Contains(q, kw):
			score = max(score, 0.6)
		}
	}
	return score
}
