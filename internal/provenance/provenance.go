// Package provenance implements Phase 7: binding every token emitted in
// Phase 4/5 to (page_id, bbox, byte_range, parser_id), and computing the
// provenance_completeness quality gate metric.
package provenance

import (
	"fmt"
	"sort"
)

// BBox mirrors parser.BBox without importing it, keeping provenance
// independent of the parser package's own evolution.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// Binding is one token's provenance record.
type Binding struct {
	TokenID   string
	PageID    int
	BBox      BBox
	ByteStart int64
	ByteEnd   int64
	ParserID  string
}

// Map is the full provenance index: token id → binding.
type Map struct {
	Bindings map[string]Binding
}

// NewMap builds an empty Map.
func NewMap() *Map {
	return &Map{Bindings: make(map[string]Binding)}
}

// Bind records a binding, rejecting duplicate token ids with conflicting
// byte ranges (a genuine duplicate binding of the same token to the same
// range is idempotent).
func (m *Map) Bind(b Binding) error {
	if existing, ok := m.Bindings[b.TokenID]; ok {
		if existing != b {
			return fmt.Errorf("provenance: token %q already bound to a different range", b.TokenID)
		}
		return nil
	}
	m.Bindings[b.TokenID] = b
	return nil
}

// Completeness computes the provenance_completeness quality gate metric:
// the fraction of expected token ids that have a binding. Gate requires
// exactly 1.0.
func (m *Map) Completeness(expectedTokenIDs []string) float64 {
	if len(expectedTokenIDs) == 0 {
		return 1.0
	}
	bound := 0
	for _, id := range expectedTokenIDs {
		if _, ok := m.Bindings[id]; ok {
			bound++
		}
	}
	return float64(bound) / float64(len(expectedTokenIDs))
}

// SortedTokenIDs returns the bound token ids in sorted order, for callers
// that must iterate the map deterministically (serialization, columnar
// export).
func (m *Map) SortedTokenIDs() []string {
	ids := make([]string, 0, len(m.Bindings))
	for id := range m.Bindings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
