package scanner

import (
	"fmt"

	"github.com/evosec/cloudscan/internal/compliance"
)

// Registry is the ordered, in-memory set of service scanners. Registration
// panics on wiring mistakes — duplicate scanner ids, duplicate check ids, or
// a check id missing from the compliance table — so a bad catalog can never
// reach a production scan.
type Registry struct {
	table    *compliance.Table
	scanners []Scanner
	byID     map[string]Scanner
	checkIDs map[string]string // check id → owning scanner id
}

// NewRegistry returns an empty registry validating against table.
func NewRegistry(table *compliance.Table) *Registry {
	return &Registry{
		table:    table,
		byID:     make(map[string]Scanner),
		checkIDs: make(map[string]string),
	}
}

// Register adds s to the registry, validating its whole check catalog.
func (r *Registry) Register(s Scanner) {
	if _, exists := r.byID[s.ID()]; exists {
		panic(fmt.Sprintf("duplicate scanner ID: %q", s.ID()))
	}
	for _, c := range s.Checks() {
		if owner, exists := r.checkIDs[c.ID]; exists {
			panic(fmt.Sprintf("check ID %q declared by both %q and %q", c.ID, owner, s.ID()))
		}
		if !r.table.Has(c.ID) {
			panic(fmt.Sprintf("check ID %q (scanner %q) is not registered in the compliance table", c.ID, s.ID()))
		}
		r.checkIDs[c.ID] = s.ID()
	}
	r.scanners = append(r.scanners, s)
	r.byID[s.ID()] = s
}

// All returns every registered scanner in registration order.
func (r *Registry) All() []Scanner {
	return r.scanners
}

// Select returns the scanners whose ids appear in ids, in registration order.
// Unknown ids are ignored; level resolution owns the id lists.
func (r *Registry) Select(ids []string) []Scanner {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []Scanner
	for _, s := range r.scanners {
		if _, ok := want[s.ID()]; ok {
			out = append(out, s)
		}
	}
	return out
}

// CheckIDs returns every registered check id. Used by compliance
// completeness tests.
func (r *Registry) CheckIDs() []string {
	ids := make([]string, 0, len(r.checkIDs))
	for _, s := range r.scanners {
		for _, c := range s.Checks() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
