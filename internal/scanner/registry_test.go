package scanner

import (
	"context"
	"testing"

	"github.com/evosec/cloudscan/internal/compliance"
	"github.com/evosec/cloudscan/internal/models"
)

// stubScanner is a minimal Scanner for registry tests.
type stubScanner struct {
	id     string
	checks []Check
}

func (s *stubScanner) ID() string      { return s.id }
func (s *stubScanner) Checks() []Check { return s.checks }
func (s *stubScanner) Scan(context.Context, *Context) ([]models.Finding, error) {
	return nil, nil
}

func testTable() *compliance.Table {
	return compliance.NewTable(map[string][]models.ControlRef{
		"A_ONE": {{Framework: compliance.FrameworkCIS, ControlID: "1.1"}},
		"A_TWO": {},
		"B_ONE": {{Framework: compliance.FrameworkNIST, ControlID: "AC-3"}},
	})
}

func TestRegistry_RegisterAndSelect(t *testing.T) {
	r := NewRegistry(testTable())
	r.Register(&stubScanner{id: "alpha", checks: []Check{{ID: "A_ONE"}, {ID: "A_TWO"}}})
	r.Register(&stubScanner{id: "beta", checks: []Check{{ID: "B_ONE"}}})

	if len(r.All()) != 2 {
		t.Fatalf("All() = %d scanners; want 2", len(r.All()))
	}

	sel := r.Select([]string{"beta"})
	if len(sel) != 1 || sel[0].ID() != "beta" {
		t.Errorf("Select(beta) = %v", sel)
	}

	// Selection preserves registration order regardless of the id order given.
	sel = r.Select([]string{"beta", "alpha"})
	if len(sel) != 2 || sel[0].ID() != "alpha" {
		t.Errorf("Select must preserve registration order, got %v, %v", sel[0].ID(), sel[1].ID())
	}
}

func TestRegistry_DuplicateScannerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("want panic on duplicate scanner id")
		}
	}()
	r := NewRegistry(testTable())
	r.Register(&stubScanner{id: "alpha", checks: []Check{{ID: "A_ONE"}}})
	r.Register(&stubScanner{id: "alpha", checks: []Check{{ID: "B_ONE"}}})
}

func TestRegistry_UnmappedCheckPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("want panic when a check id is missing from the compliance table")
		}
	}()
	r := NewRegistry(testTable())
	r.Register(&stubScanner{id: "alpha", checks: []Check{{ID: "NOT_IN_TABLE"}}})
}

func TestRegistry_DuplicateCheckAcrossScannersPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("want panic when two scanners declare the same check id")
		}
	}()
	r := NewRegistry(testTable())
	r.Register(&stubScanner{id: "alpha", checks: []Check{{ID: "A_ONE"}}})
	r.Register(&stubScanner{id: "beta", checks: []Check{{ID: "A_ONE"}}})
}

// TestRegistry_EmptyMappingAllowed verifies that a check mapping to zero
// frameworks still registers: the id must exist in the table, the ref set may
// be empty.
func TestRegistry_EmptyMappingAllowed(t *testing.T) {
	r := NewRegistry(testTable())
	r.Register(&stubScanner{id: "alpha", checks: []Check{{ID: "A_TWO"}}})
	if len(r.CheckIDs()) != 1 {
		t.Errorf("CheckIDs() = %v; want [A_TWO]", r.CheckIDs())
	}
}
