package scanners_test

import (
	"testing"

	"github.com/evosec/cloudscan/internal/compliance"
	"github.com/evosec/cloudscan/internal/scanners"
)

func TestDefaultCatalog(t *testing.T) {
	table := compliance.NewDefaultTable()

	// Register panics on duplicate or unmapped check ids, so constructing
	// the default registry exercises most of the validation already.
	reg := scanners.Default(table)

	if got, want := len(reg.All()), 25; got != want {
		t.Fatalf("registered %d scanners, want %d", got, want)
	}

	ids := reg.CheckIDs()
	if len(ids) != table.Size() {
		t.Errorf("registry declares %d checks, compliance table maps %d; every table entry must have an owning scanner", len(ids), table.Size())
	}
}

func TestDefaultScannerIDsAreUnique(t *testing.T) {
	reg := scanners.Default(compliance.NewDefaultTable())

	seen := make(map[string]bool)
	for _, s := range reg.All() {
		if seen[s.ID()] {
			t.Errorf("scanner id %q registered twice", s.ID())
		}
		seen[s.ID()] = true
	}
}

func TestDefaultExcluding(t *testing.T) {
	reg := scanners.DefaultExcluding(compliance.NewDefaultTable(), []string{"route53", "no-such-scanner"})

	if got, want := len(reg.All()), 24; got != want {
		t.Fatalf("registered %d scanners, want %d", got, want)
	}
	for _, s := range reg.All() {
		if s.ID() == "route53" {
			t.Fatal("route53 registered despite being disabled")
		}
	}
}

func TestQuickLevelScannersExist(t *testing.T) {
	reg := scanners.Default(compliance.NewDefaultTable())

	quick := []string{"iam", "s3", "ec2", "vpc", "cloudtrail", "guardduty"}
	if got := reg.Select(quick); len(got) != len(quick) {
		t.Fatalf("Select(quick) returned %d scanners, want %d", len(got), len(quick))
	}
}
