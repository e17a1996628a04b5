package scanner

import (
	"errors"
	"testing"

	"github.com/evosec/cloudscan/internal/models"
)

type fakeSnap struct {
	buckets []string
}

func testDefs() []Def[*fakeSnap] {
	return []Def[*fakeSnap]{
		{
			Check: Check{
				ID:        "S3_TEST_PUBLIC",
				Severity:  models.SeverityCritical,
				Category:  models.CategoryExposure,
				Title:     "Public bucket",
				RiskScore: 9,
				Remediation: []string{
					"aws s3api put-public-access-block --bucket {resource}",
				},
			},
			Evaluate: func(s *fakeSnap) ([]models.Finding, error) {
				var out []models.Finding
				for _, b := range s.buckets {
					out = append(out, models.Finding{ResourceID: b})
				}
				return out, nil
			},
		},
		{
			Check: Check{ID: "S3_TEST_BROKEN", Severity: models.SeverityLow, Category: models.CategoryExposure},
			Evaluate: func(*fakeSnap) ([]models.Finding, error) {
				return nil, errors.New("collector gave us garbage")
			},
		},
		{
			Check: Check{ID: "S3_TEST_PANIC", Severity: models.SeverityLow, Category: models.CategoryExposure},
			Evaluate: func(*fakeSnap) ([]models.Finding, error) {
				panic("boom")
			},
		},
		{
			Check:    Check{ID: "S3_TEST_DEEP", Severity: models.SeverityInfo, Category: models.CategoryExposure, DeepOnly: true},
			Evaluate: func(*fakeSnap) ([]models.Finding, error) {
				return []models.Finding{{ResourceID: "deep-only"}}, nil
			},
		},
	}
}

// TestRunChecks_IsolatesFailures verifies that an erroring check and a
// panicking check do not reduce findings from healthy checks.
func TestRunChecks_IsolatesFailures(t *testing.T) {
	sc := &Context{Account: "123", Level: models.ScanLevelStandard}
	snap := &fakeSnap{buckets: []string{"a", "b"}}

	findings := RunChecks(sc, "s3", snap, testDefs())
	if len(findings) != 2 {
		t.Fatalf("want 2 findings from the healthy check, got %d", len(findings))
	}
	for _, f := range findings {
		if f.CheckID != "S3_TEST_PUBLIC" {
			t.Errorf("unexpected finding from check %q", f.CheckID)
		}
	}
}

func TestRunChecks_DeepOnlySkippedAtStandard(t *testing.T) {
	sc := &Context{Account: "123", Level: models.ScanLevelStandard}
	findings := RunChecks(sc, "s3", &fakeSnap{}, testDefs())
	for _, f := range findings {
		if f.CheckID == "S3_TEST_DEEP" {
			t.Error("deep-only check ran at standard level")
		}
	}
}

func TestRunChecks_DeepOnlyRunsAtDeep(t *testing.T) {
	sc := &Context{Account: "123", Level: models.ScanLevelDeep}
	findings := RunChecks(sc, "s3", &fakeSnap{}, testDefs())

	found := false
	for _, f := range findings {
		if f.CheckID == "S3_TEST_DEEP" {
			found = true
		}
	}
	if !found {
		t.Error("deep-only check did not run at deep level")
	}
}

func TestRunChecks_StampsCheckMetadata(t *testing.T) {
	sc := &Context{Account: "123456789012", Level: models.ScanLevelQuick}
	findings := RunChecks(sc, "s3", &fakeSnap{buckets: []string{"data-lake"}}, testDefs())
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if f.Severity != models.SeverityCritical {
		t.Errorf("Severity = %q; want CRITICAL", f.Severity)
	}
	if f.Service != "s3" {
		t.Errorf("Service = %q; want s3", f.Service)
	}
	if f.AccountID != "123456789012" {
		t.Errorf("AccountID = %q", f.AccountID)
	}
	if f.Region != "global" {
		t.Errorf("Region = %q; want global default", f.Region)
	}
	if f.RiskScore != 9 {
		t.Errorf("RiskScore = %d; want 9", f.RiskScore)
	}
	if f.ID != "S3_TEST_PUBLIC-global-data-lake" {
		t.Errorf("ID = %q", f.ID)
	}
	if f.DetectedAt.IsZero() {
		t.Error("DetectedAt not set")
	}
}

// TestRunChecks_RemediationParameterised verifies the {resource} placeholder
// is replaced with the concrete resource id.
func TestRunChecks_RemediationParameterised(t *testing.T) {
	sc := &Context{Account: "123", Level: models.ScanLevelQuick}
	findings := RunChecks(sc, "s3", &fakeSnap{buckets: []string{"data-lake"}}, testDefs())
	if len(findings) != 1 {
		t.Fatalf("want 1 finding, got %d", len(findings))
	}
	want := "aws s3api put-public-access-block --bucket data-lake"
	if len(findings[0].Remediation) != 1 || findings[0].Remediation[0] != want {
		t.Errorf("Remediation = %v; want [%q]", findings[0].Remediation, want)
	}
}

func TestRunChecks_PreservesDeclarationOrder(t *testing.T) {
	defs := []Def[*fakeSnap]{
		{
			Check: Check{ID: "S3_TEST_PUBLIC", Severity: models.SeverityLow, Category: models.CategoryExposure},
			Evaluate: func(*fakeSnap) ([]models.Finding, error) {
				return []models.Finding{{ResourceID: "first"}}, nil
			},
		},
		{
			Check: Check{ID: "S3_TEST_DEEP", Severity: models.SeverityLow, Category: models.CategoryExposure},
			Evaluate: func(*fakeSnap) ([]models.Finding, error) {
				return []models.Finding{{ResourceID: "second"}}, nil
			},
		},
	}
	sc := &Context{Account: "123", Level: models.ScanLevelStandard}
	findings := RunChecks(sc, "s3", &fakeSnap{}, defs)
	if len(findings) != 2 {
		t.Fatalf("want 2 findings, got %d", len(findings))
	}
	if findings[0].ResourceID != "first" || findings[1].ResourceID != "second" {
		t.Errorf("findings out of declaration order: %v, %v", findings[0].ResourceID, findings[1].ResourceID)
	}
}
