package scan

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evosec/cloudscan/internal/compliance"
	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/providers/aws/common"
	"github.com/evosec/cloudscan/internal/scanner"
)

// okProvider satisfies CredentialProvider with non-expiring fake tokens.
type okProvider struct{}

func (okProvider) Resolve(context.Context, string) (common.CredentialContext, error) {
	return common.CredentialContext{AccessKeyID: "AKIATEST"}, nil
}

// deniedProvider simulates an auth rejection from the credential collaborator.
type deniedProvider struct{}

func (deniedProvider) Resolve(context.Context, string) (common.CredentialContext, error) {
	return common.CredentialContext{}, errors.New("AccessDenied: not authorized to assume role")
}

// stubScanner emits pre-stamped findings, fails, or hangs.
type stubScanner struct {
	id       string
	checks   []scanner.Check
	findings []models.Finding
	err      error
	hang     bool
}

func (s *stubScanner) ID() string              { return s.id }
func (s *stubScanner) Checks() []scanner.Check { return s.checks }

func (s *stubScanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	if s.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return scanner.RunChecks(sc, s.id, s.findings, []scanner.Def[[]models.Finding]{
		{
			Check: s.checks[0],
			Evaluate: func(fs []models.Finding) ([]models.Finding, error) {
				return fs, s.err
			},
		},
	}), s.err
}

func testTable() *compliance.Table {
	return compliance.NewTable(map[string][]models.ControlRef{
		"IAM_TEST_NO_MFA": {
			{Framework: compliance.FrameworkCIS, ControlID: "1.10"},
			{Framework: compliance.FrameworkPCI, ControlID: "8.3"},
		},
		"S3_TEST_PUBLIC": {
			{Framework: compliance.FrameworkCIS, ControlID: "2.1.2"},
		},
		"EC2_TEST_NOOP": {},
	})
}

func newStub(id, checkID string, sev models.Severity, resources ...string) *stubScanner {
	var fs []models.Finding
	for _, r := range resources {
		fs = append(fs, models.Finding{ResourceID: r})
	}
	return &stubScanner{
		id:       id,
		checks:   []scanner.Check{{ID: checkID, Severity: sev, Category: models.CategoryExposure}},
		findings: fs,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestManager(t *testing.T, table *compliance.Table, provider common.CredentialProvider, scanners ...scanner.Scanner) *Manager {
	t.Helper()
	reg := scanner.NewRegistry(table)
	for _, s := range scanners {
		reg.Register(s)
	}
	return NewManager(reg, table, provider, Options{
		OverallTimeout:    2 * time.Second,
		PerScannerTimeout: 100 * time.Millisecond,
	}, quietLogger())
}

func standardRequest() models.ScanRequest {
	return models.ScanRequest{
		AccountID: "acct-1",
		Regions:   []string{"region-a"},
		Level:     models.ScanLevelStandard,
	}
}

// TestRun_HappyPath mirrors the quick-scan scenario: one console user without
// MFA and one public bucket yield exactly two findings, one HIGH and one
// CRITICAL, with summary.total == 2 and status completed.
func TestRun_HappyPath(t *testing.T) {
	m := newTestManager(t, testTable(), okProvider{},
		newStub("iam", "IAM_TEST_NO_MFA", models.SeverityHigh, "bob"),
		newStub("s3", "S3_TEST_PUBLIC", models.SeverityCritical, "public-bucket"),
	)

	res, err := m.Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != models.ScanStatusCompleted {
		t.Errorf("status = %q; want completed", res.Status)
	}
	if res.Summary.Total != 2 || res.Summary.Critical != 1 || res.Summary.High != 1 {
		t.Errorf("summary = %+v; want total 2, critical 1, high 1", res.Summary)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("findings = %d; want 2", len(res.Findings))
	}
	// Severity-sorted: critical bucket first.
	if res.Findings[0].CheckID != "S3_TEST_PUBLIC" || res.Findings[1].CheckID != "IAM_TEST_NO_MFA" {
		t.Errorf("findings order: %s, %s", res.Findings[0].CheckID, res.Findings[1].CheckID)
	}
	if res.Metrics.ServicesScanned != 2 || res.Metrics.RegionsScanned != 1 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
}

// TestRun_CredentialFailure verifies an auth rejection aborts before any
// scanner runs: error surfaced, no result, zero findings anywhere.
func TestRun_CredentialFailure(t *testing.T) {
	ran := false
	s := &stubScanner{
		id:     "iam",
		checks: []scanner.Check{{ID: "IAM_TEST_NO_MFA", Severity: models.SeverityHigh}},
	}
	probe := &probeScanner{inner: s, ran: &ran}

	m := newTestManager(t, testTable(), deniedProvider{}, probe)
	res, err := m.Run(context.Background(), standardRequest())
	if err == nil {
		t.Fatal("want error on credential rejection")
	}
	if !common.IsCredentialError(err) {
		t.Errorf("want *CredentialError, got %T: %v", err, err)
	}
	if res != nil {
		t.Error("no partial result is meaningful without identity")
	}
	if ran {
		t.Error("no scanner may run when credentials are rejected")
	}
}

type probeScanner struct {
	inner scanner.Scanner
	ran   *bool
}

func (p *probeScanner) ID() string              { return p.inner.ID() }
func (p *probeScanner) Checks() []scanner.Check { return p.inner.Checks() }
func (p *probeScanner) Scan(ctx context.Context, sc *scanner.Context) ([]models.Finding, error) {
	*p.ran = true
	return p.inner.Scan(ctx, sc)
}

// TestRun_OneScannerTimesOut verifies the partial-failure path: the hanging
// scanner lands in failedServices while the healthy scanners' findings are
// all present.
func TestRun_OneScannerTimesOut(t *testing.T) {
	hanging := &stubScanner{
		id:     "ec2",
		checks: []scanner.Check{{ID: "EC2_TEST_NOOP", Severity: models.SeverityLow}},
		hang:   true,
	}
	m := newTestManager(t, testTable(), okProvider{},
		newStub("iam", "IAM_TEST_NO_MFA", models.SeverityHigh, "bob"),
		hanging,
		newStub("s3", "S3_TEST_PUBLIC", models.SeverityCritical, "public-bucket"),
	)

	res, err := m.Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != models.ScanStatusPartial {
		t.Errorf("status = %q; want partial", res.Status)
	}
	if len(res.FailedServices) != 1 || res.FailedServices[0].Service != "ec2" {
		t.Fatalf("failedServices = %+v; want exactly ec2", res.FailedServices)
	}
	if res.FailedServices[0].ErrorKind != "timeout" {
		t.Errorf("errorKind = %q; want timeout", res.FailedServices[0].ErrorKind)
	}
	if res.Summary.Total != 2 {
		t.Errorf("summary.total = %d; want 2 findings from healthy scanners", res.Summary.Total)
	}
}

// TestRun_AllScannersFail verifies the scan degrades to status failed but
// still returns a structured result, never a bare error.
func TestRun_AllScannersFail(t *testing.T) {
	broken := &stubScanner{
		id:     "iam",
		checks: []scanner.Check{{ID: "IAM_TEST_NO_MFA", Severity: models.SeverityHigh}},
		err:    errors.New("listing exploded"),
	}
	m := newTestManager(t, testTable(), okProvider{}, broken)

	res, err := m.Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("Run must not error for scanner failures: %v", err)
	}
	if res.Status != models.ScanStatusFailed {
		t.Errorf("status = %q; want failed", res.Status)
	}
	if res.FailedServices[0].ErrorKind != "scanner_error" {
		t.Errorf("errorKind = %q; want scanner_error", res.FailedServices[0].ErrorKind)
	}
}

func TestRun_ComplianceRefsStamped(t *testing.T) {
	m := newTestManager(t, testTable(), okProvider{},
		newStub("iam", "IAM_TEST_NO_MFA", models.SeverityHigh, "bob"),
	)
	res, err := m.Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	refs := res.Findings[0].ComplianceRefs
	if len(refs) != 2 {
		t.Fatalf("compliance refs = %v; want CIS 1.10 and PCI 8.3", refs)
	}
	if refs[0].Framework != compliance.FrameworkCIS || refs[0].ControlID != "1.10" {
		t.Errorf("refs[0] = %+v", refs[0])
	}
}

// TestRun_SummaryArithmetic verifies total == critical+high+medium+low+info
// == len(findings) for a mixed-severity scan.
func TestRun_SummaryArithmetic(t *testing.T) {
	m := newTestManager(t, testTable(), okProvider{},
		newStub("iam", "IAM_TEST_NO_MFA", models.SeverityHigh, "a", "b", "c"),
		newStub("s3", "S3_TEST_PUBLIC", models.SeverityCritical, "x", "y"),
	)
	res, err := m.Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	sum := res.Summary.Critical + res.Summary.High + res.Summary.Medium + res.Summary.Low + res.Summary.Info
	if res.Summary.Total != sum {
		t.Errorf("total %d != severity sum %d", res.Summary.Total, sum)
	}
	if res.Summary.Total != len(res.Findings) {
		t.Errorf("total %d != len(findings) %d", res.Summary.Total, len(res.Findings))
	}
	if res.Summary.ByService["iam"] != 3 || res.Summary.ByService["s3"] != 2 {
		t.Errorf("byService = %v", res.Summary.ByService)
	}
}

// TestRun_Deterministic verifies that two runs over identical fake inputs
// yield the same multiset of findings.
func TestRun_Deterministic(t *testing.T) {
	build := func() *Manager {
		return newTestManager(t, testTable(), okProvider{},
			newStub("iam", "IAM_TEST_NO_MFA", models.SeverityHigh, "a", "b"),
			newStub("s3", "S3_TEST_PUBLIC", models.SeverityCritical, "x"),
		)
	}

	ids := func(res *models.ScanResult) []string {
		var out []string
		for _, f := range res.Findings {
			out = append(out, f.ID)
		}
		sort.Strings(out)
		return out
	}

	r1, err := build().Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	r2, err := build().Run(context.Background(), standardRequest())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(ids(r1), ids(r2)) {
		t.Errorf("finding multisets differ:\n%v\n%v", ids(r1), ids(r2))
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	m := newTestManager(t, testTable(), okProvider{})
	cases := []models.ScanRequest{
		{Regions: []string{"region-a"}, Level: models.ScanLevelQuick},
		{AccountID: "acct-1", Level: models.ScanLevelQuick},
		{AccountID: "acct-1", Regions: []string{"region-a"}, Level: "exhaustive"},
	}
	for _, req := range cases {
		if _, err := m.Run(context.Background(), req); err == nil {
			t.Errorf("want validation error for %+v", req)
		}
	}
}
