package output_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/evosec/cloudscan/internal/models"
	"github.com/evosec/cloudscan/internal/output"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func oneFinding(overrides ...func(*models.Finding)) models.Finding {
	f := models.Finding{
		ID:         "S3_PUBLIC_POLICY-global-logs",
		CheckID:    "S3_PUBLIC_POLICY",
		Service:    "s3",
		Severity:   models.SeverityCritical,
		Title:      "Bucket policy allows public access",
		ResourceID: "logs",
		Region:     "global",
		AccountID:  "111122223333",
	}
	for _, fn := range overrides {
		fn(&f)
	}
	return f
}

func oneResult(findings ...models.Finding) *models.ScanResult {
	return &models.ScanResult{
		ScanID:    "scan-1",
		AccountID: "111122223333",
		Regions:   []string{"us-east-1", "sa-east-1"},
		Level:     models.ScanLevelStandard,
		Status:    models.ScanStatusCompleted,
		Summary:   models.Summary{Total: len(findings), Critical: len(findings)},
		Findings:  findings,
	}
}

func renderToString(result *models.ScanResult, opts output.TableOptions) string {
	var buf bytes.Buffer
	output.RenderTable(&buf, result, opts)
	return buf.String()
}

// ── findings table ────────────────────────────────────────────────────────────

func TestRenderTable_ColumnsAndValues(t *testing.T) {
	out := renderToString(oneResult(oneFinding()), output.TableOptions{})
	for _, want := range []string{"CHECK", "SEVERITY", "SERVICE", "REGION", "RESOURCE ID", "TITLE"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s column header\ngot:\n%s", want, out)
		}
	}
	for _, want := range []string{"S3_PUBLIC_POLICY", "CRITICAL", "s3", "global", "logs"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected value %q in output\ngot:\n%s", want, out)
		}
	}
}

func TestRenderTable_EmptyResult(t *testing.T) {
	out := renderToString(oneResult(), output.TableOptions{})
	if !strings.Contains(out, "No findings.") {
		t.Errorf("expected empty-table placeholder\ngot:\n%s", out)
	}
}

func TestRenderTable_TitleIsTruncatedWhenTooLong(t *testing.T) {
	long := strings.Repeat("x", 100)
	f := oneFinding(func(f *models.Finding) { f.Title = long })
	out := renderToString(oneResult(f), output.TableOptions{})
	if strings.Contains(out, long) {
		t.Error("100-char title must be truncated")
	}
	if !strings.Contains(out, "...") {
		t.Errorf("expected ellipsis after truncation\ngot:\n%s", out)
	}
}

func TestRenderTable_ColoredSeverity(t *testing.T) {
	plain := renderToString(oneResult(oneFinding()), output.TableOptions{Colored: false})
	if strings.Contains(plain, "\033[") {
		t.Error("uncolored output must not contain ANSI escapes")
	}
	colored := renderToString(oneResult(oneFinding()), output.TableOptions{Colored: true})
	if !strings.Contains(colored, "\033[1;31mCRITICAL\033[0m") {
		t.Errorf("expected bold red CRITICAL\ngot:\n%s", colored)
	}
}

// ── summary ───────────────────────────────────────────────────────────────────

func TestRenderSummary_SeverityBreakdownAndFailures(t *testing.T) {
	result := oneResult(oneFinding())
	result.Status = models.ScanStatusPartial
	result.Summary = models.Summary{Total: 3, Critical: 1, High: 2}
	result.FailedServices = []models.FailedService{{Service: "ec2", ErrorKind: "timeout"}}

	var buf bytes.Buffer
	output.RenderSummary(&buf, result)
	out := buf.String()

	for _, want := range []string{
		"Account:   111122223333",
		"Status:    partial",
		"Total Findings:  3",
		"CRITICAL",
		"Incomplete Scanners",
		"ec2",
		"timeout",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in summary\ngot:\n%s", want, out)
		}
	}
}

func TestRenderSummary_NoFailuresSection(t *testing.T) {
	var buf bytes.Buffer
	output.RenderSummary(&buf, oneResult(oneFinding()))
	if strings.Contains(buf.String(), "Incomplete Scanners") {
		t.Errorf("failures section must be absent for a clean scan\ngot:\n%s", buf.String())
	}
}

// ── JSON ──────────────────────────────────────────────────────────────────────

func TestRenderJSON_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := output.RenderJSON(&buf, oneResult(oneFinding())); err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	var decoded models.ScanResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.ScanID != "scan-1" || len(decoded.Findings) != 1 {
		t.Errorf("decoded = %+v; want the rendered result back", decoded)
	}
	if decoded.Findings[0].CheckID != "S3_PUBLIC_POLICY" {
		t.Errorf("CheckID = %q; want S3_PUBLIC_POLICY", decoded.Findings[0].CheckID)
	}
}

// ── helpers under test ────────────────────────────────────────────────────────

func TestShortenMessage(t *testing.T) {
	if got := output.ShortenMessage("short", 55); got != "short" {
		t.Errorf("ShortenMessage(short) = %q", got)
	}
	long := strings.Repeat("a", 60)
	got := output.ShortenMessage(long, 55)
	if len([]rune(got)) != 55 || !strings.HasSuffix(got, "...") {
		t.Errorf("ShortenMessage(long, 55) = %q; want 55 runes ending in ellipsis", got)
	}
}

func TestColorSeverity(t *testing.T) {
	if got := output.ColorSeverity(models.SeverityHigh, false); got != "HIGH" {
		t.Errorf("uncolored = %q; want HIGH", got)
	}
	if got := output.ColorSeverity(models.SeverityHigh, true); got != "\033[0;31mHIGH\033[0m" {
		t.Errorf("colored = %q", got)
	}
	// INFO has no assigned color even when coloring is on.
	if got := output.ColorSeverity(models.SeverityInfo, true); got != "INFO" {
		t.Errorf("info = %q; want plain INFO", got)
	}
}
