package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/evosec/cloudscan/internal/models"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func makeResult(findings []models.Finding) *models.ScanResult {
	summary := models.Summary{
		Total:      len(findings),
		ByService:  map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, f := range findings {
		summary.ByService[f.Service]++
	}
	return &models.ScanResult{
		ScanID:    "scan-test",
		AccountID: "111122223333",
		Regions:   []string{"us-east-1", "eu-west-1"},
		Level:     models.ScanLevelStandard,
		Status:    models.ScanStatusCompleted,
		StartedAt: time.Now().UTC(),
		Summary:   summary,
		Findings:  findings,
	}
}

// ── writeResultToFile ─────────────────────────────────────────────────────────

func TestWriteResultToFile_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")

	if err := writeResultToFile(path, makeResult(nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}
}

func TestWriteResultToFile_InvalidPath(t *testing.T) {
	// Directory does not exist — write must fail.
	path := filepath.Join(t.TempDir(), "nonexistent", "result.json")

	if err := writeResultToFile(path, makeResult(nil)); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestWriteResultToFile_ContentMatchesJSON(t *testing.T) {
	findings := []models.Finding{
		{CheckID: "S3_PUBLIC_POLICY", Service: "s3", ResourceID: "my-bucket", Region: "us-east-1", Severity: models.SeverityCritical},
	}
	path := filepath.Join(t.TempDir(), "result.json")

	if err := writeResultToFile(path, makeResult(findings)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	var got models.ScanResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.AccountID != "111122223333" {
		t.Errorf("account_id: got %q; want 111122223333", got.AccountID)
	}
	if len(got.Findings) != 1 || got.Findings[0].ResourceID != "my-bucket" {
		t.Errorf("findings: got %+v; want one my-bucket finding", got.Findings)
	}
}

// ── newLogger ─────────────────────────────────────────────────────────────────

func TestNewLogger_Levels(t *testing.T) {
	if got := newLogger(false).GetLevel(); got != logrus.WarnLevel {
		t.Errorf("default level = %s, want warning", got)
	}
	if got := newLogger(true).GetLevel(); got != logrus.DebugLevel {
		t.Errorf("verbose level = %s, want debug", got)
	}
}

// ── scan command flag validation ──────────────────────────────────────────────

func TestScanCmd_RejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	// Point --config at a missing file so only the flag validation runs.
	root.SetArgs([]string{"scan", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--output", "xml"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "xml") {
		t.Fatalf("Execute() error = %v, want unknown-format error", err)
	}
}

func TestScanCmd_RejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("output:\n  format: pdf\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"scan", "--config", path})

	if err := root.Execute(); err == nil {
		t.Fatal("Execute() succeeded with an invalid config file")
	}
}
