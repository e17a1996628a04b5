package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evosec/cloudscan/internal/config"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func healthyDeps(t *testing.T) doctorDeps {
	t.Helper()
	return doctorDeps{
		identity: func(ctx context.Context, profile string) (string, error) {
			return "111122223333", nil
		},
		regions: func(ctx context.Context, account, profile string) ([]string, error) {
			return []string{"us-east-1", "eu-west-1"}, nil
		},
		loader: &config.FileLoader{Path: filepath.Join(t.TempDir(), "missing.yaml")},
	}
}

// ── collectDoctorResult ───────────────────────────────────────────────────────

func TestCollectDoctorResult_Healthy(t *testing.T) {
	result := collectDoctorResult(context.Background(), healthyDeps(t), "")

	if !result.OverallHealthy {
		t.Errorf("OverallHealthy = false, want true: %+v", result)
	}
	if result.AWS.AccountID != "111122223333" {
		t.Errorf("AccountID = %q, want 111122223333", result.AWS.AccountID)
	}
	if result.AWS.RegionCount != 2 {
		t.Errorf("RegionCount = %d, want 2", result.AWS.RegionCount)
	}
	if result.Config.Present {
		t.Error("missing config file reported as present")
	}
}

func TestCollectDoctorResult_CredentialFailure(t *testing.T) {
	deps := healthyDeps(t)
	deps.identity = func(ctx context.Context, profile string) (string, error) {
		return "", errors.New("no credentials in chain")
	}

	result := collectDoctorResult(context.Background(), deps, "")

	if result.OverallHealthy {
		t.Error("OverallHealthy = true despite credential failure")
	}
	if result.AWS.Credentials {
		t.Error("Credentials = true despite failure")
	}
	if !strings.Contains(result.AWS.Error, "no credentials") {
		t.Errorf("AWS.Error = %q, want credential message", result.AWS.Error)
	}
}

func TestCollectDoctorResult_RegionFailure(t *testing.T) {
	deps := healthyDeps(t)
	deps.regions = func(ctx context.Context, account, profile string) ([]string, error) {
		return nil, errors.New("ec2 access denied")
	}

	result := collectDoctorResult(context.Background(), deps, "audit")

	if result.OverallHealthy {
		t.Error("OverallHealthy = true despite region failure")
	}
	if !result.AWS.Credentials {
		t.Error("Credentials should still be true when only regions fail")
	}
	if result.AWS.Profile != "audit" {
		t.Errorf("Profile = %q, want audit", result.AWS.Profile)
	}
}

func TestCollectDoctorResult_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scan:\n  level: paranoid\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	deps := healthyDeps(t)
	deps.loader = &config.FileLoader{Path: path}

	result := collectDoctorResult(context.Background(), deps, "")

	if result.OverallHealthy {
		t.Error("OverallHealthy = true despite invalid config")
	}
	if !result.Config.Present || result.Config.Valid {
		t.Errorf("Config = %+v, want present and invalid", result.Config)
	}
	if len(result.Config.Errors) == 0 {
		t.Error("Config.Errors empty, want validation message")
	}
}

func TestCollectDoctorResult_ValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scan:\n  level: deep\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	deps := healthyDeps(t)
	deps.loader = &config.FileLoader{Path: path}

	result := collectDoctorResult(context.Background(), deps, "")

	if !result.OverallHealthy {
		t.Errorf("OverallHealthy = false: %+v", result)
	}
	if !result.Config.Valid {
		t.Error("Config.Valid = false for a valid file")
	}
}

// ── runDoctor rendering ───────────────────────────────────────────────────────

func TestRunDoctor_TableOutput(t *testing.T) {
	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), healthyDeps(t), &buf, "table", "")
	if err != nil {
		t.Fatalf("runDoctor error: %v", err)
	}
	if !result.OverallHealthy {
		t.Fatalf("unexpected unhealthy result: %+v", result)
	}

	out := buf.String()
	for _, want := range []string{"Environment Diagnostics", "Credentials: OK", "111122223333", "2 regions enabled", "Not found (optional)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q\ngot:\n%s", want, out)
		}
	}
}

func TestRunDoctor_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if _, err := runDoctor(context.Background(), healthyDeps(t), &buf, "json", ""); err != nil {
		t.Fatalf("runDoctor error: %v", err)
	}

	var decoded DoctorResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\ngot:\n%s", err, buf.String())
	}
	if decoded.AWS.AccountID != "111122223333" {
		t.Errorf("decoded AccountID = %q, want 111122223333", decoded.AWS.AccountID)
	}
	if !decoded.OverallHealthy {
		t.Error("decoded OverallHealthy = false")
	}
}
