package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/evosec/cloudscan/internal/config"
)

func writeConfig(t *testing.T, body string) *config.FileLoader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return &config.FileLoader{Path: path}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	loader := &config.FileLoader{Path: filepath.Join(t.TempDir(), "nope.yaml")}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scan.Level != "standard" {
		t.Errorf("default scan level = %q, want %q", cfg.Scan.Level, "standard")
	}
	if cfg.Scan.Timeout.Std() != 5*time.Minute {
		t.Errorf("default scan timeout = %s, want 5m", cfg.Scan.Timeout)
	}
	if cfg.Output.Format != "table" {
		t.Errorf("default output format = %q, want table", cfg.Output.Format)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	loader := writeConfig(t, `
aws:
  default_profile: audit
  regions: [us-east-1, eu-west-1]
scan:
  level: deep
  scanner_timeout: 2m
  disabled_scanners: [route53]
output:
  format: json
`)

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AWS.DefaultProfile != "audit" {
		t.Errorf("profile = %q, want audit", cfg.AWS.DefaultProfile)
	}
	if len(cfg.AWS.Regions) != 2 || cfg.AWS.Regions[1] != "eu-west-1" {
		t.Errorf("regions = %v, want [us-east-1 eu-west-1]", cfg.AWS.Regions)
	}
	if cfg.Scan.Level != "deep" {
		t.Errorf("level = %q, want deep", cfg.Scan.Level)
	}
	if cfg.Scan.ScannerTimeout.Std() != 2*time.Minute {
		t.Errorf("scanner timeout = %s, want 2m", cfg.Scan.ScannerTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.Scan.Timeout.Std() != 5*time.Minute {
		t.Errorf("overall timeout = %s, want default 5m", cfg.Scan.Timeout)
	}
	if got, want := cfg.Scan.DisabledScanners, "route53"; len(got) != 1 || got[0] != want {
		t.Errorf("disabled scanners = %v, want [%s]", got, want)
	}
}

func TestLoad_InvalidLevel(t *testing.T) {
	loader := writeConfig(t, "scan:\n  level: paranoid\n")

	if _, err := loader.Load(); err == nil || !strings.Contains(err.Error(), "paranoid") {
		t.Fatalf("Load() error = %v, want unknown-level error", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	loader := writeConfig(t, "scan: [not a map")

	if _, err := loader.Load(); err == nil {
		t.Fatal("Load() succeeded on malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		ok     bool
	}{
		{"defaults", func(c *config.Config) {}, true},
		{"quick level", func(c *config.Config) { c.Scan.Level = "quick" }, true},
		{"bad format", func(c *config.Config) { c.Output.Format = "xml" }, false},
		{"negative timeout", func(c *config.Config) { c.Scan.Timeout = config.Duration(-time.Second) }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}
