package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evosec/cloudscan/internal/models"
)

// Config is the top-level application configuration.
// It is loaded from ~/.config/cloudscan/config.yaml; every field has a
// working default so a missing file is not an error.
type Config struct {
	AWS    AWSConfig    `yaml:"aws"    json:"aws"`
	Scan   ScanConfig   `yaml:"scan"   json:"scan"`
	Output OutputConfig `yaml:"output" json:"output"`
}

// AWSConfig holds AWS-specific defaults used when flags are not provided.
type AWSConfig struct {
	// DefaultProfile is used when no --profile flag is provided.
	DefaultProfile string `yaml:"default_profile" json:"default_profile"`

	// Regions restricts scanning to the listed regions. Empty means every
	// region enabled on the account.
	Regions []string `yaml:"regions" json:"regions"`
}

// Duration is a time.Duration that reads YAML strings like "90s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration: expected a string like \"90s\", got %s", value.Tag)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// ScanConfig holds scan execution defaults.
type ScanConfig struct {
	// Level selects the default scan depth: "quick", "standard", or "deep".
	Level string `yaml:"level" json:"level"`

	// Timeout bounds a whole scan run.
	Timeout Duration `yaml:"timeout" json:"timeout"`

	// ScannerTimeout bounds each individual service scanner.
	ScannerTimeout Duration `yaml:"scanner_timeout" json:"scanner_timeout"`

	// DisabledScanners lists scanner ids to skip on every run.
	DisabledScanners []string `yaml:"disabled_scanners" json:"disabled_scanners"`
}

// OutputConfig holds report rendering defaults.
type OutputConfig struct {
	// Format selects the default report format: "table" or "json".
	Format string `yaml:"format" json:"format"`

	// Colored toggles ANSI colors in table output.
	Colored bool `yaml:"colored" json:"colored"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			Level:          string(models.ScanLevelStandard),
			Timeout:        Duration(5 * time.Minute),
			ScannerTimeout: Duration(90 * time.Second),
		},
		Output: OutputConfig{
			Format:  "table",
			Colored: true,
		},
	}
}

// Validate reports the first invalid field, or nil.
func (c *Config) Validate() error {
	switch models.ScanLevel(c.Scan.Level) {
	case models.ScanLevelQuick, models.ScanLevelStandard, models.ScanLevelDeep:
	default:
		return fmt.Errorf("scan.level: unknown level %q", c.Scan.Level)
	}
	if c.Scan.Timeout < 0 {
		return fmt.Errorf("scan.timeout: must not be negative, got %s", c.Scan.Timeout)
	}
	if c.Scan.ScannerTimeout < 0 {
		return fmt.Errorf("scan.scanner_timeout: must not be negative, got %s", c.Scan.ScannerTimeout)
	}
	switch c.Output.Format {
	case "table", "json":
	default:
		return fmt.Errorf("output.format: unknown format %q", c.Output.Format)
	}
	return nil
}

// Loader is the interface for reading Config from disk.
// Default implementation reads from ~/.config/cloudscan/config.yaml.
type Loader interface {
	// Load reads, parses, and validates the configuration file.
	Load() (*Config, error)

	// ConfigPath returns the absolute path to the configuration file.
	ConfigPath() string
}

// FileLoader reads configuration from a YAML file on disk.
type FileLoader struct {
	// Path overrides the default config location when non-empty.
	Path string
}

// ConfigPath returns the resolved configuration file path.
func (l *FileLoader) ConfigPath() string {
	if l.Path != "" {
		return l.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".cloudscan.yaml")
	}
	return filepath.Join(home, ".config", "cloudscan", "config.yaml")
}

// Load reads the config file, layering it over Default(). A missing file
// yields the defaults; a malformed or invalid file is an error.
func (l *FileLoader) Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(l.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.ConfigPath(), err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.ConfigPath(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", l.ConfigPath(), err)
	}
	return cfg, nil
}
