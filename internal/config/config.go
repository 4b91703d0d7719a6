package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Source, output and ledger locations
	Paths PathsConfig `mapstructure:"paths" json:"paths" yaml:"paths"`

	// Converter invocation and export naming
	Export ExportConfig `mapstructure:"export" json:"export" yaml:"export"`

	// Ledger persistence
	Ledger LedgerConfig `mapstructure:"ledger" json:"ledger" yaml:"ledger"`

	// Content fingerprinting
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" json:"fingerprint" yaml:"fingerprint"`

	// Continuous mode
	Watch WatchConfig `mapstructure:"watch" json:"watch" yaml:"watch"`

	// Report only, no filesystem writes
	Preview bool `mapstructure:"preview" json:"preview" yaml:"preview"`

	// Disable colors and decoration in the report
	Plain bool `mapstructure:"plain" json:"plain" yaml:"plain"`

	// Exit non-zero when any export failed
	Strict bool `mapstructure:"strict" json:"strict" yaml:"strict"`

	// Logging
	Log LogConfig `mapstructure:"log" json:"log" yaml:"log"`
}

// PathsConfig for the directories a pass works on. Empty paths are derived
// from BaseDir by ResolvePaths.
type PathsConfig struct {
	BaseDir    string `mapstructure:"base_dir" json:"base_dir" yaml:"base_dir"`
	SourceDir  string `mapstructure:"source_dir" json:"source_dir" yaml:"source_dir"`
	OutputDir  string `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir"`
	LedgerFile string `mapstructure:"ledger_file" json:"ledger_file" yaml:"ledger_file"`
}

// ExportConfig for the external converter.
type ExportConfig struct {
	Converter        string   `mapstructure:"converter" json:"converter" yaml:"converter"`                         // binary looked up on PATH
	SheetType        string   `mapstructure:"sheet_type" json:"sheet_type" yaml:"sheet_type"`                      // --sheet-type value
	Suffix           string   `mapstructure:"suffix" json:"suffix" yaml:"suffix"`                                  // appended to the logical path
	SourceExtensions []string `mapstructure:"source_extensions" json:"source_extensions" yaml:"source_extensions"` // files treated as sprites
	SidecarSuffixes  []string `mapstructure:"sidecar_suffixes" json:"sidecar_suffixes" yaml:"sidecar_suffixes"`    // deleted with the artifact
	RetryFailed      bool     `mapstructure:"retry_failed" json:"retry_failed" yaml:"retry_failed"`                // keep failed exports dirty
}

// LedgerConfig for fingerprint persistence.
type LedgerConfig struct {
	Backend string `mapstructure:"backend" json:"backend" yaml:"backend"` // text, sqlite
}

// FingerprintConfig for content hashing.
type FingerprintConfig struct {
	Algorithm string `mapstructure:"algorithm" json:"algorithm" yaml:"algorithm"` // sha256, blake2b
}

// WatchConfig for continuous mode.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Debounce time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" yaml:"level"`    // debug, info, warn, error
	Format string `mapstructure:"format" json:"format" yaml:"format"` // text, json
	File   string `mapstructure:"file" json:"file" yaml:"file"`       // Log file path (empty = stderr)
	Color  bool   `mapstructure:"color" json:"color" yaml:"color"`    // Colored level tags
}

// Supported values.
var (
	SheetTypes            = []string{"horizontal", "vertical", "rows", "columns", "packed"}
	LedgerBackends        = []string{"text", "sqlite"}
	FingerprintAlgorithms = []string{"sha256", "blake2b"}
)

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			BaseDir: "assets",
		},
		Export: ExportConfig{
			Converter:        "aseprite",
			SheetType:        "horizontal",
			Suffix:           ".png",
			SourceExtensions: []string{".ase", ".aseprite"},
			SidecarSuffixes:  []string{".import"},
		},
		Ledger: LedgerConfig{
			Backend: "text",
		},
		Fingerprint: FingerprintConfig{
			Algorithm: "sha256",
		},
		Watch: WatchConfig{
			Debounce: 250 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
			Color:  true,
		},
	}
}

// ResolvePaths fills empty paths from the base directory.
func (c *Config) ResolvePaths() {
	base := c.Paths.BaseDir
	if c.Paths.SourceDir == "" {
		c.Paths.SourceDir = filepath.Join(base, "sprites", "ase")
	}
	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = filepath.Join(base, "sprites", "png")
	}
	if c.Paths.LedgerFile == "" {
		c.Paths.LedgerFile = filepath.Join(base, "sprites", ".hashes")
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Paths.SourceDir == "" || c.Paths.OutputDir == "" || c.Paths.LedgerFile == "" {
		return errors.New("paths are not resolved")
	}

	if filepath.Clean(c.Paths.SourceDir) == filepath.Clean(c.Paths.OutputDir) {
		return errors.New("paths.source_dir and paths.output_dir must differ")
	}

	if c.Export.Converter == "" {
		return errors.New("export.converter is required")
	}

	if !contains(SheetTypes, c.Export.SheetType) {
		return fmt.Errorf("invalid export.sheet_type: %s", c.Export.SheetType)
	}

	if !strings.HasPrefix(c.Export.Suffix, ".") {
		return fmt.Errorf("export.suffix must start with '.': %q", c.Export.Suffix)
	}

	if len(c.Export.SourceExtensions) == 0 {
		return errors.New("export.source_extensions must not be empty")
	}
	for _, ext := range c.Export.SourceExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("source extension must start with '.': %q", ext)
		}
	}

	if !contains(LedgerBackends, c.Ledger.Backend) {
		return fmt.Errorf("invalid ledger.backend: %s", c.Ledger.Backend)
	}

	if !contains(FingerprintAlgorithms, c.Fingerprint.Algorithm) {
		return fmt.Errorf("invalid fingerprint.algorithm: %s", c.Fingerprint.Algorithm)
	}

	if c.Watch.Debounce < 0 {
		return errors.New("watch.debounce must not be negative")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// YAML renders the config in config file form.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
