package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// SPRITESYNC_LOG_LEVEL or SPRITESYNC_PATHS_SOURCE_DIR.
const EnvPrefix = "SPRITESYNC"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty configPath searches the
// default locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l := &Loader{
		configPath: configPath,
		v:          v,
	}
	l.setDefaults(DefaultConfig())

	return l
}

// Viper exposes the underlying registry so command flags can be bound to
// config keys.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFile returns the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from defaults, file, environment and bound flags,
// in increasing precedence.
func (l *Loader) Load() (*Config, error) {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
	} else {
		l.v.SetConfigName("spritesync")
		for _, dir := range l.defaultDirs() {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.ResolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultDirs returns default config file locations.
func (l *Loader) defaultDirs() []string {
	dirs := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".config", "spritesync"))
	}

	return dirs
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) {
	defaults := map[string]interface{}{
		"paths.base_dir":           cfg.Paths.BaseDir,
		"paths.source_dir":         cfg.Paths.SourceDir,
		"paths.output_dir":         cfg.Paths.OutputDir,
		"paths.ledger_file":        cfg.Paths.LedgerFile,
		"export.converter":         cfg.Export.Converter,
		"export.sheet_type":        cfg.Export.SheetType,
		"export.suffix":            cfg.Export.Suffix,
		"export.source_extensions": cfg.Export.SourceExtensions,
		"export.sidecar_suffixes":  cfg.Export.SidecarSuffixes,
		"export.retry_failed":      cfg.Export.RetryFailed,
		"ledger.backend":           cfg.Ledger.Backend,
		"fingerprint.algorithm":    cfg.Fingerprint.Algorithm,
		"watch.enabled":            cfg.Watch.Enabled,
		"watch.debounce":           cfg.Watch.Debounce,
		"preview":                  cfg.Preview,
		"plain":                    cfg.Plain,
		"strict":                   cfg.Strict,
		"log.level":                cfg.Log.Level,
		"log.format":               cfg.Log.Format,
		"log.file":                 cfg.Log.File,
		"log.color":                cfg.Log.Color,
	}

	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// WriteFile writes cfg to path as YAML. An existing file is left alone
// unless overwrite is set.
func WriteFile(cfg *Config, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
