package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AppConfig is the daemon/CLI-wide configuration: where state lives, which
// preset new repositories default to, and how telemetry is wired. It is
// distinct from VectorStoreConfig, which is per-repository and travels in
// `.vectorconfig.json`. Ported from the teacher's pkg/config/config.go
// Load/DefaultConfig/getConfigPath pattern, reshaped around the keys this
// module actually needs.
type AppConfig struct {
	StateDir      string `yaml:"state_dir"`
	PresetsDir    string `yaml:"presets_dir,omitempty"`
	DefaultPreset string `yaml:"default_preset"`
	Logging       struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		// Directory, when set, also writes logs to a rotating file under it
		// (in addition to stdout); empty means stdout only.
		Directory  string `yaml:"directory,omitempty"`
		MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
		MaxBackups int    `yaml:"max_backups,omitempty"`
		MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	} `yaml:"logging"`
	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
		SentryDSN    string `yaml:"sentry_dsn,omitempty"`
	} `yaml:"telemetry"`
}

// DefaultAppConfig mirrors the teacher's DefaultConfig(). PresetsDir,
// Logging.Directory and the Telemetry fields are left empty; every other
// field gets a default.
func DefaultAppConfig() *AppConfig {
	cfg := &AppConfig{
		StateDir:      filepath.Join("~", ".codesearch"),
		DefaultPreset: "default",
	}
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30
	return cfg
}

// LoadAppConfig loads the app config from file (if any), applies env
// overrides, and expands `~` in path fields.
func LoadAppConfig() (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path := appConfigPath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read app config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse app config %s: %w", path, err)
		}
	}

	applyAppEnvOverrides(cfg)
	cfg.StateDir = expandHome(cfg.StateDir)
	if cfg.PresetsDir != "" {
		cfg.PresetsDir = expandHome(cfg.PresetsDir)
	}
	if cfg.Logging.Directory != "" {
		cfg.Logging.Directory = expandHome(cfg.Logging.Directory)
	}
	return cfg, nil
}

func appConfigPath() string {
	if path := os.Getenv("CODESEARCH_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("codesearch.yaml"); err == nil {
		return "codesearch.yaml"
	}
	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".codesearch", "codesearch.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func applyAppEnvOverrides(cfg *AppConfig) {
	if dir := os.Getenv("CODESEARCH_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	}
	if dir := os.Getenv("CODESEARCH_PRESETS_DIR"); dir != "" {
		cfg.PresetsDir = dir
	}
	if dir := os.Getenv("CODESEARCH_LOG_DIR"); dir != "" {
		cfg.Logging.Directory = dir
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.OTLPEndpoint = endpoint
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		cfg.Telemetry.SentryDSN = dsn
	}
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
