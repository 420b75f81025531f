// Package config loads the blaze daemon/CLI configuration from YAML,
// applying defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration parsed from blaze.yaml.
type Config struct {
	AppsRoot   string        `yaml:"apps_root"`
	DBPath     string        `yaml:"db_path"`
	ServerPort int           `yaml:"server_port"`
	Debug      bool          `yaml:"debug"`
	AutoFix    AutoFixConfig `yaml:"autofix"`
	Watch      WatchConfig   `yaml:"watch"`
}

// AutoFixConfig tunes the remediation policy engine. The attempt
// ceiling and cooldown window are fixed in the policy itself; the
// config only disables the feature or widens the non-actionable list.
type AutoFixConfig struct {
	Disabled           bool     `yaml:"disabled"`
	ExtraNonActionable []string `yaml:"extra_non_actionable,omitempty"`
}

// WatchConfig tunes the server-log watcher.
type WatchConfig struct {
	LogFile        string `yaml:"log_file"`
	DebounceMillis int    `yaml:"debounce_ms"`
}

// Load reads and parses a configuration from the given YAML file path.
// After parsing, defaults are applied to unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./blaze.yaml, ~/.blaze/config.yaml.
// When none exists, a fully-defaulted config is returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"blaze.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".blaze", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	home, _ := os.UserHomeDir()

	if cfg.AppsRoot == "" {
		cfg.AppsRoot = filepath.Join(home, "blaze-apps")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(home, ".blaze", "blaze.db")
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8484
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 500
	}
}
