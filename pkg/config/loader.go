package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the loader.
const (
	EnvConfig       = "FSKIT_CONFIG"
	EnvJournal      = "FSKIT_JOURNAL"
	EnvLogLevel     = "FSKIT_LOG_LEVEL"
	EnvWatchBackend = "FSKIT_WATCH_BACKEND"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile decodes a specific file on top of the defaults.
	LoadFromFile(path string) (*Config, error)

	// Path returns the config file Load would read, or "" when none exists.
	Path() string
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, the file named by FSKIT_CONFIG is used, then
// ./fskit.yaml, then ~/.config/fskit/config.yaml.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	explicit := l.explicitPath()
	configPath := explicit
	if configPath == "" {
		configPath = l.findConfigFile()
	}

	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicitly named file must load; a discovered one is optional.
			if explicit != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = fileCfg
		}
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
//
// Keys absent from the file keep their default values, so an explicit zero
// (for example debounce_interval: 0s) is honored.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return cfg, nil
}

// Path implements Loader.Path.
func (l *loader) Path() string {
	if p := l.explicitPath(); p != "" {
		return p
	}
	return l.findConfigFile()
}

func (l *loader) explicitPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return os.Getenv(EnvConfig)
}

// findConfigFile searches for a config file in standard locations.
//
// Searches in order:
// 1. ./fskit.yaml
// 2. ~/.config/fskit/config.yaml
//
// Returns empty string if no config file is found.
func (l *loader) findConfigFile() string {
	candidates := []string{
		"./fskit.yaml",
		DefaultConfigPath(),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// applyEnvVars applies environment variable overrides to the configuration.
//
// Supported environment variables:
//   - FSKIT_JOURNAL: Path to the journal file
//   - FSKIT_LOG_LEVEL: Log level
//   - FSKIT_WATCH_BACKEND: Watch backend
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if journal := os.Getenv(EnvJournal); journal != "" {
		result.Storage.JournalPath = journal
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	if backend := os.Getenv(EnvWatchBackend); backend != "" {
		result.Watch.Backend = strings.ToLower(strings.TrimSpace(backend))
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
