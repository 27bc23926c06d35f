// Package config provides configuration management for fskit.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := watch.New(cfg.WatchConfig(), log)
package config

import (
	"time"

	"github.com/0xmhha/fskit/pkg/watch"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Watch.Backend is auto, fsnotify or poll
// - Watch.PollInterval must be > 0
// - Watch.DebounceInterval must be >= 0
// - Watch.QueueDepth, DedupeCacheSize and BackendBuffer must be > 0
// - Watch.MaxWatches must be >= 0 (0 means unlimited)
// - Storage.JournalRetention must be >= 0 (0 keeps everything).
type Config struct {
	// Watch engine settings
	Watch WatchSettings `yaml:"watch"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// WatchSettings contains watch engine settings.
type WatchSettings struct {
	// Notification backend (auto, fsnotify, poll)
	Backend string `yaml:"backend"`

	// Scan interval of the poll backend
	PollInterval time.Duration `yaml:"poll_interval"`

	// Trailing-edge window for modified events (0 disables)
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	// Per-subscription queue depth
	QueueDepth int `yaml:"queue_depth"`

	// Maximum number of directory watches (0 means unlimited)
	MaxWatches int `yaml:"max_watches"`

	// Number of paths remembered for created/deleted dedupe
	DedupeCacheSize int `yaml:"dedupe_cache_size"`

	// Size of the backend event buffer
	BackendBuffer int `yaml:"backend_buffer"`

	// Consecutive backend failures before re-registration stops
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`
}

// StorageConfig contains journal settings.
type StorageConfig struct {
	// Path to the bbolt journal file (empty disables the journal)
	JournalPath string `yaml:"journal_path"`

	// Records kept per root (0 keeps everything)
	JournalRetention int `yaml:"journal_retention"`

	// How long to wait for the journal file lock
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	// Serve /metrics while watching
	Enabled bool `yaml:"enabled"`

	// Listen address of the metrics endpoint
	Address string `yaml:"address"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns the first violated invariant as a sentinel error.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	// Validate watch config
	validBackends := map[string]bool{
		"auto":     true,
		"fsnotify": true,
		"poll":     true,
	}
	if !validBackends[c.Watch.Backend] {
		return ErrInvalidBackend
	}
	if c.Watch.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.Watch.DebounceInterval < 0 {
		return ErrInvalidDebounceInterval
	}
	if c.Watch.QueueDepth <= 0 {
		return ErrInvalidQueueDepth
	}
	if c.Watch.MaxWatches < 0 {
		return ErrInvalidMaxWatches
	}
	if c.Watch.DedupeCacheSize <= 0 {
		return ErrInvalidDedupeCacheSize
	}
	if c.Watch.BackendBuffer <= 0 {
		return ErrInvalidBackendBuffer
	}

	// Validate storage config
	if c.Storage.JournalRetention < 0 {
		return ErrInvalidRetention
	}
	if c.Storage.Timeout < 0 {
		return ErrInvalidTimeout
	}

	// Validate metrics config
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return ErrInvalidMetricsAddress
	}

	// Validate logging config
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// WatchConfig maps the watch section onto the engine configuration.
// The journal and metrics registerer are left for the caller to attach.
func (c *Config) WatchConfig() watch.Config {
	return watch.Config{
		Backend:                 watch.BackendKind(c.Watch.Backend),
		PollInterval:            c.Watch.PollInterval,
		DebounceInterval:        c.Watch.DebounceInterval,
		QueueDepth:              c.Watch.QueueDepth,
		MaxWatches:              c.Watch.MaxWatches,
		DedupeCacheSize:         c.Watch.DedupeCacheSize,
		BackendBuffer:           c.Watch.BackendBuffer,
		CircuitBreakerThreshold: c.Watch.CircuitBreakerThreshold,
	}
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Watch: WatchSettings{
			Backend:                 "auto",
			PollInterval:            500 * time.Millisecond,
			DebounceInterval:        100 * time.Millisecond,
			QueueDepth:              1024,
			MaxWatches:              0,
			DedupeCacheSize:         4096,
			BackendBuffer:           256,
			CircuitBreakerThreshold: 5,
		},
		Storage: StorageConfig{
			JournalPath:      defaultJournalPath(),
			JournalRetention: 10000,
			Timeout:          time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
