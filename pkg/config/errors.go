package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrInvalidBackend is returned when the watch backend is not recognized.
	ErrInvalidBackend = errors.New("invalid watch backend: must be auto, fsnotify, or poll")

	// ErrInvalidPollInterval is returned when poll interval is <= 0.
	ErrInvalidPollInterval = errors.New("invalid poll interval: must be > 0")

	// ErrInvalidDebounceInterval is returned when debounce interval is < 0.
	ErrInvalidDebounceInterval = errors.New("invalid debounce interval: must be >= 0")

	// ErrInvalidQueueDepth is returned when queue depth is <= 0.
	ErrInvalidQueueDepth = errors.New("invalid queue depth: must be > 0")

	// ErrInvalidMaxWatches is returned when max watches is < 0.
	ErrInvalidMaxWatches = errors.New("invalid max watches: must be >= 0")

	// ErrInvalidDedupeCacheSize is returned when dedupe cache size is <= 0.
	ErrInvalidDedupeCacheSize = errors.New("invalid dedupe cache size: must be > 0")

	// ErrInvalidBackendBuffer is returned when backend buffer is <= 0.
	ErrInvalidBackendBuffer = errors.New("invalid backend buffer: must be > 0")

	// ErrInvalidRetention is returned when journal retention is < 0.
	ErrInvalidRetention = errors.New("invalid journal retention: must be >= 0")

	// ErrInvalidTimeout is returned when the storage timeout is < 0.
	ErrInvalidTimeout = errors.New("invalid storage timeout: must be >= 0")

	// ErrInvalidMetricsAddress is returned when metrics are enabled without an address.
	ErrInvalidMetricsAddress = errors.New("invalid metrics address: required when metrics are enabled")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text or json")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
