package watch

import (
	"fmt"

	"github.com/0xmhha/fskit/pkg/logger"
)

// Backend is a platform notification primitive watching single directories.
//
// Add and Remove affect one directory and its direct entries. Overflow of
// the backend's own queue is reported as a RawEvent of KindOverflow; other
// failures arrive on Errors. Implementations are driven by one goroutine at
// a time and must be safe to Close concurrently with event delivery.
type Backend interface {
	// Name identifies the backend variant.
	Name() string

	// Add starts watching dir.
	Add(dir string) error

	// Remove stops watching dir.
	Remove(dir string) error

	// Events delivers notifications.
	Events() <-chan RawEvent

	// Errors delivers non-overflow backend failures.
	Errors() <-chan error

	// Close releases the backend and stops its goroutines.
	Close() error
}

// newBackend selects the backend named by cfg.
func newBackend(cfg Config, log logger.Logger) (Backend, error) {
	switch cfg.Backend {
	case BackendFsnotify:
		return newFsnotifyBackend(cfg.BackendBuffer, log)

	case BackendPoll:
		return newPollBackend(cfg.PollInterval, cfg.BackendBuffer, log), nil

	case BackendAuto, "":
		b, err := newFsnotifyBackend(cfg.BackendBuffer, log)
		if err == nil {
			return b, nil
		}
		log.Warn("fsnotify unavailable, falling back to polling",
			"error", err,
			"poll_interval", cfg.PollInterval)
		return newPollBackend(cfg.PollInterval, cfg.BackendBuffer, log), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
