package watch

import (
	"errors"
	"fmt"
)

// Common errors returned by the engine.
var (
	// ErrEngineClosed is returned when using a closed engine.
	ErrEngineClosed = errors.New("watch engine is closed")

	// ErrAlreadyStarted is returned when Start is called on a running engine.
	ErrAlreadyStarted = errors.New("watch engine already started")

	// ErrInvalidKinds is returned for an empty or unknown kind set.
	ErrInvalidKinds = errors.New("invalid event kinds")

	// ErrNilHandler is returned when Watch is given no handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrInvalidPattern is returned for a malformed exclude pattern.
	ErrInvalidPattern = errors.New("invalid exclude pattern")

	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown watch backend")

	// ErrWatchLimit is the cause of a RegistrationError when MaxWatches
	// would be exceeded.
	ErrWatchLimit = errors.New("watch limit reached")

	// ErrCircuitBreakerOpen is logged once backend failures exceed the
	// configured threshold.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

// PathNotFoundError is returned when a watched path does not exist.
type PathNotFoundError struct {
	Path string
	Err  error
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("watch path not found: %s", e.Path)
}

func (e *PathNotFoundError) Unwrap() error { return e.Err }

// RegistrationError is returned when the backend refuses a watch.
// Watches added for the same request have been rolled back.
type RegistrationError struct {
	Path string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register watch for %s: %v", e.Path, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
