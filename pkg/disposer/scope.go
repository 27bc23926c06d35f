package disposer

import (
	"sync"

	"go.uber.org/multierr"
)

// Scope is an explicit LIFO arena of pending release actions.
//
// Releases pushed with Defer run in reverse order when Close is called.
// Every release is attempted even when an earlier one fails or panics.
// A Scope is safe for concurrent use; the zero value is ready to use.
type Scope struct {
	mu       sync.Mutex
	releases []Release
	closed   bool
}

// Defer pushes a release action. Deferring on a closed scope runs the
// release immediately and returns ErrScopeClosed, wrapped in a
// *DisposalError when that release fails.
func (s *Scope) Defer(r Release) error {
	if r == nil {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return combine(ErrScopeClosed, runRelease(r))
	}
	s.releases = append(s.releases, r)
	s.mu.Unlock()
	return nil
}

// Len returns the number of pending releases.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Close runs every pending release, newest first, and returns the
// collected release failures. Closing twice is a no-op.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	var errs error
	for i := len(releases) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, runRelease(releases[i]))
	}
	return errs
}

// runRelease converts a release panic into a *ReleasePanicError so the
// remaining releases still run.
func runRelease(r Release) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &ReleasePanicError{Value: p}
		}
	}()
	return r()
}
