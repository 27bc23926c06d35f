package disposer

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Common errors returned by the disposer package.
var (
	// ErrNilDisposer is returned when materializing a zero Disposer.
	ErrNilDisposer = errors.New("disposer is not initialized")

	// ErrIteratorConsumed is returned when an Iterator is ranged twice.
	ErrIteratorConsumed = errors.New("iterator already consumed")

	// ErrScopeClosed is returned by Scope.Defer after the scope was closed.
	// The release has already run by then.
	ErrScopeClosed = errors.New("scope already closed")
)

// DisposalError reports release failures.
//
// Cause is the primary failure (an acquisition or body error) and may be
// nil when only releases failed. Suppressed holds the release failures in
// the order the releases ran.
type DisposalError struct {
	Cause      error
	Suppressed []error
}

// Error implements the error interface.
func (e *DisposalError) Error() string {
	msgs := make([]string, 0, len(e.Suppressed))
	for _, s := range e.Suppressed {
		msgs = append(msgs, s.Error())
	}
	released := strings.Join(msgs, "; ")

	if e.Cause == nil {
		return fmt.Sprintf("release failed: %s", released)
	}
	return fmt.Sprintf("%v (release failed: %s)", e.Cause, released)
}

// Unwrap exposes the cause and every release failure to errors.Is/As.
func (e *DisposalError) Unwrap() []error {
	errs := make([]error, 0, len(e.Suppressed)+1)
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return append(errs, e.Suppressed...)
}

// ReleasePanicError is recorded when a release action panics.
type ReleasePanicError struct {
	Value any
}

// Error implements the error interface.
func (e *ReleasePanicError) Error() string {
	return fmt.Sprintf("release panicked: %v", e.Value)
}

// PanicError carries a recovered panic value. When a body or acquisition
// panics and a release also fails, the panic is re-raised as a
// *DisposalError whose Cause is a *PanicError.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// repanic re-raises p, carrying release failures along when there are any.
func repanic(p any, released error) {
	if released == nil {
		panic(p)
	}
	panic(combine(&PanicError{Value: p}, released))
}

// combine attaches release failures to the primary error.
func combine(primary, released error) error {
	if released == nil {
		return primary
	}
	return &DisposalError{
		Cause:      primary,
		Suppressed: multierr.Errors(released),
	}
}
