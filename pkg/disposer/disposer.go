// Package disposer pairs resource acquisition with guaranteed, ordered release.
//
// A Disposer describes how to acquire a value and how to release it. Nothing
// happens until the Disposer is materialized with Use (or Run, Acquire,
// Iterate). Disposers compose with Map and FlatMap; every stage that was
// acquired successfully is released exactly once, newest first, no matter
// how the scope is left.
//
// Example usage:
//
//	err := disposer.FlatMap(fsio.Open("in.txt"), func(in *os.File) disposer.Disposer[int64] {
//	    return disposer.MapErr(fsio.Create("out.txt"), func(out *os.File) (int64, error) {
//	        return io.Copy(out, in)
//	    })
//	}).Run(func(n int64) error {
//	    fmt.Println("copied", n)
//	    return nil
//	})
//
// out.txt is closed before in.txt, including when the copy fails.
package disposer

import (
	"context"
	"io"
	"sync"
)

// Release is a zero-argument release action.
type Release func() error

// Disposer is an immutable description of a resource and its release.
//
// A Disposer holds no mutable state, so the same value may be used from many
// goroutines at once; every materialization performs its own acquire/release
// cycle.
type Disposer[T any] struct {
	acquire func(ctx context.Context, s *Scope) (T, error)
}

// Pair holds the values of two zipped disposers.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Of wraps an acquisition and its matching release.
//
// The release may be nil for values that need no cleanup.
func Of[T any](acquire func() (T, error), release func(T) error) Disposer[T] {
	return OfContext(func(context.Context) (T, error) {
		return acquire()
	}, release)
}

// OfContext is Of for acquisitions that honor cancellation.
func OfContext[T any](acquire func(context.Context) (T, error), release func(T) error) Disposer[T] {
	return Disposer[T]{
		acquire: func(ctx context.Context, s *Scope) (T, error) {
			var zero T
			if err := ctx.Err(); err != nil {
				return zero, err
			}

			v, err := acquire(ctx)
			if err != nil {
				return zero, err
			}

			if release != nil {
				if err := s.Defer(func() error {
					return release(v)
				}); err != nil {
					return zero, err
				}
			}
			return v, nil
		},
	}
}

// FromCloser wraps an open function whose result is released with Close.
func FromCloser[T io.Closer](open func() (T, error)) Disposer[T] {
	return Of(open, func(c T) error {
		return c.Close()
	})
}

// Pure returns a Disposer for a value with no release obligation.
func Pure[T any](v T) Disposer[T] {
	return Disposer[T]{
		acquire: func(context.Context, *Scope) (T, error) {
			return v, nil
		},
	}
}

// Map transforms the produced value without changing release timing.
func Map[T, U any](d Disposer[T], f func(T) U) Disposer[U] {
	return MapErr(d, func(v T) (U, error) {
		return f(v), nil
	})
}

// MapErr is Map with a fallible transform. A failure counts as an
// acquisition failure of the new stage; upstream stages are still released.
func MapErr[T, U any](d Disposer[T], f func(T) (U, error)) Disposer[U] {
	return Disposer[U]{
		acquire: func(ctx context.Context, s *Scope) (U, error) {
			var zero U
			v, err := d.materialize(ctx, s)
			if err != nil {
				return zero, err
			}
			return f(v)
		},
	}
}

// FlatMap chains a dependent resource.
//
// The outer resource is acquired first, then f is called to describe the
// inner one. Release runs inner first, then outer. When the inner
// acquisition fails the outer resource is still released exactly once.
func FlatMap[T, U any](d Disposer[T], f func(T) Disposer[U]) Disposer[U] {
	return Disposer[U]{
		acquire: func(ctx context.Context, s *Scope) (U, error) {
			var zero U
			v, err := d.materialize(ctx, s)
			if err != nil {
				return zero, err
			}
			return f(v).materialize(ctx, s)
		},
	}
}

// Zip acquires a then b and releases b then a.
func Zip[A, B any](a Disposer[A], b Disposer[B]) Disposer[Pair[A, B]] {
	return FlatMap(a, func(first A) Disposer[Pair[A, B]] {
		return Map(b, func(second B) Pair[A, B] {
			return Pair[A, B]{First: first, Second: second}
		})
	})
}

// Use acquires the whole chain, runs body and releases every acquired stage
// in reverse order before returning.
//
// When no release fails, the body's (or acquisition's) error is returned as
// is. When any release fails, a *DisposalError carrying the primary failure
// and the release failures is returned. A panic in body is re-raised after
// the releases have run; if a release failed too, the re-raised value is a
// *DisposalError whose Cause is a *PanicError holding the original value.
func Use[T, R any](d Disposer[T], body func(T) (R, error)) (R, error) {
	return UseContext(context.Background(), d, body)
}

// UseContext is Use with cancellation checked before every acquisition
// stage. Stages acquired before cancellation was observed are released.
func UseContext[T, R any](ctx context.Context, d Disposer[T], body func(T) (R, error)) (result R, err error) {
	if d.acquire == nil {
		return result, ErrNilDisposer
	}

	scope := &Scope{}
	defer func() {
		if p := recover(); p != nil {
			repanic(p, scope.Close())
		}
		err = combine(err, scope.Close())
	}()

	v, err := d.acquire(ctx, scope)
	if err != nil {
		return result, err
	}
	return body(v)
}

// Run is Use for bodies that produce no value.
func (d Disposer[T]) Run(body func(T) error) error {
	return d.RunContext(context.Background(), body)
}

// RunContext is UseContext for bodies that produce no value.
func (d Disposer[T]) RunContext(ctx context.Context, body func(T) error) error {
	_, err := UseContext(ctx, d, func(v T) (struct{}, error) {
		return struct{}{}, body(v)
	})
	return err
}

// Acquire materializes d outside a lexical scope. The returned release runs
// every stage's release in reverse order; calling it more than once returns
// the first result again. On failure nothing is left to release.
func Acquire[T any](ctx context.Context, d Disposer[T]) (T, Release, error) {
	var zero T
	if d.acquire == nil {
		return zero, nil, ErrNilDisposer
	}

	scope := &Scope{}
	v, err := d.acquireGuarded(ctx, scope)
	if err != nil {
		return zero, nil, combine(err, scope.Close())
	}

	var (
		once   sync.Once
		relErr error
	)
	release := func() error {
		once.Do(func() {
			relErr = scope.Close()
		})
		return relErr
	}
	return v, release, nil
}

// Attach acquires d and pushes its releases onto s, so they run when s is
// closed. Stages acquired before a failure are released immediately.
func Attach[T any](ctx context.Context, s *Scope, d Disposer[T]) (T, error) {
	v, release, err := Acquire(ctx, d)
	if err != nil {
		return v, err
	}
	if err := s.Defer(release); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (d Disposer[T]) materialize(ctx context.Context, s *Scope) (T, error) {
	if d.acquire == nil {
		var zero T
		return zero, ErrNilDisposer
	}
	return d.acquire(ctx, s)
}

// acquireGuarded unwinds s when acquisition panics and re-raises the panic.
func (d Disposer[T]) acquireGuarded(ctx context.Context, s *Scope) (T, error) {
	ok := false
	defer func() {
		if !ok {
			if p := recover(); p != nil {
				repanic(p, s.Close())
			}
		}
	}()
	v, err := d.acquire(ctx, s)
	ok = true
	return v, err
}
