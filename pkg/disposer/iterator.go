package disposer

import (
	"bufio"
	"context"
	"io"
	"iter"
	"sync"

	"go.uber.org/multierr"
)

// Iterator is a lazy, single-pass sequence backed by a Disposer.
//
// The underlying resource is acquired when All is first ranged over and
// released when the range loop finishes, whether by exhaustion, break or
// panic. Errors from acquisition, iteration and release are reported by Err
// once the loop is over.
//
//	it := disposer.Lines(fsio.Open("app.log"))
//	for line := range it.All() {
//	    fmt.Println(line)
//	}
//	if err := it.Err(); err != nil {
//	    return err
//	}
type Iterator[V any] struct {
	open func() (iter.Seq2[V, error], Release, error)

	mu       sync.Mutex
	consumed bool
	release  Release
	err      error
}

// Iterate builds an Iterator over the values items produces from the
// resource acquired by d.
func Iterate[T, V any](d Disposer[T], items func(T) iter.Seq2[V, error]) *Iterator[V] {
	return &Iterator[V]{
		open: func() (iter.Seq2[V, error], Release, error) {
			v, release, err := Acquire(context.Background(), d)
			if err != nil {
				return nil, nil, err
			}
			return items(v), release, nil
		},
	}
}

// Lines iterates over the lines of the reader acquired by d.
func Lines[R io.Reader](d Disposer[R]) *Iterator[string] {
	return Iterate(d, func(r R) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			scanner := bufio.NewScanner(r)
			for scanner.Scan() {
				if !yield(scanner.Text(), nil) {
					return
				}
			}
			if err := scanner.Err(); err != nil {
				yield("", err)
			}
		}
	})
}

// All returns the sequence. It may be ranged over once; later ranges yield
// nothing and Err reports ErrIteratorConsumed.
func (it *Iterator[V]) All() iter.Seq[V] {
	return func(yield func(V) bool) {
		it.mu.Lock()
		if it.consumed {
			it.err = multierr.Append(it.err, ErrIteratorConsumed)
			it.mu.Unlock()
			return
		}
		it.consumed = true
		it.mu.Unlock()

		seq, release, err := it.open()
		if err != nil {
			it.fail(err)
			return
		}

		it.mu.Lock()
		it.release = release
		it.mu.Unlock()
		defer it.finish()

		for v, err := range seq {
			if err != nil {
				it.fail(err)
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Collect drains the iterator into a slice.
func (it *Iterator[V]) Collect() ([]V, error) {
	var out []V
	for v := range it.All() {
		out = append(out, v)
	}
	return out, it.Err()
}

// Err returns the first failure seen by the iterator, with any release
// failures attached as a *DisposalError.
func (it *Iterator[V]) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Close marks a never-ranged iterator as consumed and releases a resource
// still held by an interrupted one. It returns Err.
func (it *Iterator[V]) Close() error {
	it.mu.Lock()
	it.consumed = true
	it.mu.Unlock()

	it.finish()
	return it.Err()
}

func (it *Iterator[V]) fail(err error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.err == nil {
		it.err = err
	}
}

func (it *Iterator[V]) finish() {
	it.mu.Lock()
	release := it.release
	it.release = nil
	it.mu.Unlock()

	if release == nil {
		return
	}

	relErr := release()
	it.mu.Lock()
	it.err = combine(it.err, relErr)
	it.mu.Unlock()
}
