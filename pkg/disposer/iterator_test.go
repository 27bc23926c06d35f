package disposer_test

import (
	"errors"
	"io"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/fskit/pkg/disposer"
)

// trackedReader records whether it was closed.
type trackedReader struct {
	io.Reader
	closes   int
	closeErr error
}

func (r *trackedReader) Close() error {
	r.closes++
	return r.closeErr
}

func openTracked(content string) (*trackedReader, disposer.Disposer[*trackedReader]) {
	r := &trackedReader{Reader: strings.NewReader(content)}
	return r, disposer.FromCloser(func() (*trackedReader, error) {
		return r, nil
	})
}

func TestLinesExhaustionReleases(t *testing.T) {
	r, d := openTracked("alpha\nbeta\ngamma\n")

	lines, err := disposer.Lines(d).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, lines)
	assert.Equal(t, 1, r.closes)
}

func TestLinesBreakReleases(t *testing.T) {
	r, d := openTracked("1\n2\n3\n4\n")
	it := disposer.Lines(d)

	var seen []string
	for line := range it.All() {
		seen = append(seen, line)
		if len(seen) == 2 {
			break
		}
	}

	require.NoError(t, it.Err())
	assert.Equal(t, []string{"1", "2"}, seen)
	assert.Equal(t, 1, r.closes)

	// Close after an interrupted range must not release again.
	require.NoError(t, it.Close())
	assert.Equal(t, 1, r.closes)
}

func TestIteratorIsSinglePass(t *testing.T) {
	r, d := openTracked("x\ny\n")
	it := disposer.Lines(d)

	first, err := it.Collect()
	require.NoError(t, err)
	assert.Len(t, first, 2)

	var second []string
	for line := range it.All() {
		second = append(second, line)
	}
	assert.Empty(t, second)
	assert.ErrorIs(t, it.Err(), disposer.ErrIteratorConsumed)
	assert.Equal(t, 1, r.closes)
}

func TestIteratorAcquireFailure(t *testing.T) {
	d := disposer.Of(func() (*trackedReader, error) {
		return nil, errAcquire
	}, func(*trackedReader) error {
		t.Fatal("release must not run for a failed acquisition")
		return nil
	})

	lines, err := disposer.Lines(d).Collect()
	assert.Empty(t, lines)
	assert.ErrorIs(t, err, errAcquire)
}

func TestIteratorItemErrorStopsAndReleases(t *testing.T) {
	errItem := errors.New("bad item")
	r, d := openTracked("")

	it := disposer.Iterate(d, func(*trackedReader) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			if !yield(1, nil) {
				return
			}
			if !yield(0, errItem) {
				return
			}
			yield(3, nil)
		}
	})

	got, err := it.Collect()
	assert.Equal(t, []int{1}, got)
	assert.ErrorIs(t, err, errItem)
	assert.Equal(t, 1, r.closes)
}

func TestIteratorReleaseFailureReported(t *testing.T) {
	r, d := openTracked("only\n")
	r.closeErr = errRelease

	lines, err := disposer.Lines(d).Collect()
	assert.Equal(t, []string{"only"}, lines)

	var de *disposer.DisposalError
	require.ErrorAs(t, err, &de)
	assert.Nil(t, de.Cause)
	assert.ErrorIs(t, err, errRelease)
}

func TestIteratorCloseWithoutRange(t *testing.T) {
	acquired := false
	d := disposer.Of(func() (*trackedReader, error) {
		acquired = true
		return &trackedReader{Reader: strings.NewReader("")}, nil
	}, nil)

	it := disposer.Lines(d)
	require.NoError(t, it.Close())
	assert.False(t, acquired)

	for range it.All() {
		t.Fatal("closed iterator must not yield")
	}
	assert.ErrorIs(t, it.Err(), disposer.ErrIteratorConsumed)
}
