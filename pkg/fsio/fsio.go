// Package fsio supplies Disposer-based acquire/release pairs for files.
//
// Every helper returns a description of how to obtain a file; nothing is
// opened until the Disposer is used, and the file is closed when the use
// ends, even when the body fails or panics.
//
//	n, err := fsio.Copy("in.log", "out.log")
package fsio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/0xmhha/fskit/pkg/disposer"
)

// ErrTooLarge is returned by ReadBounded when the input exceeds its bound.
var ErrTooLarge = errors.New("input exceeds size limit")

// Open returns a Disposer for path opened read-only.
func Open(path string) disposer.Disposer[*os.File] {
	return disposer.FromCloser(func() (*os.File, error) {
		// #nosec G304: caller-chosen path
		f, err := os.Open(path) // nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		return f, nil
	})
}

// Create returns a Disposer for path created or truncated for writing.
// Missing parent directories are created.
func Create(path string) disposer.Disposer[*os.File] {
	return openFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// Append returns a Disposer for path opened for appending, creating it if
// needed.
func Append(path string) disposer.Disposer[*os.File] {
	return openFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func openFile(path string, flag int) disposer.Disposer[*os.File] {
	return disposer.FromCloser(func() (*os.File, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		// #nosec G304: caller-chosen path
		f, err := os.OpenFile(path, flag, 0o644) // nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		return f, nil
	})
}

// Lines iterates over the lines of path. The file is opened when the
// iteration starts and closed when it ends.
func Lines(path string) *disposer.Iterator[string] {
	return disposer.Lines(Open(path))
}

// Copy copies src to dst and returns the number of bytes written. dst is
// closed before src.
func Copy(src, dst string) (int64, error) {
	pair := disposer.Zip(Open(src), Create(dst))

	return disposer.Use(pair, func(p disposer.Pair[*os.File, *os.File]) (int64, error) {
		n, err := io.Copy(p.Second, p.First)
		if err != nil {
			return n, fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
		return n, nil
	})
}

// ReadBounded reads all of path, failing with ErrTooLarge when it holds
// more than limit bytes.
func ReadBounded(path string, limit int64) ([]byte, error) {
	return disposer.Use(Open(path), func(f *os.File) ([]byte, error) {
		data, err := io.ReadAll(io.LimitReader(f, limit+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if int64(len(data)) > limit {
			return nil, fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, limit)
		}
		return data, nil
	})
}
