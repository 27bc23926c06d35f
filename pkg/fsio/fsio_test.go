package fsio_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/fskit/pkg/fsio"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestOpenClosesAfterUse(t *testing.T) {
	path := writeFile(t, "in.txt", "hello")

	var held *os.File
	err := fsio.Open(path).Run(func(f *os.File) error {
		held = f
		return nil
	})
	require.NoError(t, err)

	_, err = held.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOpenMissing(t *testing.T) {
	err := fsio.Open(filepath.Join(t.TempDir(), "missing")).Run(func(*os.File) error {
		t.Fatal("body must not run")
		return nil
	})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCreateAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	write := func(f *os.File, s string) error {
		_, err := f.WriteString(s)
		return err
	}

	require.NoError(t, fsio.Create(path).Run(func(f *os.File) error { return write(f, "one\n") }))
	require.NoError(t, fsio.Append(path).Run(func(f *os.File) error { return write(f, "two\n") }))

	data, err := os.ReadFile(path) // nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	require.NoError(t, fsio.Create(path).Run(func(f *os.File) error { return write(f, "fresh\n") }))
	data, err = os.ReadFile(path) // nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(data))
}

func TestLines(t *testing.T) {
	path := writeFile(t, "lines.txt", "a\nb\nc")

	lines, err := fsio.Lines(path).Collect()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestLinesMissingFile(t *testing.T) {
	lines, err := fsio.Lines(filepath.Join(t.TempDir(), "missing")).Collect()
	assert.Empty(t, lines)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopy(t *testing.T) {
	content := strings.Repeat("fskit ", 1000)
	src := writeFile(t, "src.txt", content)
	dst := filepath.Join(t.TempDir(), "copy", "dst.txt")

	n, err := fsio.Copy(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	data, err := os.ReadFile(dst) // nolint:gosec
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestCopyMissingSourceCreatesNothing(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "dst.txt")

	_, err := fsio.Copy(filepath.Join(t.TempDir(), "missing"), dst)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(dst)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadBounded(t *testing.T) {
	path := writeFile(t, "bounded.txt", "0123456789")

	data, err := fsio.ReadBounded(path, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = fsio.ReadBounded(path, 9)
	assert.ErrorIs(t, err, fsio.ErrTooLarge)
}
