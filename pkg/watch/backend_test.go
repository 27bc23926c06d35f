package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/0xmhha/fskit/pkg/logger"
)

func TestTranslateOp(t *testing.T) {
	tests := []struct {
		name string
		op   fsnotify.Op
		want []Kind
	}{
		{"create", fsnotify.Create, []Kind{KindCreated}},
		{"write", fsnotify.Write, []Kind{KindModified}},
		{"remove", fsnotify.Remove, []Kind{KindDeleted}},
		{"rename", fsnotify.Rename, []Kind{KindDeleted}},
		{"chmod", fsnotify.Chmod, nil},
		{"create and write", fsnotify.Create | fsnotify.Write, []Kind{KindCreated, KindModified}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, translateOp(tt.op))
		})
	}
}

func TestDiffSnapshots(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	t1 := t0.Add(time.Second)
	dir := "/data"

	prev := map[string]entryState{
		"gone.txt":    {modTime: t0, size: 1},
		"same.txt":    {modTime: t0, size: 1},
		"changed.txt": {modTime: t0, size: 1},
		"grown.txt":   {modTime: t0, size: 1},
		"swapped":     {modTime: t0, dir: true},
		"subdir":      {modTime: t0, dir: true},
	}
	next := map[string]entryState{
		"same.txt":    {modTime: t0, size: 1},
		"changed.txt": {modTime: t1, size: 1},
		"grown.txt":   {modTime: t0, size: 9},
		"swapped":     {modTime: t1, size: 3},
		"subdir":      {modTime: t1, dir: true},
		"new.txt":     {modTime: t1, size: 1},
	}

	type change struct {
		kind Kind
		path string
	}
	var got []change
	for _, ev := range diffSnapshots(dir, prev, next) {
		got = append(got, change{ev.Kind, ev.Path})
	}

	assert.Equal(t, []change{
		{KindDeleted, filepath.Join(dir, "gone.txt")},
		{KindModified, filepath.Join(dir, "changed.txt")},
		{KindModified, filepath.Join(dir, "grown.txt")},
		{KindCreated, filepath.Join(dir, "new.txt")},
		{KindDeleted, filepath.Join(dir, "swapped")},
		{KindCreated, filepath.Join(dir, "swapped")},
	}, got)
}

func TestNewBackendUnknown(t *testing.T) {
	_, err := newBackend(Config{Backend: "carrier-pigeon"}, logger.Noop())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestPollBackendLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	b := newPollBackend(10*time.Millisecond, 16, logger.Noop())
	require.NoError(t, b.Add(dir))

	f := filepath.Join(dir, "a.txt")
	touch(t, f)

	select {
	case ev := <-b.Events():
		assert.Equal(t, KindCreated, ev.Kind)
		assert.Equal(t, f, ev.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no event from poll backend")
	}

	require.NoError(t, os.RemoveAll(dir))
	deadline := time.After(5 * time.Second)
	for deleted := false; !deleted; {
		select {
		case ev := <-b.Events():
			deleted = ev.Kind == KindDeleted && ev.Path == dir
		case <-deadline:
			t.Fatal("no deletion from poll backend")
		}
	}

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}

func TestPollBackendAddMissingDir(t *testing.T) {
	b := newPollBackend(time.Hour, 1, logger.Noop())
	defer b.Close()

	err := b.Add(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestRecursiveNestedCreation creates three levels of directories in one
// go and expects every level and the file inside to be reported.
func TestRecursiveNestedCreation(t *testing.T) {
	for _, backend := range []BackendKind{BackendFsnotify, BackendPoll} {
		t.Run(string(backend), func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

			e, err := New(Config{
				Backend:      backend,
				PollInterval: 20 * time.Millisecond,
			}, logger.Noop())
			if err != nil && backend == BackendFsnotify {
				t.Skipf("fsnotify unavailable: %v", err)
			}
			require.NoError(t, err)

			root := t.TempDir()
			c := &collector{}
			_, err = e.Watch(root, true, AllKinds, c.handle)
			require.NoError(t, err)

			a := filepath.Join(root, "a")
			b := filepath.Join(a, "b")
			cdir := filepath.Join(b, "c")
			file := filepath.Join(cdir, "f.txt")
			mkdirs(t, cdir)
			touch(t, file)

			for _, p := range []string{a, b, cdir} {
				c.waitFor(t, KindCreated, p)
			}
			require.Eventually(t, func() bool {
				return c.count(KindCreated, file) > 0 || c.count(KindModified, file) > 0
			}, 5*time.Second, 5*time.Millisecond, "no event for %s", file)
			assert.Equal(t, 4, e.Stats().Watches)

			require.NoError(t, e.Close())
		})
	}
}

func TestStopRemovesOnlyOwnWatches(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e, err := New(Config{Backend: BackendPoll, PollInterval: 10 * time.Millisecond}, logger.Noop())
	require.NoError(t, err)
	defer e.Close()

	root := t.TempDir()
	child := filepath.Join(root, "child")
	mkdirs(t, child)

	outer, inner := &collector{}, &collector{}
	subOuter, err := e.Watch(root, true, AllKinds, outer.handle)
	require.NoError(t, err)
	_, err = e.Watch(child, false, AllKinds, inner.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Stats().Watches)

	subOuter.Stop()
	assert.Equal(t, 1, e.Stats().Watches)

	f := filepath.Join(child, "still-seen.txt")
	touch(t, f)
	inner.waitFor(t, KindCreated, f)
	assert.Zero(t, outer.count(KindCreated, f))
}
