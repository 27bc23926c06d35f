package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/fskit/pkg/logger"
)

// fakeBackend lets tests inject notifications and inspect watches.
type fakeBackend struct {
	mu      sync.Mutex
	watched map[string]bool
	adds    map[string]int
	failAdd map[string]error
	onAdd   func(dir string)
	closed  bool

	events chan RawEvent
	errs   chan error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		watched: make(map[string]bool),
		adds:    make(map[string]int),
		failAdd: make(map[string]error),
		events:  make(chan RawEvent, 64),
		errs:    make(chan error, 8),
	}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Add(dir string) error {
	f.mu.Lock()
	if err := f.failAdd[dir]; err != nil {
		f.mu.Unlock()
		return err
	}
	f.watched[dir] = true
	f.adds[dir]++
	hook := f.onAdd
	f.mu.Unlock()

	if hook != nil {
		hook(dir)
	}
	return nil
}

// setOnAdd runs hook after every successful Add, once the watch is in place.
func (f *fakeBackend) setOnAdd(hook func(dir string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAdd = hook
}

func (f *fakeBackend) Remove(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, dir)
	return nil
}

func (f *fakeBackend) Events() <-chan RawEvent { return f.events }

func (f *fakeBackend) Errors() <-chan error { return f.errs }

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) isWatched(dir string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[dir]
}

func (f *fakeBackend) addCount(dir string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adds[dir]
}

func (f *fakeBackend) send(path string, kind Kind) {
	f.events <- RawEvent{Path: path, Kind: kind, Time: time.Now()}
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeBackend) {
	t.Helper()

	fb := newFakeBackend()
	e, err := newWithBackend(withDefaults(cfg), logger.Noop(), fb)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, e.Close())
	})
	return e, fb
}

// collector records delivered events.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) count(kind Kind, path string) int {
	n := 0
	for _, ev := range c.snapshot() {
		if ev.Kind == kind && ev.Path == path {
			n++
		}
	}
	return n
}

func (c *collector) waitFor(t *testing.T, kind Kind, path string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.count(kind, path) > 0
	}, 5*time.Second, 5*time.Millisecond, "no %s event for %s", kind, path)
}
