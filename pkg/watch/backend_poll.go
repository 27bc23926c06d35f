package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/0xmhha/fskit/pkg/logger"
)

// entryState is what the poll backend remembers about a directory entry.
type entryState struct {
	modTime time.Time
	size    int64
	dir     bool
}

// pollBackend implements Backend by comparing directory snapshots on a
// ticker. It needs no platform support and is the fallback when fsnotify
// cannot be created.
type pollBackend struct {
	interval time.Duration
	logger   logger.Logger

	mu   sync.Mutex
	dirs map[string]map[string]entryState

	events chan RawEvent
	errors chan error

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newPollBackend(interval time.Duration, buffer int, log logger.Logger) *pollBackend {
	b := &pollBackend{
		interval: interval,
		logger:   log,
		dirs:     make(map[string]map[string]entryState),
		events:   make(chan RawEvent, buffer),
		errors:   make(chan error, 10),
		done:     make(chan struct{}),
	}

	b.wg.Add(1)
	go b.run()

	return b
}

func (b *pollBackend) Name() string { return string(BackendPoll) }

// Add snapshots dir so only later changes are reported.
func (b *pollBackend) Add(dir string) error {
	snap, err := scanDir(dir)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.dirs[dir]; !exists {
		b.dirs[dir] = snap
	}
	return nil
}

func (b *pollBackend) Remove(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dirs, dir)
	return nil
}

func (b *pollBackend) Events() <-chan RawEvent { return b.events }

func (b *pollBackend) Errors() <-chan error { return b.errors }

func (b *pollBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.wg.Wait()
	})
	return nil
}

func (b *pollBackend) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			if !b.poll() {
				return
			}
		}
	}
}

// poll scans every watched directory once. It returns false when the
// backend was closed mid-scan.
func (b *pollBackend) poll() bool {
	b.mu.Lock()
	dirs := make([]string, 0, len(b.dirs))
	for dir := range b.dirs {
		dirs = append(dirs, dir)
	}
	b.mu.Unlock()

	// Parents before children.
	sort.Strings(dirs)

	for _, dir := range dirs {
		snap, err := scanDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				b.mu.Lock()
				_, watched := b.dirs[dir]
				delete(b.dirs, dir)
				b.mu.Unlock()
				if watched && !b.emit(RawEvent{Path: dir, Kind: KindDeleted, Time: time.Now()}) {
					return false
				}
				continue
			}
			select {
			case b.errors <- fmt.Errorf("failed to scan %s: %w", dir, err):
			default:
				b.logger.Warn("poll error channel full, dropping error", "path", dir, "error", err)
			}
			continue
		}

		b.mu.Lock()
		prev, watched := b.dirs[dir]
		if watched {
			b.dirs[dir] = snap
		}
		b.mu.Unlock()
		if !watched {
			continue
		}

		for _, ev := range diffSnapshots(dir, prev, snap) {
			if !b.emit(ev) {
				return false
			}
		}
	}
	return true
}

func (b *pollBackend) emit(ev RawEvent) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}

// scanDir records the entries of dir.
func scanDir(dir string) (map[string]entryState, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]entryState, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		snap[entry.Name()] = entryState{
			modTime: info.ModTime(),
			size:    info.Size(),
			dir:     info.IsDir(),
		}
	}
	return snap, nil
}

// diffSnapshots reports the changes between two scans of dir in name order,
// deletions first.
func diffSnapshots(dir string, prev, next map[string]entryState) []RawEvent {
	now := time.Now()
	var events []RawEvent

	for _, name := range sortedNames(prev) {
		if _, ok := next[name]; !ok {
			events = append(events, RawEvent{Path: filepath.Join(dir, name), Kind: KindDeleted, Time: now})
		}
	}

	for _, name := range sortedNames(next) {
		cur := next[name]
		old, ok := prev[name]
		switch {
		case !ok:
			events = append(events, RawEvent{Path: filepath.Join(dir, name), Kind: KindCreated, Time: now})
		case old.dir != cur.dir:
			events = append(events,
				RawEvent{Path: filepath.Join(dir, name), Kind: KindDeleted, Time: now},
				RawEvent{Path: filepath.Join(dir, name), Kind: KindCreated, Time: now})
		case !cur.dir && (!old.modTime.Equal(cur.modTime) || old.size != cur.size):
			events = append(events, RawEvent{Path: filepath.Join(dir, name), Kind: KindModified, Time: now})
		}
	}
	return events
}

func sortedNames(snap map[string]entryState) []string {
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
