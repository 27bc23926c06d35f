package watch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xmhha/fskit/pkg/logger"
)

// fsnotifyBackend implements Backend with inotify, kqueue or
// ReadDirectoryChangesW through fsnotify.
type fsnotifyBackend struct {
	fsw    *fsnotify.Watcher
	logger logger.Logger

	events chan RawEvent
	errors chan error

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newFsnotifyBackend(buffer int, log logger.Logger) (*fsnotifyBackend, error) {
	fsw, err := fsnotify.NewBufferedWatcher(uint(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	b := &fsnotifyBackend{
		fsw:    fsw,
		logger: log,
		events: make(chan RawEvent, buffer),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.forward()

	return b, nil
}

func (b *fsnotifyBackend) Name() string { return string(BackendFsnotify) }

func (b *fsnotifyBackend) Add(dir string) error { return b.fsw.Add(dir) }

func (b *fsnotifyBackend) Remove(dir string) error { return b.fsw.Remove(dir) }

func (b *fsnotifyBackend) Events() <-chan RawEvent { return b.events }

func (b *fsnotifyBackend) Errors() <-chan error { return b.errors }

func (b *fsnotifyBackend) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		if err := b.fsw.Close(); err != nil {
			b.closeErr = fmt.Errorf("failed to close fsnotify watcher: %w", err)
		}
		b.wg.Wait()
	})
	return b.closeErr
}

// forward translates fsnotify events until the backend is closed.
func (b *fsnotifyBackend) forward() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return

		case event, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			for _, kind := range translateOp(event.Op) {
				if !b.emit(RawEvent{Path: event.Name, Kind: kind, Time: time.Now()}) {
					return
				}
			}

		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				b.logger.Warn("fsnotify queue overflow")
				if !b.emit(RawEvent{Kind: KindOverflow, Time: time.Now()}) {
					return
				}
				continue
			}
			select {
			case b.errors <- err:
			case <-b.done:
				return
			}
		}
	}
}

func (b *fsnotifyBackend) emit(ev RawEvent) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}

// translateOp maps an fsnotify op set to event kinds in the order they
// happened. Chmod is not reported. A rename reports the old name as
// deleted; the new name arrives as a separate create.
func translateOp(op fsnotify.Op) []Kind {
	var kinds []Kind
	if op.Has(fsnotify.Create) {
		kinds = append(kinds, KindCreated)
	}
	if op.Has(fsnotify.Write) {
		kinds = append(kinds, KindModified)
	}
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		kinds = append(kinds, KindDeleted)
	}
	return kinds
}
