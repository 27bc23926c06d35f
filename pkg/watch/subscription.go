package watch

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
)

// Subscription is a registered interest in a path.
//
// Its handler runs on the subscription's own goroutine, one event at a
// time. Stop must not be called from the subscription's own handler.
type Subscription struct {
	id        uint64
	root      string
	isDir     bool
	recursive bool
	kinds     Kind
	excludes  []string
	handler   Handler
	engine    *Engine

	queue    *queue
	invokeMu sync.Mutex
	live     atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	// dirs holds the directories this subscription references in the
	// registry. Owned by the intake loop.
	dirs map[string]struct{}
}

// Root returns the absolute path the subscription was created for.
func (s *Subscription) Root() string { return s.root }

// Recursive reports whether descendants below direct children are in scope.
func (s *Subscription) Recursive() bool { return s.recursive }

// Kinds returns the event kinds delivered to the handler.
func (s *Subscription) Kinds() Kind { return s.kinds }

// Live reports whether the subscription still delivers events.
func (s *Subscription) Live() bool { return s.live.Load() }

// Stop ends the subscription. It waits for an in-flight handler call and
// for the dispatch goroutine to exit. Stop is idempotent.
func (s *Subscription) Stop() {
	s.engine.Stop(s)
}

// matches reports whether path is in the subscription's scope: the root
// itself, a direct child of a directory root, or any non-excluded
// descendant of a recursive root.
func (s *Subscription) matches(path string) bool {
	if !s.isDir {
		return path == s.root
	}

	rel, ok := relative(s.root, path)
	if !ok {
		return false
	}
	if rel == "" {
		return true
	}
	if !s.recursive && strings.ContainsRune(rel, filepath.Separator) {
		return false
	}
	return !s.excluded(rel)
}

// excluded reports whether rel, or a directory above it, matches an
// exclude pattern.
func (s *Subscription) excluded(rel string) bool {
	if len(s.excludes) == 0 || rel == "" {
		return false
	}

	rel = filepath.ToSlash(rel)
	for _, pattern := range s.excludes {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		for i := 0; i < len(rel); i++ {
			if rel[i] != '/' {
				continue
			}
			if ok, _ := doublestar.Match(pattern, rel[:i]); ok {
				return true
			}
		}
	}
	return false
}

// run delivers queued events until the queue is closed.
func (s *Subscription) run() {
	defer close(s.done)

	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		s.invoke(ev)
	}
}

func (s *Subscription) invoke(ev Event) {
	s.invokeMu.Lock()
	defer s.invokeMu.Unlock()

	if !s.live.Load() || s.engine.closing() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.engine.logger.Error("handler panicked",
				"root", s.root,
				"path", ev.Path,
				"kind", ev.Kind.String(),
				"panic", r)
		}
	}()

	s.handler(ev)
	s.engine.delivered.Add(1)
	s.engine.metrics.delivered.Inc()
}

// markStopped marks the subscription not-live once any in-flight handler
// call has returned.
func (s *Subscription) markStopped() {
	s.invokeMu.Lock()
	s.live.Store(false)
	s.invokeMu.Unlock()
}

// join discards queued events and waits for the dispatch goroutine.
func (s *Subscription) join() {
	s.queue.close()
	<-s.done
}
