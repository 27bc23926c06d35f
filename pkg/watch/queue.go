package watch

import (
	"sync"
	"time"
)

// queue is a bounded FIFO of events for one subscription.
//
// When full, push drops the oldest event and pop reports a synthetic
// overflow event before the next queued one.
type queue struct {
	root     string
	depth    int
	overflow bool // deliver synthetic overflow events

	mu      sync.Mutex
	items   []Event
	lost    bool
	closed  bool
	pending chan struct{}
}

func newQueue(root string, depth int, overflow bool) *queue {
	return &queue{
		root:     root,
		depth:    depth,
		overflow: overflow,
		items:    make([]Event, 0, min(depth, 64)),
		pending:  make(chan struct{}, 1),
	}
}

// push appends ev and reports whether an older event was dropped for it.
func (q *queue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	dropped := false
	if len(q.items) >= q.depth {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		q.lost = true
		dropped = true
	}
	q.items = append(q.items, ev)

	select {
	case q.pending <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return dropped
}

// pop blocks until an event is available. It returns false once the queue
// is closed; events still queued at that point are discarded.
func (q *queue) pop() (Event, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Event{}, false
		}
		if q.lost {
			q.lost = false
			if q.overflow {
				q.mu.Unlock()
				return Event{Kind: KindOverflow, Path: q.root, Root: q.root, Time: time.Now()}, true
			}
		}
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		q.mu.Unlock()

		<-q.pending
	}
}

// len returns the number of queued events.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	close(q.pending)
	q.mu.Unlock()
}
