package watch

import (
	"time"
)

// pendingModify is a modified event waiting out the debounce window.
type pendingModify struct {
	raw   RawEvent
	gen   uint64
	timer *time.Timer
}

// debounceFire is sent to the intake loop when a window closes.
type debounceFire struct {
	path string
	gen  uint64
}

// scheduleModified (re)starts the trailing-edge window for raw.Path.
// Runs on the intake loop.
func (e *Engine) scheduleModified(raw RawEvent) {
	if p, ok := e.pending[raw.Path]; ok {
		p.timer.Stop()
		e.metrics.dropped.WithLabelValues(dropDebounced).Inc()
	}

	e.debounceGen++
	fire := debounceFire{path: raw.Path, gen: e.debounceGen}
	e.pending[raw.Path] = &pendingModify{
		raw: raw,
		gen: fire.gen,
		timer: time.AfterFunc(e.cfg.DebounceInterval, func() {
			select {
			case e.fired <- fire:
			case <-e.quit:
			}
		}),
	}
}

// cancelModified drops a pending modified event for path.
func (e *Engine) cancelModified(path string) {
	if p, ok := e.pending[path]; ok {
		p.timer.Stop()
		delete(e.pending, path)
		e.metrics.dropped.WithLabelValues(dropDebounced).Inc()
	}
}

// flushModified delivers the pending event named by fire unless it was
// replaced or cancelled since the timer was armed.
func (e *Engine) flushModified(fire debounceFire) {
	p, ok := e.pending[fire.path]
	if !ok || p.gen != fire.gen {
		return
	}
	delete(e.pending, fire.path)

	matched := e.matching(p.raw.Path)
	if len(matched) == 0 {
		e.metrics.dropped.WithLabelValues(dropUnmatched).Inc()
		return
	}
	e.deliver(p.raw, matched)
}

// stopPending stops every debounce timer. Called once the loop has exited.
func (e *Engine) stopPending() {
	for path, p := range e.pending {
		p.timer.Stop()
		delete(e.pending, path)
	}
}
