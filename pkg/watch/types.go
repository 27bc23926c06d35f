// Package watch turns platform file-system notifications into typed,
// subscription-scoped events.
//
// An Engine owns one notification backend (fsnotify or polling) and a single
// intake loop. Subscriptions register interest in a file or directory,
// optionally recursively, and receive events on their own goroutine through
// a bounded queue. Recursive subscriptions install one backend watch per
// directory and follow directories created later.
//
// Example usage:
//
//	engine, err := watch.New(watch.Config{Backend: watch.BackendAuto}, logger.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	sub, err := engine.Watch("/srv/data", true, watch.KindCreated|watch.KindDeleted,
//	    func(ev watch.Event) {
//	        fmt.Println(ev.Kind, ev.Path)
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sub.Stop()
//
// A file created and deleted inside a brand-new subdirectory before the
// engine has installed that subdirectory's watch can be missed. Handlers
// receiving an overflow event should rescan.
package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xmhha/fskit/pkg/journal"
)

// Kind is a set of event kinds.
type Kind uint8

// Event kinds.
const (
	KindCreated  Kind = 1 << iota // Entry created or moved in
	KindModified                  // File content written
	KindDeleted                   // Entry deleted or moved out
	KindOverflow                  // Events may have been lost; rescan

	AllKinds = KindCreated | KindModified | KindDeleted | KindOverflow
)

var kindNames = []struct {
	kind Kind
	name string
}{
	{KindCreated, "created"},
	{KindModified, "modified"},
	{KindDeleted, "deleted"},
	{KindOverflow, "overflow"},
}

// Has reports whether k contains every kind in other.
func (k Kind) Has(other Kind) bool {
	return other != 0 && k&other == other
}

// String returns the kind names joined with "|".
func (k Kind) String() string {
	if k == 0 {
		return "none"
	}

	var names []string
	for _, kn := range kindNames {
		if k&kn.kind != 0 {
			names = append(names, kn.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return strings.Join(names, "|")
}

// ParseKinds parses a comma or pipe separated list of kind names.
// An empty string and "all" select AllKinds.
func ParseKinds(s string) (Kind, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return AllKinds, nil
	}

	var k Kind
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		field = strings.TrimSpace(field)
		found := false
		for _, kn := range kindNames {
			if kn.name == field {
				k |= kn.kind
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrInvalidKinds, field)
		}
	}
	if k == 0 {
		return 0, ErrInvalidKinds
	}
	return k, nil
}

// Event is delivered to a subscription's handler.
type Event struct {
	// Kind is exactly one event kind.
	Kind Kind

	// Path is the absolute path of the affected entry. Overflow events
	// carry the subscription root.
	Path string

	// Root is the root of the subscription the event was delivered to.
	Root string

	// Seq is the per-root sequence number of the event. Overflow events
	// raised by a full subscription queue carry 0.
	Seq uint64

	// Time is when the engine observed the change.
	Time time.Time
}

// Handler receives events for one subscription. Calls for a single
// subscription never overlap.
type Handler func(Event)

// RawEvent is a notification as reported by a backend.
type RawEvent struct {
	Path string
	Kind Kind

	// Seq is the engine's intake sequence number, assigned when the loop
	// accepts the event.
	Seq uint64

	Time time.Time
}

// BackendKind selects the notification backend.
type BackendKind string

// Supported backends.
const (
	BackendAuto     BackendKind = "auto"
	BackendFsnotify BackendKind = "fsnotify"
	BackendPoll     BackendKind = "poll"
)

// Config contains engine configuration.
type Config struct {
	// Backend selects the notification backend. Auto tries fsnotify and
	// falls back to polling.
	// Default: auto.
	Backend BackendKind

	// PollInterval is the scan interval of the poll backend.
	// Default: 500ms.
	PollInterval time.Duration

	// DebounceInterval is the trailing-edge window for modified events.
	// Repeated writes to one path within the window are delivered once.
	// 0 disables debouncing.
	DebounceInterval time.Duration

	// QueueDepth bounds each subscription's pending events. When full the
	// oldest event is dropped and an overflow event is delivered.
	// Default: 1024.
	QueueDepth int

	// MaxWatches caps the number of watched directories. 0 means no cap.
	MaxWatches int

	// DedupeCacheSize is the number of paths remembered for collapsing
	// repeated created/deleted events.
	// Default: 4096.
	DedupeCacheSize int

	// BackendBuffer is the event buffer size of the backend.
	// Default: 256.
	BackendBuffer int

	// CircuitBreakerThreshold is the number of consecutive backend failures
	// after which the engine stops re-registering watches.
	// Default: 5.
	CircuitBreakerThreshold int

	// Journal, when set, seeds per-root sequence numbers and records every
	// dispatched event.
	Journal journal.Journal

	// Registerer, when set, receives the engine's Prometheus collectors.
	Registerer prometheus.Registerer
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Backend       string `json:"backend"`
	Watches       int    `json:"watches"`
	Subscriptions int    `json:"subscriptions"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
}

// WatchOption customizes a subscription.
type WatchOption func(*watchOptions)

type watchOptions struct {
	excludes []string
}

// WithExclude skips entries matching any of the doublestar patterns, given
// relative to the subscription root with forward slashes. Excluded
// directories are not watched, nor is anything below them.
func WithExclude(patterns ...string) WatchOption {
	return func(o *watchOptions) {
		o.excludes = append(o.excludes, patterns...)
	}
}
