package watch

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// dedupeWindow bounds how far apart two identical created or deleted
// notifications may be to count as one change.
const dedupeWindow = time.Second

type seen struct {
	kind Kind
	at   time.Time
}

// dedupe collapses repeated created/deleted notifications for a path that
// have no opposite notification in between. State is LRU-bounded.
type dedupe struct {
	cache *lru.Cache[string, seen]
}

func newDedupe(size int) (*dedupe, error) {
	cache, err := lru.New[string, seen](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedupe cache: %w", err)
	}
	return &dedupe{cache: cache}, nil
}

// fresh records raw and reports whether it is a new change.
func (d *dedupe) fresh(raw RawEvent) bool {
	if raw.Kind != KindCreated && raw.Kind != KindDeleted {
		return true
	}

	if last, ok := d.cache.Get(raw.Path); ok && last.kind == raw.Kind && raw.Time.Sub(last.at) <= dedupeWindow {
		return false
	}
	d.cache.Add(raw.Path, seen{kind: raw.Kind, at: raw.Time})
	return true
}

// purge forgets everything, used after an overflow.
func (d *dedupe) purge() {
	d.cache.Purge()
}
