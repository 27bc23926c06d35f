package journal

import (
	"sort"
	"sync"
)

// memoryJournal implements Journal using in-memory slices.
type memoryJournal struct {
	mu        sync.RWMutex
	records   map[string][]Record
	retention int
	closed    bool
}

// NewMemory creates an in-memory journal.
//
// Useful for testing or when persistence is not needed. A retention of 0
// keeps everything.
func NewMemory(retention int) Journal {
	return &memoryJournal{
		records:   make(map[string][]Record),
		retention: retention,
	}
}

// Append implements Journal.Append.
func (m *memoryJournal) Append(rec Record) error {
	if rec.Root == "" {
		return ErrEmptyRoot
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrJournalClosed
	}

	recs := append(m.records[rec.Root], rec)
	if m.retention > 0 && len(recs) > m.retention {
		recs = append([]Record(nil), recs[len(recs)-m.retention:]...)
	}
	m.records[rec.Root] = recs
	return nil
}

// Since implements Journal.Since.
func (m *memoryJournal) Since(root string, after uint64, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrJournalClosed
	}

	var out []Record
	for _, rec := range m.records[root] {
		if rec.Seq <= after {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LastSeq implements Journal.LastSeq.
func (m *memoryJournal) LastSeq(root string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrJournalClosed
	}

	recs := m.records[root]
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[len(recs)-1].Seq, nil
}

// Roots implements Journal.Roots.
func (m *memoryJournal) Roots() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrJournalClosed
	}

	roots := make([]string, 0, len(m.records))
	for root := range m.records {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots, nil
}

// Close implements Journal.Close.
func (m *memoryJournal) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
