// Package journal records delivered file-system events per watched root.
//
// Each root keeps a monotonic sequence of records. The bbolt implementation
// persists them so sequence numbers survive restarts and past events can be
// listed later; the memory implementation serves tests and journal-less runs.
//
// Example usage:
//
//	err := journal.Resource("/var/lib/fskit/journal.db", journal.Options{}).
//	    Run(func(j journal.Journal) error {
//	        last, err := j.LastSeq("/srv/data")
//	        if err != nil {
//	            return err
//	        }
//	        recs, err := j.Since("/srv/data", last-10, 10)
//	        ...
//	    })
package journal

import (
	"time"

	"github.com/0xmhha/fskit/pkg/logger"
)

// Record is one journaled event.
type Record struct {
	// Root is the watched root the event was delivered for.
	Root string `json:"root"`

	// Seq is the per-root sequence number, starting at 1.
	Seq uint64 `json:"seq"`

	// Kind is the event kind name (created, modified, deleted, overflow).
	Kind string `json:"kind"`

	// Path is the absolute path of the affected entry.
	Path string `json:"path"`

	// Time is when the event was observed.
	Time time.Time `json:"time"`
}

// Journal stores records per root.
//
// Implementations are safe for concurrent use.
type Journal interface {
	// Append queues a record. Records for a root must be appended with
	// increasing Seq.
	Append(rec Record) error

	// Since returns up to limit records of root with Seq > after, oldest
	// first. A limit <= 0 returns every remaining record.
	Since(root string, after uint64, limit int) ([]Record, error)

	// LastSeq returns the highest Seq stored for root, or 0 when none.
	LastSeq(root string) (uint64, error)

	// Roots lists the roots that have records, sorted.
	Roots() ([]string, error)

	// Close flushes pending records and releases the store.
	Close() error
}

// Options configures a journal.
type Options struct {
	// Timeout is how long to wait for the database file lock.
	// Default: 1s.
	Timeout time.Duration

	// Retention is the number of records kept per root; older records are
	// trimmed after each batch. 0 keeps everything.
	Retention int

	// QueueSize bounds the records waiting for the background writer.
	// Default: 1024.
	QueueSize int

	// BatchSize is the maximum number of records per write transaction.
	// Default: 128.
	BatchSize int

	// FlushInterval is how long the writer waits to fill a batch.
	// Default: 50ms.
	FlushInterval time.Duration

	// Logger receives writer diagnostics. Default: logger.Noop().
	Logger logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout == 0 {
		o.Timeout = time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 128
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 50 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = logger.Noop()
	}
	return o
}
