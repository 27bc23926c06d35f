package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/0xmhha/fskit/pkg/disposer"
	"github.com/0xmhha/fskit/pkg/logger"
)

// Bucket names.
var (
	bucketRoots = []byte("roots") // root -> (seq -> Record)
	bucketMarks = []byte("marks") // root -> highest seq appended, stored or not
)

// boltJournal implements Journal using BoltDB with a batching writer.
type boltJournal struct {
	db     *bolt.DB
	logger logger.Logger
	opts   Options

	mu     sync.RWMutex
	closed bool

	queue   chan Record
	flushes chan chan error
	done    chan struct{}

	// marks holds, per root, the highest seq dropped on a full backlog and
	// not yet persisted.
	marksMu sync.Mutex
	marks   map[string]uint64
}

// OpenBolt opens (creating if needed) a bbolt journal at path and starts
// its background writer.
func OpenBolt(path string, opts Options) (Journal, error) {
	opts = opts.withDefaults()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRoots, bucketMarks} {
			if _, createErr := tx.CreateBucketIfNotExists(name); createErr != nil {
				return createErr
			}
		}
		return nil
	}); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			opts.Logger.Error("failed to close journal after initialization error",
				"error", closeErr)
		}
		return nil, fmt.Errorf("failed to create journal buckets: %w", err)
	}

	j := &boltJournal{
		db:      db,
		logger:  opts.Logger,
		opts:    opts,
		queue:   make(chan Record, opts.QueueSize),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
		marks:   make(map[string]uint64),
	}
	go j.run()

	opts.Logger.Info("journal opened",
		"path", path,
		"retention", opts.Retention)

	return j, nil
}

// Resource returns a Disposer that opens the journal on acquisition and
// closes it on release.
func Resource(path string, opts Options) disposer.Disposer[Journal] {
	return disposer.FromCloser(func() (Journal, error) {
		return OpenBolt(path, opts)
	})
}

// Append implements Journal.Append. When the backlog is full the record is
// dropped with ErrBacklogFull, but its seq still counts towards LastSeq.
func (j *boltJournal) Append(rec Record) error {
	if rec.Root == "" {
		return ErrEmptyRoot
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrJournalClosed
	}

	select {
	case j.queue <- rec:
		return nil
	default:
		j.mark(map[string]uint64{rec.Root: rec.Seq})
		return ErrBacklogFull
	}
}

// mark raises the pending high-water marks.
func (j *boltJournal) mark(marks map[string]uint64) {
	j.marksMu.Lock()
	defer j.marksMu.Unlock()
	for root, seq := range marks {
		if seq > j.marks[root] {
			j.marks[root] = seq
		}
	}
}

func (j *boltJournal) takeMarks() map[string]uint64 {
	j.marksMu.Lock()
	defer j.marksMu.Unlock()
	if len(j.marks) == 0 {
		return nil
	}
	marks := j.marks
	j.marks = make(map[string]uint64)
	return marks
}

// Since implements Journal.Since.
func (j *boltJournal) Since(root string, after uint64, limit int) ([]Record, error) {
	if err := j.flush(); err != nil {
		return nil, err
	}

	var out []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoots).Bucket([]byte(root))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		for k, v := c.Seek(seqKey(after + 1)); k != nil; k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// LastSeq implements Journal.LastSeq.
func (j *boltJournal) LastSeq(root string) (uint64, error) {
	if err := j.flush(); err != nil {
		return 0, err
	}

	var last uint64
	err := j.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMarks).Get([]byte(root)); len(v) == 8 {
			last = binary.BigEndian.Uint64(v)
		}
		b := tx.Bucket(bucketRoots).Bucket([]byte(root))
		if b == nil {
			return nil
		}
		if k, _ := b.Cursor().Last(); k != nil {
			last = max(last, binary.BigEndian.Uint64(k))
		}
		return nil
	})
	return last, err
}

// Roots implements Journal.Roots.
func (j *boltJournal) Roots() ([]string, error) {
	if err := j.flush(); err != nil {
		return nil, err
	}

	var roots []string
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).ForEach(func(k, v []byte) error {
			// Nested buckets have a nil value.
			if v == nil {
				roots = append(roots, string(k))
			}
			return nil
		})
	})
	sort.Strings(roots)
	return roots, err
}

// Close implements Journal.Close.
func (j *boltJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done

	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}

	j.logger.Info("journal closed")
	return nil
}

// flush asks the writer to persist everything queued so far.
func (j *boltJournal) flush() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		return ErrJournalClosed
	}

	reply := make(chan error, 1)
	select {
	case j.flushes <- reply:
	case <-j.done:
		return ErrJournalClosed
	}
	return <-reply
}

// run is the background writer. It owns the pending batch.
func (j *boltJournal) run() {
	defer close(j.done)

	ticker := time.NewTicker(j.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, j.opts.BatchSize)
	write := func() error {
		marks := j.takeMarks()
		if len(batch) == 0 && len(marks) == 0 {
			return nil
		}
		err := j.writeBatch(batch, marks)
		if err != nil {
			j.logger.Error("failed to write journal batch",
				"records", len(batch),
				"error", err)
			j.mark(marks)
		}
		batch = batch[:0]
		return err
	}

	for {
		select {
		case rec, ok := <-j.queue:
			if !ok {
				_ = write() // nolint:errcheck // logged in write
				return
			}
			batch = append(batch, rec)
			if len(batch) >= j.opts.BatchSize {
				_ = write() // nolint:errcheck // logged in write
			}

		case reply := <-j.flushes:
			// Drain what is already queued so readers see it.
			for drained := false; !drained; {
				select {
				case rec, ok := <-j.queue:
					if !ok {
						drained = true
						break
					}
					batch = append(batch, rec)
				default:
					drained = true
				}
			}
			reply <- write()

		case <-ticker.C:
			_ = write() // nolint:errcheck // logged in write
		}
	}
}

// writeBatch stores records and raises high-water marks in one
// transaction, then applies retention to every root it touched.
func (j *boltJournal) writeBatch(batch []Record, marks map[string]uint64) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		if err := putMarks(tx.Bucket(bucketMarks), marks); err != nil {
			return err
		}

		roots := tx.Bucket(bucketRoots)
		touched := make(map[string]*bolt.Bucket)

		for _, rec := range batch {
			b, ok := touched[rec.Root]
			if !ok {
				var err error
				b, err = roots.CreateBucketIfNotExists([]byte(rec.Root))
				if err != nil {
					return fmt.Errorf("failed to create root bucket: %w", err)
				}
				touched[rec.Root] = b
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal record: %w", err)
			}
			if err := b.Put(seqKey(rec.Seq), data); err != nil {
				return fmt.Errorf("failed to store record: %w", err)
			}
		}

		if j.opts.Retention <= 0 {
			return nil
		}
		for _, b := range touched {
			if err := trim(b, j.opts.Retention); err != nil {
				return err
			}
		}
		return nil
	})
}

// putMarks stores each mark unless a higher one is already stored.
func putMarks(b *bolt.Bucket, marks map[string]uint64) error {
	for root, seq := range marks {
		if v := b.Get([]byte(root)); len(v) == 8 && binary.BigEndian.Uint64(v) >= seq {
			continue
		}
		if err := b.Put([]byte(root), seqKey(seq)); err != nil {
			return fmt.Errorf("failed to store high-water mark: %w", err)
		}
	}
	return nil
}

// trim deletes records older than the newest keep sequence numbers.
func trim(b *bolt.Bucket, keep int) error {
	c := b.Cursor()
	last, _ := c.Last()
	if last == nil {
		return nil
	}

	newest := binary.BigEndian.Uint64(last)
	if newest <= uint64(keep) {
		return nil
	}
	cutoff := newest - uint64(keep)

	for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.First() {
		if err := c.Delete(); err != nil {
			return fmt.Errorf("failed to trim record: %w", err)
		}
	}
	return nil
}

// seqKey encodes seq big-endian so keys sort numerically.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
