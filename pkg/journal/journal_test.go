package journal

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(root string, from, to uint64) []Record {
	var out []Record
	for seq := from; seq <= to; seq++ {
		out = append(out, Record{
			Root: root,
			Seq:  seq,
			Kind: "created",
			Path: fmt.Sprintf("%s/file-%d", root, seq),
			Time: time.Unix(int64(seq), 0).UTC(),
		})
	}
	return out
}

// implementations runs fn against both journal variants.
func implementations(t *testing.T, retention int, fn func(t *testing.T, j Journal)) {
	t.Run("bolt", func(t *testing.T) {
		j, err := OpenBolt(filepath.Join(t.TempDir(), "journal.db"), Options{
			Retention:     retention,
			FlushInterval: 5 * time.Millisecond,
		})
		require.NoError(t, err)
		defer func() { assert.NoError(t, j.Close()) }()
		fn(t, j)
	})
	t.Run("memory", func(t *testing.T) {
		j := NewMemory(retention)
		defer func() { assert.NoError(t, j.Close()) }()
		fn(t, j)
	})
}

func TestAppendAndSince(t *testing.T) {
	implementations(t, 0, func(t *testing.T, j Journal) {
		for _, rec := range records("/a", 1, 5) {
			require.NoError(t, j.Append(rec))
		}
		for _, rec := range records("/b", 1, 2) {
			require.NoError(t, j.Append(rec))
		}

		got, err := j.Since("/a", 2, 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, uint64(3), got[0].Seq)
		assert.Equal(t, "/a/file-5", got[2].Path)
		assert.True(t, got[0].Time.Equal(time.Unix(3, 0)))

		limited, err := j.Since("/a", 0, 2)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2}, []uint64{limited[0].Seq, limited[1].Seq})

		none, err := j.Since("/missing", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestLastSeqAndRoots(t *testing.T) {
	implementations(t, 0, func(t *testing.T, j Journal) {
		last, err := j.LastSeq("/a")
		require.NoError(t, err)
		assert.Zero(t, last)

		for _, rec := range records("/b", 1, 3) {
			require.NoError(t, j.Append(rec))
		}
		for _, rec := range records("/a", 1, 300) {
			require.NoError(t, j.Append(rec))
		}

		last, err = j.LastSeq("/a")
		require.NoError(t, err)
		assert.Equal(t, uint64(300), last)

		roots, err := j.Roots()
		require.NoError(t, err)
		assert.Equal(t, []string{"/a", "/b"}, roots)
	})
}

func TestRetentionTrimsOldest(t *testing.T) {
	implementations(t, 4, func(t *testing.T, j Journal) {
		for _, rec := range records("/r", 1, 10) {
			require.NoError(t, j.Append(rec))
		}

		got, err := j.Since("/r", 0, 0)
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, uint64(7), got[0].Seq)
		assert.Equal(t, uint64(10), got[3].Seq)
	})
}

func TestAppendRejectsEmptyRoot(t *testing.T) {
	implementations(t, 0, func(t *testing.T, j Journal) {
		assert.ErrorIs(t, j.Append(Record{Seq: 1}), ErrEmptyRoot)
	})
}

func TestUseAfterClose(t *testing.T) {
	j, err := OpenBolt(filepath.Join(t.TempDir(), "journal.db"), Options{})
	require.NoError(t, err)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(records("/a", 1, 1)[0]), ErrJournalClosed)
	_, err = j.LastSeq("/a")
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	err := Resource(path, Options{}).Run(func(j Journal) error {
		for _, rec := range records("/p", 1, 42) {
			if err := j.Append(rec); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = Resource(path, Options{}).Run(func(j Journal) error {
		last, err := j.LastSeq("/p")
		require.NoError(t, err)
		assert.Equal(t, uint64(42), last)
		return nil
	})
	require.NoError(t, err)
}

func TestBoltBacklogKeepsLastSeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := OpenBolt(path, Options{QueueSize: 1, BatchSize: 1})
	require.NoError(t, err)

	// An open write transaction stalls the writer, so the queue fills up.
	tx, err := j.(*boltJournal).db.Begin(true)
	require.NoError(t, err)

	var dropped int
	for _, rec := range records("/busy", 1, 10) {
		if err := j.Append(rec); err != nil {
			require.ErrorIs(t, err, ErrBacklogFull)
			dropped++
		}
	}
	assert.GreaterOrEqual(t, dropped, 8)

	require.NoError(t, tx.Rollback())
	require.NoError(t, j.Close())

	err = Resource(path, Options{}).Run(func(j Journal) error {
		last, err := j.LastSeq("/busy")
		require.NoError(t, err)
		assert.Equal(t, uint64(10), last, "dropped records still advance the sequence")
		return nil
	})
	require.NoError(t, err)
}

func TestBoltLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := OpenBolt(path, Options{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, j.Close()) }()

	_, err = OpenBolt(path, Options{Timeout: 50 * time.Millisecond})
	assert.Error(t, err)
}

func TestConcurrentAppend(t *testing.T) {
	implementations(t, 0, func(t *testing.T, j Journal) {
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				root := fmt.Sprintf("/w%d", w)
				for _, rec := range records(root, 1, 50) {
					assert.NoError(t, j.Append(rec))
				}
			}(w)
		}
		wg.Wait()

		roots, err := j.Roots()
		require.NoError(t, err)
		assert.Len(t, roots, 4)
		for _, root := range roots {
			last, err := j.LastSeq(root)
			require.NoError(t, err)
			assert.Equal(t, uint64(50), last)
		}
	})
}
