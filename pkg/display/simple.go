package display

import (
	"fmt"
	"io"
	"time"

	"github.com/0xmhha/fskit/pkg/journal"
	"github.com/0xmhha/fskit/pkg/watch"
)

// simpleFormatter formats output as simple text.
type simpleFormatter struct {
	config Config
}

// FormatEvent implements Formatter.FormatEvent.
func (f *simpleFormatter) FormatEvent(w io.Writer, ev watch.Event) error {
	return f.writeLine(w, ev.Time, ev.Kind.String(), ev.Path, ev.Seq)
}

// FormatRecords implements Formatter.FormatRecords.
func (f *simpleFormatter) FormatRecords(w io.Writer, records []journal.Record) error {
	for _, rec := range records {
		if err := f.writeLine(w, rec.Time, rec.Kind, rec.Path, rec.Seq); err != nil {
			return err
		}
	}
	return nil
}

// FormatStats implements Formatter.FormatStats.
func (f *simpleFormatter) FormatStats(w io.Writer, stats watch.Stats) error {
	_, err := fmt.Fprintf(w, "Backend: %s | Watches: %d | Subscriptions: %d | Delivered: %s | Dropped: %s\n",
		stats.Backend,
		stats.Watches,
		stats.Subscriptions,
		formatNumber(stats.Delivered),
		formatNumber(stats.Dropped))
	return err
}

func (f *simpleFormatter) writeLine(w io.Writer, at time.Time, kind, path string, seq uint64) error {
	if f.config.ShowTimestamps {
		if _, err := fmt.Fprintf(w, "%s ", at.Format(timeLayout)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s %s (seq %d)\n", kind, path, seq)
	return err
}
