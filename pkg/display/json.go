package display

import (
	"encoding/json"
	"io"

	"github.com/0xmhha/fskit/pkg/journal"
	"github.com/0xmhha/fskit/pkg/watch"
)

// jsonFormatter formats output as JSON.
type jsonFormatter struct {
	config Config
}

func (f *jsonFormatter) encoder(w io.Writer) *json.Encoder {
	encoder := json.NewEncoder(w)
	if !f.config.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder
}

// FormatEvent implements Formatter.FormatEvent. Events are always written
// one per line so the stream can be consumed as JSON Lines.
func (f *jsonFormatter) FormatEvent(w io.Writer, ev watch.Event) error {
	return json.NewEncoder(w).Encode(entry{
		Kind: ev.Kind.String(),
		Path: ev.Path,
		Root: ev.Root,
		Seq:  ev.Seq,
		Time: ev.Time,
	})
}

// FormatRecords implements Formatter.FormatRecords.
func (f *jsonFormatter) FormatRecords(w io.Writer, records []journal.Record) error {
	if records == nil {
		records = []journal.Record{}
	}
	return f.encoder(w).Encode(records)
}

// FormatStats implements Formatter.FormatStats.
func (f *jsonFormatter) FormatStats(w io.Writer, stats watch.Stats) error {
	return f.encoder(w).Encode(stats)
}
