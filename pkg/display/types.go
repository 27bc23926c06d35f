// Package display provides output formatting for watch events and
// journal records.
//
// It supports multiple output formats (table, JSON, simple text). Events
// are written one at a time as they arrive; journal records and engine
// statistics are written in one call.
package display

import (
	"io"
	"time"

	"github.com/0xmhha/fskit/pkg/journal"
	"github.com/0xmhha/fskit/pkg/watch"
)

// Format represents an output format.
type Format string

const (
	// FormatTable displays output in aligned columns.
	FormatTable Format = "table"

	// FormatJSON displays output as JSON, one document per event.
	FormatJSON Format = "json"

	// FormatSimple displays output in simple text format.
	FormatSimple Format = "simple"
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatSimple:
		return f, nil
	default:
		return "", ErrUnknownFormat
	}
}

// Formatter formats and displays watch output.
type Formatter interface {
	// FormatEvent writes a single delivered event.
	FormatEvent(w io.Writer, ev watch.Event) error

	// FormatRecords writes journal records in sequence order.
	FormatRecords(w io.Writer, records []journal.Record) error

	// FormatStats writes an engine statistics snapshot.
	FormatStats(w io.Writer, stats watch.Stats) error
}

// Config contains formatter configuration.
type Config struct {
	// Format specifies the output format.
	// Default: FormatTable.
	Format Format

	// ShowTimestamps enables timestamp display.
	// Default: false.
	ShowTimestamps bool

	// Compact enables compact output (less whitespace).
	// Default: false.
	Compact bool
}

// timeLayout is used for timestamps in text output.
const timeLayout = "2006-01-02 15:04:05.000"

// entry is the JSON shape shared by events and records.
type entry struct {
	Kind string    `json:"kind"`
	Path string    `json:"path"`
	Root string    `json:"root"`
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
}
