package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/0xmhha/fskit/pkg/journal"
	"github.com/0xmhha/fskit/pkg/watch"
)

// Event rows are streamed, so their columns have fixed widths.
const (
	seqWidth  = 8
	kindWidth = 8
)

// tableFormatter formats output as tables.
type tableFormatter struct {
	config Config
}

// FormatEvent implements Formatter.FormatEvent.
func (f *tableFormatter) FormatEvent(w io.Writer, ev watch.Event) error {
	cells := []string{strconv.FormatUint(ev.Seq, 10), ev.Kind.String(), ev.Path}
	widths := []int{seqWidth, kindWidth, 0}
	if f.config.ShowTimestamps {
		cells = append([]string{ev.Time.Format(timeLayout)}, cells...)
		widths = append([]int{len(timeLayout)}, widths...)
	}
	return f.writeRow(w, cells, widths)
}

// FormatRecords implements Formatter.FormatRecords.
func (f *tableFormatter) FormatRecords(w io.Writer, records []journal.Record) error {
	title := "Journal"
	if len(records) > 0 {
		title = "Journal: " + records[0].Root
	}
	if err := writeHeader(w, title, f.config.Compact); err != nil {
		return err
	}

	header := []string{"Seq", "Kind", "Path"}
	if f.config.ShowTimestamps {
		header = append(header, "Time")
	}

	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = []string{strconv.FormatUint(rec.Seq, 10), rec.Kind, rec.Path}
		if f.config.ShowTimestamps {
			rows[i] = append(rows[i], rec.Time.Format(timeLayout))
		}
	}

	return f.writeTable(w, header, rows)
}

// FormatStats implements Formatter.FormatStats.
func (f *tableFormatter) FormatStats(w io.Writer, stats watch.Stats) error {
	if err := writeHeader(w, "Watch Engine Statistics", f.config.Compact); err != nil {
		return err
	}

	rows := [][]string{
		{"Backend", stats.Backend},
		{"Watched Directories", strconv.Itoa(stats.Watches)},
		{"Subscriptions", strconv.Itoa(stats.Subscriptions)},
		{"Events Delivered", formatNumber(stats.Delivered)},
		{"Events Dropped", formatNumber(stats.Dropped)},
	}

	return f.writeTable(w, []string{"Metric", "Value"}, rows)
}

// writeTable writes a formatted table.
func (f *tableFormatter) writeTable(w io.Writer, header []string, rows [][]string) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}

	// Calculate column widths.
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	if err := f.writeRow(w, header, widths); err != nil {
		return err
	}

	if !f.config.Compact {
		separator := make([]string, len(header))
		for i, width := range widths {
			separator[i] = strings.Repeat("-", width)
		}
		if err := f.writeRow(w, separator, widths); err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := f.writeRow(w, row, widths); err != nil {
			return err
		}
	}

	if !f.config.Compact {
		_, err := fmt.Fprintln(w)
		return err
	}

	return nil
}

// writeRow writes a single table row. The last cell is never padded.
func (f *tableFormatter) writeRow(w io.Writer, cells []string, widths []int) error {
	gap := "  "
	if f.config.Compact {
		gap = " "
	}

	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString(gap)
		}
		if i == len(cells)-1 {
			b.WriteString(cell)
			continue
		}
		fmt.Fprintf(&b, "%-*s", widths[i], cell)
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
