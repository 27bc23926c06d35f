package journal

import "errors"

// Common errors returned by journals.
var (
	// ErrJournalClosed is returned when using a closed journal.
	ErrJournalClosed = errors.New("journal is closed")

	// ErrBacklogFull is returned by Append when the writer queue is full.
	ErrBacklogFull = errors.New("journal backlog full")

	// ErrEmptyRoot is returned when a record or query names no root.
	ErrEmptyRoot = errors.New("journal root cannot be empty")
)
