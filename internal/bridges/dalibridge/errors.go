package dalibridge

import "errors"

// Domain errors for the DALI bridge package.
var (
	// ErrInvalidCommand is returned when a command or request payload does
	// not describe a sendable frame.
	ErrInvalidCommand = errors.New("dalibridge: invalid command")

	// ErrBusy is returned when the work queue is full.
	ErrBusy = errors.New("dalibridge: work queue full")

	// ErrJournalClosed is returned when the journal is queried after Stop.
	ErrJournalClosed = errors.New("dalibridge: journal closed")
)
