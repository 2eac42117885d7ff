package engine

import "errors"

var (
	// ErrChecksumMismatch means the loaded checkpoint was taken against a
	// different corpus snapshot. Fatal unless the caller requests overwrite.
	ErrChecksumMismatch = errors.New("checkpoint file list checksum mismatch")

	// ErrCheckpointOutOfBounds means the checkpoint references file indices
	// beyond the current corpus. Recoverable: discard and restart fresh.
	ErrCheckpointOutOfBounds = errors.New("checkpoint index out of bounds")

	// ErrScannerMismatch means the checkpoint was written under a different
	// scan strategy, so its position is meaningless to this run. Fatal
	// unless the caller requests overwrite.
	ErrScannerMismatch = errors.New("checkpoint scanner mismatch")

	// ErrNoResults means a query had nothing to rank against.
	ErrNoResults = errors.New("no results")
)
