package ingest

import "errors"

var (
	// ErrNotReady is returned when the extraction engine has not been
	// initialized or the façade has been closed.
	ErrNotReady = errors.New("memory engine not ready")

	// ErrInvalidInput is returned for requests missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled is returned by reads that lose a race with shutdown.
	ErrCancelled = errors.New("cancelled")
)
