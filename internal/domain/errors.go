package domain

import "errors"

var (
	// ErrNotFound means nothing has been persisted yet. Expected on first run.
	ErrNotFound = errors.New("not found")
	// ErrCorrupt means a persisted document could not be decoded.
	ErrCorrupt = errors.New("corrupt document")
	// ErrIO wraps filesystem or database failures while reading or writing.
	ErrIO = errors.New("storage io")
	// ErrRemote wraps any failure reported by the remote source.
	ErrRemote = errors.New("remote failure")

	ErrUnknownCategory  = errors.New("unknown category")
	ErrResourceNotFound = errors.New("resource not found")
	ErrNoRemoteHandle   = errors.New("resource has no remote handle, refetch required")
)
