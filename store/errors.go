package store

import "errors"

// Sentinel errors for programmatic matching with errors.Is.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
)
