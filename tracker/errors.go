package tracker

import "errors"

// Sentinel errors for programmatic matching with errors.Is.
var (
	// ErrCatalogUnavailable indicates the task list could not be
	// enumerated. This is the only fatal condition for a run.
	ErrCatalogUnavailable = errors.New("tracker: catalog unavailable")
)
