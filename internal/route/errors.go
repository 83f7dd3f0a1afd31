package route

import "errors"

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current recording state, e.g. starting twice.
	ErrInvalidState = errors.New("invalid recording state")
	// ErrNoActiveRoute is returned by ingest/finalize with nothing in progress.
	ErrNoActiveRoute = errors.New("no active route")
	// ErrTransientIO wraps persistence failures that survived retries.
	ErrTransientIO = errors.New("transient io failure")
)
