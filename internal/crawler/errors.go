package crawler

import "errors"

// Resolution errors. They are recorded on the resource and on its future;
// they never propagate out of a handler.
var (
	// ErrFilteredByPolicy marks a URL the admission policy rejected.
	// It is an intentional skip, not a failure.
	ErrFilteredByPolicy = errors.New("filtered by admission policy")

	// ErrTransportFailure wraps an error returned by the transport.
	ErrTransportFailure = errors.New("transport failure")

	// ErrNaming wraps an error returned by the filename strategy.
	ErrNaming = errors.New("local path assignment failed")

	// ErrInvalidURL is returned when a URL cannot be normalized.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrPanic wraps a panic recovered while resolving a URL.
	ErrPanic = errors.New("panic while resolving URL")

	// ErrNoSeeds is returned by Run when called without seed URLs.
	ErrNoSeeds = errors.New("no seed URLs")
)
