package model

import "errors"

// Resource errors.
var (
	// ErrTypeMismatch is returned when a text operation is attempted on a
	// resource whose content type is not textual.
	ErrTypeMismatch = errors.New("text operation on non-textual resource")

	// ErrUnsupportedType indicates that no handler is registered for a content
	// type. It is not a failure: such resources are leaves of the graph.
	ErrUnsupportedType = errors.New("no handler registered for content type")

	// ErrInvalidTransition is returned when a status change would violate the
	// resource lifecycle (for example leaving a terminal state).
	ErrInvalidTransition = errors.New("invalid resource status transition")

	// ErrResourceNotFound is returned when an id is not present in the graph.
	ErrResourceNotFound = errors.New("resource not found")
)
