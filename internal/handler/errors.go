package handler

import "errors"

var (
	// ErrUnsupportedScheme is returned when a reference resolves to a URL
	// that is not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrInvalidReference is returned when a reference cannot be parsed.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrPanic wraps a panic recovered while resolving a reference.
	ErrPanic = errors.New("panic while resolving reference")

	// ErrAbandoned is the resolution of a future that was finished without
	// ever being resolved.
	ErrAbandoned = errors.New("request finished without resolution")
)
