package naming

import "errors"

var (
	// ErrUnknownStrategy is returned for a strategy name that is not supported.
	ErrUnknownStrategy = errors.New("unknown naming strategy")

	// ErrInvalidURL is returned when a URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid URL")
)
