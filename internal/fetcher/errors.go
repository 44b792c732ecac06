package fetcher

import "errors"

var (
	// ErrStatus is returned for responses that are not 2xx.
	ErrStatus = errors.New("unexpected HTTP status")

	// ErrBodyTooLarge is returned when a response exceeds the body size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrEmptyBody is returned when a response has no body at all.
	ErrEmptyBody = errors.New("empty response body")
)
