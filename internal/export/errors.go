package export

import "errors"

var (
	// ErrPathEscape is returned when a local path resolves outside the output directory.
	ErrPathEscape = errors.New("local path escapes output directory")

	// ErrNoOutputDir is returned when no output directory is configured.
	ErrNoOutputDir = errors.New("no output directory")
)
