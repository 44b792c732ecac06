package pipeline

import "errors"

var (
	// ErrNothingMirrored is returned by the mirror step when no seed could be
	// fetched.
	ErrNothingMirrored = errors.New("no seed could be mirrored")

	// ErrNoGraph is returned by steps that need the resource graph when the
	// mirror step has not run.
	ErrNoGraph = errors.New("report has no resource graph")
)
