package policy

import "errors"

var (
	// ErrNoSeedHosts is returned when a Policy is built without any usable seed URL.
	ErrNoSeedHosts = errors.New("no seed hosts")

	// ErrRobotsStatus is returned when robots.txt answers with an unexpected status code.
	ErrRobotsStatus = errors.New("unexpected robots.txt status")
)
