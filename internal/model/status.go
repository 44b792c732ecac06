package model

// Status is the lifecycle state of a Resource.
//
// The only legal transitions are:
//
//	Pending -> Fetched -> HandlerRunning -> Done
//	Pending -> Filtered
//	Pending -> Failed
//
// Resources without a handler stay at Fetched.
type Status int

const (
	// StatusPending is set the moment a URL is first discovered, before any
	// network activity. Later requests for the same URL converge on it.
	StatusPending Status = iota

	// StatusFetched means content and local path are known.
	StatusFetched

	// StatusFiltered means the admission policy rejected the URL.
	StatusFiltered

	// StatusFailed means the transport (or naming) could not produce content.
	StatusFailed

	// StatusHandlerRunning means references are being extracted and resolved.
	StatusHandlerRunning

	// StatusDone means every reference of the resource has settled.
	StatusDone
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFetched:
		return "fetched"
	case StatusFiltered:
		return "filtered"
	case StatusFailed:
		return "failed"
	case StatusHandlerRunning:
		return "running"
	case StatusDone:
		return "done"
	default:
		return unknownStr
	}
}

// ParseStatus converts a string produced by String back into a Status.
// Unknown strings map to StatusPending.
func ParseStatus(s string) Status {
	for _, st := range []Status{StatusFetched, StatusFiltered, StatusFailed, StatusHandlerRunning, StatusDone} {
		if st.String() == s {
			return st
		}
	}
	return StatusPending
}

// IsTerminal reports whether the resource can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusFiltered || s == StatusFailed || s == StatusDone
}

// IsResolved reports whether the outcome of the fetch is known.
// Fetched and HandlerRunning resources are resolved but not yet terminal.
func (s Status) IsResolved() bool {
	return s != StatusPending
}

// HasContent reports whether a resource in this state carries content
// that can be exported.
func (s Status) HasContent() bool {
	return s == StatusFetched || s == StatusHandlerRunning || s == StatusDone
}

// canTransition reports whether from -> to is a legal lifecycle step.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusFetched || to == StatusFiltered || to == StatusFailed
	case StatusFetched:
		return to == StatusHandlerRunning
	case StatusHandlerRunning:
		return to == StatusDone
	default:
		return false
	}
}
