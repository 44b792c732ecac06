// Package crawler drives the mirror: it resolves references to resources,
// fetches each URL at most once per session, and hands fetched resources to
// their content handlers, which recurse back into the crawler for every
// reference they find.
//
// # Architecture
//
// The package is built around two types:
//
//   - Session: The crawl-scoped dedup cache and resource graph. A URL is
//     claimed (inserted as Pending) in a single critical section before any
//     network activity, so concurrent and cyclic discoveries of the same URL
//     converge on one resource.
//   - Mirror: The orchestrator. RequestResource admits, fetches, names and
//     loads one URL; LoadResource dispatches a fetched resource to the handler
//     registered for its content type.
//
// Design decision: The session is passed explicitly to every call rather than
// being held by the Mirror because:
//  1. No state survives between two mirror runs by accident
//  2. One Mirror (with its transport and rate limits) can serve many sessions
//  3. Tests can inspect a session's graph directly
//
// # Collaborators
//
// The Mirror consumes narrow interfaces and has no knowledge of HTTP,
// filesystems or crawl rules:
//
//   - Transport: fetches a URL (see package fetcher)
//   - Namer: assigns a session-unique local path (see package naming)
//   - Admission: decides whether a discovered URL is followed (see package policy)
//
// # Failure handling
//
// Every per-URL failure (filtered, transport error, naming error, panic) ends
// the URL in a terminal state and resolves its future to no resource. The
// referring handler then leaves the original reference text untouched.
// Nothing a single URL does can abort the session.
//
// # Usage
//
//	m := crawler.NewMirror(transport, namer, crawler.WithAdmission(pol))
//	session := crawler.NewSession()
//	roots, err := m.Run(ctx, session, []string{"https://example.com/"})
package crawler
