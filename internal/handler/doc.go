// Package handler extracts embedded references from textual resources,
// resolves them through the mirror, and rewrites them to local paths.
//
// # Components
//
//   - Registry: A fixed table from model.ContentType to Handler. Binary
//     content has no handler and is treated as a leaf.
//   - CSSExtractor: Finds @import and url() references in stylesheet text.
//   - HTMLExtractor: Finds references in tag attributes, style attributes and
//     <style> elements. References are resolved against <base href>, and
//     the href is removed from the local copy.
//   - Future: The handle returned for every requested reference.
//
// # Fan-out
//
// A handler requests every distinct reference in source order, then waits for
// all of them concurrently. As each one settles the parent's text is rewritten
// for that reference only. A reference that is filtered, fails, or panics
// settles as "no resource": its original text stays in place and an event is
// reported to the Observer. Nothing a child does can make its parent fail.
//
// Design decision: The join uses errgroup without a derived context and every
// task returns nil, because:
//  1. One broken image must never cancel the stylesheet that embeds it
//  2. errgroup still gives a single Wait over the whole fan-out set
//  3. Panics are recovered at the task boundary and reported like failures
package handler
