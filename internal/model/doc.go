// Package model defines the core data structures used throughout sitemirror.
//
// This package contains the following main types:
//   - Resource: A node in the crawl graph with its local path and content
//   - Graph: An arena of resources indexed by integer id
//   - Reference: A textual pointer from one resource to another, with the
//     exact spans where it occurs
//   - MirrorReport: The summary of one mirror session
//
// Design decision: Parent and child links are stored as id sets rather than
// pointers. Resources can be shared by several parents and reference cycles are
// common on real sites (page A links page B, B links back to A), so ids keep
// the graph free of ownership questions while preserving its shape.
//
// Design decision: A textual resource keeps the text it was fetched with and a
// set of span replacements. Rewriting a reference only ever touches the spans an
// extractor reported for it, which makes the final text independent of the
// order in which children settle.
package model
