// Package naming assigns local file paths to mirrored resources.
//
// Two strategies are available:
//   - by-type groups files by what they are (css/, images/, js/, fonts/,
//     media/, files/) and keeps pages at the root, the entry page (see
//     WithRoot) being index.html
//   - by-path mirrors the URL path, with index.html for directory URLs and
//     a host directory for resources that live on another host
//
// Every assigned path is unique within a Namer, compared case-insensitively
// so a mirror copied to a case-insensitive filesystem stays intact. A path
// that is already taken gets a -1, -2, ... suffix before its extension. A file
// and a directory never share a path either: whichever comes second is
// suffixed.
//
// Design decision: Names are folded to ASCII (é becomes e) and anything
// outside [A-Za-z0-9._-] becomes a dash. Query strings are not kept
// verbatim; a short hash of the query is appended instead, so
// page?id=1 and page?id=2 become different files without "?" in the name.
package naming
