// Package export writes a finished mirror to disk.
//
// Every resource with content (Fetched or Done) is written to
// <output>/<local path>. Textual resources are written from their rewritten
// text, so links point at the other local files; binary resources are copied
// byte for byte. Filtered and failed resources have no local file.
//
// A local path is never allowed to leave the output directory. Paths come
// from the namer and are sanitized there, but the check is repeated here
// because this is the only package that touches the filesystem.
package export
