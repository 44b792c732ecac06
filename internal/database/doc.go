// Package database stores the history of mirror sessions in SQLite.
//
// Two tables are kept:
//   - sessions: one row per mirror run with its counts and the full report
//   - resources: one row per URL of a run (local path, status, size, sha256)
//
// The resources table makes it possible to compare two runs of the same
// site without loading their reports: which URLs appeared, which vanished,
// and which changed content.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
//  1. The database is a single file in the XDG data directory
//  2. The pure Go driver keeps the binary CGO-free
//  3. WAL mode lets the history command read while a mirror writes
package database
