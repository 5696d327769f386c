// Package database provides the SQLite archive of crawl runs.
//
// This package implements the ArchiveDB, which stores:
//   - One run row per completed crawl of a post
//   - The flattened comment rows of each run
//
// The history command queries the archive for listing, inspection and
// run-to-run diffing without re-reading artifact files.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
