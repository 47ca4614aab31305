// Package database provides SQLite-based storage for mirror runs.
//
// This package implements the MirrorDB, which stores:
//   - One row per finished run with its final statistics and full report
//   - One row per written file for detailed per-run inspection
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
