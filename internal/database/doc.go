// Package database provides SQLite-based storage for imgopt.
//
// This package implements the HistoryDB, which stores:
//   - Run reports with their options and per-site totals
//   - Per-site summaries for trend queries across runs
//   - The optional marker index used instead of sidecar files
//
// The database is a single file under the XDG data directory, opened with
// the CGO-free modernc.org/sqlite driver in WAL mode.
package database
