// Package storage keeps an optional history of captures and provider
// results.
//
// Drivers:
//   - "file": JSON Lines files next to each other (<prefix>.captures.jsonl,
//     <prefix>.results.jsonl)
//   - "sqlite": a single SQLite database in WAL mode
//
// History is write-only at runtime; nothing is replayed on restart.
package storage
