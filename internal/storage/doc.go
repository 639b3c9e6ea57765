// Package storage keeps an audit trail of completed sends.
//
// Backends:
//   - file: append-only JSON Lines
//   - sqlite: a single table in a SQLite database (modernc.org/sqlite, no cgo)
package storage
