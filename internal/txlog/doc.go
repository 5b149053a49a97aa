// Package txlog provides the durable, append-only transaction log.
//
// Every entry stores the canonical JSON of one transaction, its content
// hash, and a chain hash linking it to the previous entry. Reads verify all
// three plus sequence continuity, so a truncated, reordered or edited log
// fails fast with a replay error instead of yielding a partial history.
//
// Two backends implement Log:
//   - SQLite (default): single file, WAL mode
//   - Badger: embedded LSM key-value store, optionally in memory
package txlog
