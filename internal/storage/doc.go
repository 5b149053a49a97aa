// Package storage provides a directory-like Reader/Writer abstraction.
//
// The same source logic runs against the real filesystem (OSDir) or an
// in-memory emulated directory (MemDir) used for deterministic tests.
// Paths are slices of segments; the empty path is the root.
//
// No caching is done. Callers must not assume repeated reads are cheap.
package storage
