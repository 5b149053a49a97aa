// Package worldview folds transactions from many sources into one
// in-memory graph of nodes and edges.
//
// # Ordering
//
// Transactions are applied in (timestamp, source, hash) order. A
// transaction that arrives after the watermark is applied incrementally. One
// that sorts earlier triggers a rebuild from the applied log, so the
// resulting state never depends on delivery order.
//
// # Atomicity
//
// Each transaction is applied against a staging overlay. Readers never see
// a partly applied transaction: the overlay is either committed whole under
// the write lock or dropped.
//
// # Aliases
//
// Live Equality edges group nodes into alias classes. Each class has a
// canonical ID, its smallest NodeID. Node fields are never merged.
//
// # Sources
//
// AddSource, Sync and Run pull transactions from source.Source
// implementations. A failing source is reported and skipped; only replay
// errors are fatal.
package worldview
