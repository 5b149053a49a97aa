// Package source defines the Source contract and its implementations.
//
// A Source is a pull-based transaction producer. Each GetUpdates call
// returns only transactions not previously returned by that Source
// instance; the cursor lives in the Source, not in the caller.
//
// Implementations:
//   - DiskSource: maps a directory tree onto label and container nodes
//   - LogSource: replays and appends to a durable txlog.Log
//   - StaticSource: delivers a fixed batch once
package source

import (
	"context"

	"github.com/roach88/datahog/internal/model"
)

// Source produces transactions.
type Source interface {
	// ID returns the source's unique identifier.
	ID() model.SourceID

	// Name returns a human-readable name for logs and status reports.
	Name() string

	// GetUpdates returns transactions not yet returned by this instance.
	// I/O failures are reported as model source-i/o errors; log
	// corruption is reported as a model replay error.
	GetUpdates(ctx context.Context) ([]model.Transaction, error)
}

// Writer is implemented by sources that accept transactions for
// persistence.
type Writer interface {
	AddTx(ctx context.Context, txs []model.Transaction) error
}

// Notifier is implemented by sources that can signal new data, so the
// polling loop does not have to wait for its next tick.
type Notifier interface {
	// Changes returns a channel that receives a value whenever new
	// updates may be available. Signals are coalesced.
	Changes() <-chan struct{}
}

// Domain prefixes for identifiers minted by sources.
const (
	domainDiskNode = "datahog/disk/node/v1"
	domainDiskEdge = "datahog/disk/edge/v1"
)

// SourceIDFor derives a stable SourceID from a source type and name.
func SourceIDFor(kind, name string) model.SourceID {
	return model.SourceIDFromContent(model.DomainSource, []byte(kind), []byte(name))
}
