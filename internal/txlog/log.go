package txlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/datahog/internal/model"
)

var (
	// ErrCorrupt indicates an entry whose payload, hash or chain does not
	// verify. It always arrives wrapped in a model replay error.
	ErrCorrupt = errors.New("txlog: corrupt entry")

	// ErrSequenceGap indicates a missing entry between two sequence numbers.
	ErrSequenceGap = errors.New("txlog: sequence gap")

	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("txlog: closed")
)

// Entry is one persisted transaction.
type Entry struct {
	// Seq is the 1-based position in the log.
	Seq int64

	// Hash is the transaction's content address.
	Hash model.U256

	// Chain is ChainHash(previous Chain, Hash); the first entry chains
	// from the zero hash.
	Chain model.U256

	// Tx is the decoded transaction.
	Tx model.Transaction
}

// Log is an append-only transaction log.
type Log interface {
	// Append persists tx at the end of the log. Appending a transaction
	// whose hash is already present is a no-op that returns the existing
	// entry.
	Append(ctx context.Context, tx model.Transaction) (Entry, error)

	// ReadAfter returns up to limit verified entries with Seq > after, in
	// sequence order. limit <= 0 means no limit.
	ReadAfter(ctx context.Context, after int64, limit int) ([]Entry, error)

	// LastSeq returns the sequence number of the newest entry, or 0.
	LastSeq(ctx context.Context) (int64, error)

	// Close releases the backend.
	Close() error
}

// Backend names a Log implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is sqlite or badger. Empty means sqlite.
	Backend Backend

	// Path is the SQLite file or the Badger directory.
	Path string

	// InMemory opens a Badger log without disk persistence. SQLite
	// ignores it; use ":memory:" as Path instead.
	InMemory bool

	// Logger receives backend diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Open opens the configured backend.
func Open(cfg Config) (Log, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		return OpenSQLite(cfg.Path)
	case BackendBadger:
		return OpenBadger(BadgerConfig{
			Path:       cfg.Path,
			InMemory:   cfg.InMemory,
			SyncWrites: !cfg.InMemory,
			Logger:     cfg.Logger,
		})
	}
	return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
}

// ReadAll returns every entry in the log.
func ReadAll(ctx context.Context, l Log) ([]Entry, error) {
	return l.ReadAfter(ctx, 0, 0)
}

// Transactions extracts the transactions from entries, in log order.
func Transactions(entries []Entry) []model.Transaction {
	txs := make([]model.Transaction, len(entries))
	for i, e := range entries {
		txs[i] = e.Tx
	}
	return txs
}
