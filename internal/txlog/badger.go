package txlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/datahog/internal/model"
)

// Key layout:
//
//	tx/<seq:%016d>   -> hash(32) | chain(32) | payload
//	hash/<hex>       -> seq (8 bytes, big endian)
//	meta/tail        -> seq (8 bytes) | chain(32)
const (
	txKeyPrefix   = "tx/"
	hashKeyPrefix = "hash/"
	tailKey       = "meta/tail"
)

// BadgerConfig holds configuration for a Badger-backed log.
type BadgerConfig struct {
	// Path is the directory for Badger files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// Logger receives Badger's internal logs. If nil, they are discarded.
	Logger *slog.Logger
}

// BadgerLog stores the transaction log in an embedded Badger database.
//
// Thread-safety: all methods are safe for concurrent use. Appends are
// serialized by a mutex so sequence allocation never races.
type BadgerLog struct {
	mu sync.Mutex
	db *badger.DB
}

var _ Log = (*BadgerLog)(nil)

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens a Badger log at cfg.Path, or in memory.
func OpenBadger(cfg BadgerConfig) (*BadgerLog, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent log")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger log: %w", err)
	}
	return &BadgerLog{db: db}, nil
}

// Close closes the database.
func (l *BadgerLog) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

func txKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%016d", txKeyPrefix, seq))
}

func hashKey(h model.U256) []byte {
	return []byte(hashKeyPrefix + h.String())
}

// Append implements Log.
func (l *BadgerLog) Append(ctx context.Context, tx model.Transaction) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	hash, err := tx.Hash()
	if err != nil {
		return Entry{}, fmt.Errorf("append: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var out Entry
	err = l.db.Update(func(txn *badger.Txn) error {
		if item, err := txn.Get(hashKey(hash)); err == nil {
			// Re-delivered transaction: report its original position.
			seqBytes, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			seq := int64(binary.BigEndian.Uint64(seqBytes))
			raw, err := getRaw(txn, seq)
			if err != nil {
				return err
			}
			out = Entry{Seq: seq, Hash: hash, Chain: raw.Chain, Tx: tx}
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		lastSeq, lastChain, err := readTail(txn)
		if err != nil {
			return err
		}
		raw, err := encode(lastSeq+1, lastChain, tx)
		if err != nil {
			return err
		}

		value := make([]byte, 0, 64+len(raw.Payload))
		value = append(value, raw.Hash[:]...)
		value = append(value, raw.Chain[:]...)
		value = append(value, raw.Payload...)
		if err := txn.Set(txKey(raw.Seq), value); err != nil {
			return err
		}
		if err := txn.Set(hashKey(raw.Hash), binary.BigEndian.AppendUint64(nil, uint64(raw.Seq))); err != nil {
			return err
		}
		tail := binary.BigEndian.AppendUint64(nil, uint64(raw.Seq))
		if err := txn.Set([]byte(tailKey), append(tail, raw.Chain[:]...)); err != nil {
			return err
		}
		out = Entry{Seq: raw.Seq, Hash: raw.Hash, Chain: raw.Chain, Tx: tx}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("append: %w", err)
	}
	return out, nil
}

// ReadAfter implements Log.
func (l *BadgerLog) ReadAfter(ctx context.Context, after int64, limit int) ([]Entry, error) {
	entries := []Entry{}
	err := l.db.View(func(txn *badger.Txn) error {
		v := verifier{seq: after}
		if after > 0 {
			raw, err := getRaw(txn, after)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return model.Replay("log truncated",
					fmt.Errorf("%w: cursor entry %d missing", ErrSequenceGap, after))
			}
			if err != nil {
				return err
			}
			v.chain = raw.Chain
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(txKeyPrefix)
		for it.Seek(txKey(after + 1)); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if limit > 0 && len(entries) >= limit {
				return nil
			}

			item := it.Item()
			var seq int64
			if _, err := fmt.Sscanf(string(item.Key()[len(prefix):]), "%016d", &seq); err != nil {
				return corrupt(v.seq+1, "malformed key %q", item.Key())
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			raw, err := decodeValue(seq, val)
			if err != nil {
				return err
			}
			entry, err := v.next(raw)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		if model.IsReplay(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("read after %d: %w", after, err)
	}
	return entries, nil
}

// LastSeq implements Log.
func (l *BadgerLog) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		seq, _, err = readTail(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

func readTail(txn *badger.Txn) (int64, model.U256, error) {
	var chain model.U256
	item, err := txn.Get([]byte(tailKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, chain, nil
	}
	if err != nil {
		return 0, chain, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, chain, err
	}
	if len(val) != 8+len(chain) {
		return 0, chain, corrupt(0, "malformed tail record")
	}
	copy(chain[:], val[8:])
	return int64(binary.BigEndian.Uint64(val[:8])), chain, nil
}

func getRaw(txn *badger.Txn, seq int64) (rawEntry, error) {
	item, err := txn.Get(txKey(seq))
	if err != nil {
		return rawEntry{}, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return rawEntry{}, err
	}
	return decodeValue(seq, val)
}

func decodeValue(seq int64, val []byte) (rawEntry, error) {
	raw := rawEntry{Seq: seq}
	if len(val) < len(raw.Hash)+len(raw.Chain) {
		return rawEntry{}, corrupt(seq, "short value (%d bytes)", len(val))
	}
	copy(raw.Hash[:], val[:32])
	copy(raw.Chain[:], val[32:64])
	raw.Payload = val[64:]
	return raw, nil
}
