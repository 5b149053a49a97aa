package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/txlog"
)

// LogSource exposes a durable transaction log as a Source. It is also the
// write-back target for locally originated updates.
type LogSource struct {
	id     model.SourceID
	name   string
	log    txlog.Log
	logger *slog.Logger

	mu     sync.Mutex
	cursor int64
}

var (
	_ Source = (*LogSource)(nil)
	_ Writer = (*LogSource)(nil)
)

// NewLogSource wraps l. The cursor starts at the beginning of the log.
func NewLogSource(name string, l txlog.Log, logger *slog.Logger) *LogSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSource{
		id:     SourceIDFor("log", name),
		name:   name,
		log:    l,
		logger: logger,
	}
}

func (s *LogSource) ID() model.SourceID { return s.id }
func (s *LogSource) Name() string { return s.name }

// Cursor returns the sequence number of the last delivered entry.
func (s *LogSource) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// GetUpdates implements Source. Corruption is returned unchanged as a
// replay error; any other failure is a source-i/o error.
func (s *LogSource) GetUpdates(ctx context.Context) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.log.ReadAfter(ctx, s.cursor, 0)
	if err != nil {
		if model.IsReplay(err) {
			return nil, err
		}
		return nil, model.SourceIO(s.name, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	s.cursor = entries[len(entries)-1].Seq
	s.logger.Debug("log entries read",
		"source", s.name,
		"count", len(entries),
		"cursor", s.cursor)
	return txlog.Transactions(entries), nil
}

// AddTx implements Writer. When an appended entry lands directly after the
// cursor it is marked delivered, so the caller does not get its own write
// back on the next poll.
func (s *LogSource) AddTx(ctx context.Context, txs []model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, tx := range txs {
		entry, err := s.log.Append(ctx, tx)
		if err != nil {
			if model.IsMalformed(err) {
				return fmt.Errorf("add tx[%d]: %w", i, err)
			}
			return model.SourceIO(s.name, fmt.Errorf("add tx[%d]: %w", i, err))
		}
		if entry.Seq == s.cursor+1 {
			s.cursor = entry.Seq
		}
	}
	return nil
}
