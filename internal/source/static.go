package source

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/datahog/internal/model"
)

// StaticSource delivers a fixed batch of transactions on its first
// GetUpdates call and nothing afterwards.
type StaticSource struct {
	id   model.SourceID
	name string

	mu        sync.Mutex
	txs       []model.Transaction
	delivered bool
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource returns a source that delivers txs once.
func NewStaticSource(name string, txs []model.Transaction) *StaticSource {
	return &StaticSource{
		id:   SourceIDFor("static", name),
		name: name,
		txs:  slices.Clone(txs),
	}
}

func (s *StaticSource) ID() model.SourceID { return s.id }
func (s *StaticSource) Name() string { return s.name }

// GetUpdates implements Source.
func (s *StaticSource) GetUpdates(ctx context.Context) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered {
		return nil, nil
	}
	s.delivered = true
	return slices.Clone(s.txs), nil
}
