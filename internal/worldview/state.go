package worldview

import (
	"fmt"
	"slices"

	"github.com/roach88/datahog/internal/model"
)

// keyedTx is a transaction together with its precomputed ordering key.
type keyedTx struct {
	key model.Key
	tx  model.Transaction
}

func keyed(txs ...model.Transaction) ([]keyedTx, error) {
	out := make([]keyedTx, 0, len(txs))
	for _, tx := range txs {
		k, err := model.KeyOf(tx)
		if err != nil {
			return nil, model.Malformed(err)
		}
		out = append(out, keyedTx{key: k, tx: tx})
	}
	return out, nil
}

func sortKeyed(txs []keyedTx) {
	slices.SortFunc(txs, func(a, b keyedTx) int { return a.key.Compare(b.key) })
}

// state is one consistent version of the graph plus the log that
// produced it. A committed state is only mutated under the write lock.
type state struct {
	nodes   map[model.NodeID]model.Node
	edges   map[model.EdgeID]model.Edge
	log     []keyedTx
	seen    map[model.U256]struct{}
	aliases *aliasIndex
}

func newState() *state {
	return &state{
		nodes:   make(map[model.NodeID]model.Node),
		edges:   make(map[model.EdgeID]model.Edge),
		seen:    make(map[model.U256]struct{}),
		aliases: emptyAliases(),
	}
}

func (s *state) has(h model.U256) bool {
	_, ok := s.seen[h]
	return ok
}

// watermark returns the key of the last applied transaction.
func (s *state) watermark() (model.Key, bool) {
	if len(s.log) == 0 {
		return model.Key{}, false
	}
	return s.log[len(s.log)-1].key, true
}

// foldError reports the transaction a fold stopped at.
type foldError struct {
	index int
	tx    keyedTx
	err   error
}

func (e *foldError) Error() string {
	return fmt.Sprintf("tx %d (ts %d, source %s, hash %s): %v",
		e.index, e.tx.key.Timestamp, e.tx.key.Source.Short(), e.tx.key.Hash.Short(), e.err)
}

func (e *foldError) Unwrap() error { return e.err }

// fold builds a fresh state from txs, which must already be in key order.
// Repeated transactions are skipped. The first rejected transaction stops
// the fold.
func fold(txs []keyedTx) (*state, error) {
	st := newState()
	for i, ktx := range txs {
		if st.has(ktx.key.Hash) {
			continue
		}
		o, err := stage(st, ktx.tx)
		if err != nil {
			return nil, &foldError{index: i, tx: ktx, err: err}
		}
		o.commit(ktx)
	}
	return st, nil
}

// stage validates tx and applies every record to a fresh overlay over st.
// st is not modified.
func stage(st *state, tx model.Transaction) (*overlay, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	o := newOverlay(st)
	for i, r := range tx.Records {
		if err := o.apply(tx.Timestamp, r); err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}
	}
	return o, nil
}
