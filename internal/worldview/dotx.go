package worldview

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/datahog/internal/model"
)

// outcome describes what applying a transaction did.
type outcome int

const (
	outcomeApplied outcome = iota + 1
	outcomeDuplicate
	outcomeRebuilt
)

func (o outcome) String() string {
	switch o {
	case outcomeApplied:
		return "applied"
	case outcomeDuplicate:
		return "duplicate"
	case outcomeRebuilt:
		return "rebuilt"
	}
	return "unknown"
}

// DoTx applies one transaction atomically. A transaction already applied is
// accepted again without effect. On error the view is unchanged.
//
// Errors: MalformedTransaction for structural problems, ConstraintViolation
// when a record breaks a state constraint in replay order.
func (w *WorldView) DoTx(tx model.Transaction) error {
	_, err := w.apply(tx)
	return err
}

// Apply is DoTx.
func (w *WorldView) Apply(tx model.Transaction) error { return w.DoTx(tx) }

func (w *WorldView) apply(tx model.Transaction) (outcome, error) {
	out, err := w.applyLocked(tx)
	switch {
	case err != nil:
		w.metrics.rejected(err)
	case out == outcomeDuplicate:
		w.metrics.duplicate()
	default:
		w.metrics.applied(out == outcomeRebuilt)
	}
	return out, err
}

func (w *WorldView) applyLocked(tx model.Transaction) (outcome, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}
	ktxs, err := keyed(tx)
	if err != nil {
		return 0, err
	}
	ktx := ktxs[0]

	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	// Only applyMu holders replace or modify w.st, so it can be read here
	// without the read lock.
	st := w.st
	if st.has(ktx.key.Hash) {
		return outcomeDuplicate, nil
	}

	if wm, ok := st.watermark(); !ok || wm.Compare(ktx.key) < 0 {
		o, err := stage(st, tx)
		if err != nil {
			return 0, err
		}
		w.mu.Lock()
		o.commit(ktx)
		w.metrics.size(len(st.nodes), len(st.edges))
		w.mu.Unlock()
		w.logger.Debug("tx applied",
			"ts", tx.Timestamp,
			"source", tx.Source.Short(),
			"hash", ktx.key.Hash.Short(),
			"records", len(tx.Records))
		return outcomeApplied, nil
	}

	next, err := rebuild(st, ktx)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	w.st = next
	w.metrics.size(len(next.nodes), len(next.edges))
	w.mu.Unlock()
	w.logger.Info("late tx applied by rebuild",
		"ts", tx.Timestamp,
		"source", tx.Source.Short(),
		"hash", ktx.key.Hash.Short(),
		"log_len", len(next.log))
	return outcomeRebuilt, nil
}

// rebuild folds the applied log of st with ktx inserted at its place in
// key order. st is left untouched.
func rebuild(st *state, ktx keyedTx) (*state, error) {
	pos, _ := slices.BinarySearchFunc(st.log, ktx.key, func(e keyedTx, k model.Key) int {
		return e.key.Compare(k)
	})
	txs := make([]keyedTx, 0, len(st.log)+1)
	txs = append(txs, st.log[:pos]...)
	txs = append(txs, ktx)
	txs = append(txs, st.log[pos:]...)

	next, err := fold(txs)
	if err != nil {
		var fe *foldError
		if errors.As(err, &fe) && fe.index != pos {
			return nil, fmt.Errorf("tx %s conflicts with later history: %w", ktx.key.Hash.Short(), err)
		}
		return nil, err
	}
	return next, nil
}
