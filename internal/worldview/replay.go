package worldview

import (
	"github.com/roach88/datahog/internal/model"
)

// Replay builds a view by folding txs in key order. Unlike DoTx it is
// strict: the first rejected transaction fails the whole replay with a
// replay error wrapping the cause, and no view is returned. txs may
// include the genesis transaction.
func Replay(txs []model.Transaction, opts ...Option) (*WorldView, error) {
	w := New(opts...)

	all := make([]model.Transaction, 0, len(txs)+1)
	all = append(all, genesis)
	all = append(all, txs...)
	ktxs, err := keyed(all...)
	if err != nil {
		return nil, model.Replay("replay: unencodable transaction", err)
	}
	sortKeyed(ktxs)

	st, err := fold(ktxs)
	if err != nil {
		return nil, model.Replay("replay: transaction rejected", err)
	}
	w.st = st
	w.metrics.size(len(st.nodes), len(st.edges))
	w.logger.Info("replay complete",
		"transactions", len(st.log),
		"nodes", len(st.nodes),
		"edges", len(st.edges))
	return w, nil
}
