package worldview

import (
	"slices"
	"sync"

	"github.com/roach88/datahog/internal/model"
)

// pendingTx is a delivered transaction waiting to be applied.
type pendingTx struct {
	keyedTx
	src *registered
}

// pendingQueue buffers transactions from concurrent source polls and
// releases them in key order.
//
// Thread-safety: Push may be called from any goroutine.
type pendingQueue struct {
	mu    sync.Mutex
	items []pendingTx
	seen  map[model.U256]struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{
		items: make([]pendingTx, 0, 64),
		seen:  make(map[model.U256]struct{}),
	}
}

// Push adds a transaction. It returns false when the same transaction is
// already queued.
func (q *pendingQueue) Push(p pendingTx) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.seen[p.key.Hash]; ok {
		return false
	}
	q.seen[p.key.Hash] = struct{}{}
	q.items = append(q.items, p)
	return true
}

// Drain removes and returns every queued transaction in key order.
func (q *pendingQueue) Drain() []pendingTx {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = make([]pendingTx, 0, 64)
	clear(q.seen)
	slices.SortFunc(items, func(a, b pendingTx) int { return a.key.Compare(b.key) })
	return items
}

// Len returns the number of queued transactions.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
