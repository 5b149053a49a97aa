package worldview

import (
	"context"
	"fmt"

	"github.com/roach88/datahog/internal/model"
)

// UpdateNode writes node's current fields as a create record from the
// local source. A tombstoned node is written as a delete. The node's edge
// set and history are ignored.
func (w *WorldView) UpdateNode(ctx context.Context, node model.Node) error {
	rec := model.CreateNode(node)
	if node.Deleted {
		rec = model.DeleteNode(node.ID)
	}
	tx, err := model.NewTransactionAt(w.clock.Now(), w.local, rec)
	if err != nil {
		return err
	}
	return w.Submit(ctx, tx)
}

// UpdateEdge writes edge's current fields as a create record from the
// local source. A tombstoned edge is written as a delete.
func (w *WorldView) UpdateEdge(ctx context.Context, edge model.Edge) error {
	rec := model.CreateEdge(edge)
	if edge.Deleted {
		rec = model.DeleteEdge(edge.ID)
	}
	tx, err := model.NewTransactionAt(w.clock.Now(), w.local, rec)
	if err != nil {
		return err
	}
	return w.Submit(ctx, tx)
}

// Submit applies tx and, when write-back is configured, persists it. A
// write-back failure is returned but the transaction stays applied in
// memory.
func (w *WorldView) Submit(ctx context.Context, tx model.Transaction) error {
	out, err := w.apply(tx)
	if err != nil {
		return err
	}
	if w.writeBack == nil || out == outcomeDuplicate {
		return nil
	}
	if err := w.writeBack.AddTx(ctx, []model.Transaction{tx}); err != nil {
		w.logger.Error("write-back failed",
			"ts", tx.Timestamp,
			"source", tx.Source.Short(),
			"err", err)
		return fmt.Errorf("write back: %w", err)
	}
	return nil
}
