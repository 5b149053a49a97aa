package worldview

import (
	"slices"

	"github.com/roach88/datahog/internal/model"
)

// GetNode returns a copy of the node. Tombstoned nodes are returned with
// Deleted set.
func (w *WorldView) GetNode(id model.NodeID) (model.Node, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.st.nodes[id]
	if !ok {
		return model.Node{}, model.NotFound("node " + id.String())
	}
	return n.Clone(), nil
}

// GetEdge returns a copy of the edge. Tombstoned edges are returned with
// Deleted set.
func (w *WorldView) GetEdge(id model.EdgeID) (model.Edge, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.st.edges[id]
	if !ok {
		return model.Edge{}, model.NotFound("edge " + id.String())
	}
	return e.Clone(), nil
}

// Nodes returns every node ID, tombstones included, in ascending order.
func (w *WorldView) Nodes() []model.NodeID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]model.NodeID, 0, len(w.st.nodes))
	for id := range w.st.nodes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, model.NodeID.Compare)
	return ids
}

// Edges returns every edge ID, tombstones included, in ascending order.
func (w *WorldView) Edges() []model.EdgeID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]model.EdgeID, 0, len(w.st.edges))
	for id := range w.st.edges {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, model.EdgeID.Compare)
	return ids
}

// NodesByKind returns the live nodes of the given kind ordered by ID.
func (w *WorldView) NodesByKind(kind model.NodeKind) []model.Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []model.Node
	for _, n := range w.st.nodes {
		if !n.Deleted && n.Kind == kind {
			out = append(out, n.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Node) int { return a.ID.Compare(b.ID) })
	return out
}

// EdgesOf returns the live edges touching a node ordered by edge ID.
func (w *WorldView) EdgesOf(id model.NodeID) ([]model.Edge, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.st.nodes[id]
	if !ok {
		return nil, model.NotFound("node " + id.String())
	}
	out := make([]model.Edge, 0, len(n.Edges))
	for _, eid := range n.EdgeIDs() {
		out = append(out, w.st.edges[eid].Clone())
	}
	return out, nil
}

// Neighbors returns the IDs of the nodes at the far end of id's live
// edges, deduplicated and sorted. Pass kinds to restrict the edge kinds
// followed.
func (w *WorldView) Neighbors(id model.NodeID, kinds ...model.EdgeKind) ([]model.NodeID, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n, ok := w.st.nodes[id]
	if !ok {
		return nil, model.NotFound("node " + id.String())
	}
	seen := make(map[model.NodeID]struct{})
	for eid := range n.Edges {
		e := w.st.edges[eid]
		if len(kinds) > 0 && !slices.Contains(kinds, e.Kind) {
			continue
		}
		other := e.To
		if other == id {
			other = e.From
		}
		seen[other] = struct{}{}
	}
	out := make([]model.NodeID, 0, len(seen))
	for nid := range seen {
		out = append(out, nid)
	}
	slices.SortFunc(out, model.NodeID.Compare)
	return out, nil
}

// Stats summarizes the view.
type Stats struct {
	Nodes        int             `json:"nodes"`
	LiveNodes    int             `json:"live_nodes"`
	Edges        int             `json:"edges"`
	LiveEdges    int             `json:"live_edges"`
	Transactions int             `json:"transactions"`
	Watermark    model.Timestamp `json:"watermark"`
	AliasClasses int             `json:"alias_classes"`
}

// Stats returns entity and log counts.
func (w *WorldView) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Stats{
		Nodes:        len(w.st.nodes),
		Edges:        len(w.st.edges),
		Transactions: len(w.st.log),
		AliasClasses: len(w.st.aliases.classes),
	}
	for _, n := range w.st.nodes {
		if !n.Deleted {
			s.LiveNodes++
		}
	}
	for _, e := range w.st.edges {
		if !e.Deleted {
			s.LiveEdges++
		}
	}
	if wm, ok := w.st.watermark(); ok {
		s.Watermark = wm.Timestamp
	}
	return s
}

// Transactions returns the applied log in replay order, genesis included.
// Folding it with Replay reproduces the view.
func (w *WorldView) Transactions() []model.Transaction {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]model.Transaction, len(w.st.log))
	for i, ktx := range w.st.log {
		out[i] = ktx.tx
	}
	return out
}
