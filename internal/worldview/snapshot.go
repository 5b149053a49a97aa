package worldview

import (
	"slices"

	"github.com/roach88/datahog/internal/model"
)

type snapshotNode struct {
	model.Node
	EdgeSet []model.EdgeID `json:"edges"`
}

type snapshot struct {
	Nodes []snapshotNode `json:"nodes"`
	Edges []model.Edge   `json:"edges"`
}

// Snapshot returns the canonical JSON encoding of every node and edge,
// history and edge sets included. Two views built from the same
// transactions produce identical bytes whatever order they were applied in.
func (w *WorldView) Snapshot() ([]byte, error) {
	w.mu.RLock()
	snap := snapshot{
		Nodes: make([]snapshotNode, 0, len(w.st.nodes)),
		Edges: make([]model.Edge, 0, len(w.st.edges)),
	}
	for _, n := range w.st.nodes {
		snap.Nodes = append(snap.Nodes, snapshotNode{Node: n, EdgeSet: n.EdgeIDs()})
	}
	for _, e := range w.st.edges {
		snap.Edges = append(snap.Edges, e)
	}
	w.mu.RUnlock()

	slices.SortFunc(snap.Nodes, func(a, b snapshotNode) int { return a.ID.Compare(b.ID) })
	slices.SortFunc(snap.Edges, func(a, b model.Edge) int { return a.ID.Compare(b.ID) })
	return model.CanonicalJSON(snap)
}
