package worldview

import (
	"slices"

	"github.com/roach88/datahog/internal/model"
)

// aliasIndex maps every node in an alias class to the class's canonical ID
// and each canonical ID to its sorted members. Nodes in no class are absent.
type aliasIndex struct {
	canonical map[model.NodeID]model.NodeID
	classes   map[model.NodeID][]model.NodeID
}

func emptyAliases() *aliasIndex {
	return &aliasIndex{
		canonical: make(map[model.NodeID]model.NodeID),
		classes:   make(map[model.NodeID][]model.NodeID),
	}
}

// buildAliases runs union-find over the live Equality edges. Roots are
// always the smaller ID, so the canonical member is the class minimum
// whatever order the edges are visited in.
func buildAliases(edges map[model.EdgeID]model.Edge) *aliasIndex {
	parent := make(map[model.NodeID]model.NodeID)

	var find func(model.NodeID) model.NodeID
	find = func(x model.NodeID) model.NodeID {
		p, ok := parent[x]
		if !ok {
			parent[x] = x
			return x
		}
		if p == x {
			return x
		}
		root := find(p)
		parent[x] = root
		return root
	}
	union := func(a, b model.NodeID) {
		ra, rb := find(a), find(b)
		switch ra.Compare(rb) {
		case -1:
			parent[rb] = ra
		case 1:
			parent[ra] = rb
		}
	}

	for _, e := range edges {
		if e.Kind == model.EdgeEquality && !e.Deleted {
			union(e.From, e.To)
		}
	}

	idx := emptyAliases()
	for id := range parent {
		root := find(id)
		idx.canonical[id] = root
		idx.classes[root] = append(idx.classes[root], id)
	}
	for _, members := range idx.classes {
		slices.SortFunc(members, model.NodeID.Compare)
	}
	return idx
}

func (a *aliasIndex) canonicalOf(id model.NodeID) model.NodeID {
	if c, ok := a.canonical[id]; ok {
		return c
	}
	return id
}

func (a *aliasIndex) classOf(id model.NodeID) []model.NodeID {
	if members, ok := a.classes[a.canonicalOf(id)]; ok {
		return slices.Clone(members)
	}
	return []model.NodeID{id}
}

// Canonical returns the canonical ID of id's alias class, or id itself when
// it has no aliases.
func (w *WorldView) Canonical(id model.NodeID) model.NodeID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.st.aliases.canonicalOf(id)
}

// Aliases returns every member of id's alias class in ascending order,
// id included.
func (w *WorldView) Aliases(id model.NodeID) []model.NodeID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.st.aliases.classOf(id)
}

// ResolveNode returns the node that stands for id's alias class: the
// canonical member, or the smallest live member when the canonical one is
// tombstoned. A class with no live member resolves to its canonical node.
func (w *WorldView) ResolveNode(id model.NodeID) (model.Node, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, m := range w.st.aliases.classOf(id) {
		if n, ok := w.st.nodes[m]; ok && !n.Deleted {
			return n.Clone(), nil
		}
	}
	n, ok := w.st.nodes[w.st.aliases.canonicalOf(id)]
	if !ok {
		return model.Node{}, model.NotFound("node " + id.String())
	}
	return n.Clone(), nil
}
