package worldview

import (
	"github.com/roach88/datahog/internal/model"
)

// overlay holds the changes of one transaction on top of a base state.
// Reads fall through to the base; every write goes to a clone owned by the
// overlay.
type overlay struct {
	base     *state
	nodes    map[model.NodeID]model.Node
	edges    map[model.EdgeID]model.Edge
	equality bool
}

func newOverlay(base *state) *overlay {
	return &overlay{
		base:  base,
		nodes: make(map[model.NodeID]model.Node),
		edges: make(map[model.EdgeID]model.Edge),
	}
}

// node returns the current version of a node for reading only.
func (o *overlay) node(id model.NodeID) (model.Node, bool) {
	if n, ok := o.nodes[id]; ok {
		return n, true
	}
	n, ok := o.base.nodes[id]
	return n, ok
}

// takeNode returns a node the overlay owns and may modify.
func (o *overlay) takeNode(id model.NodeID) (model.Node, bool) {
	if n, ok := o.nodes[id]; ok {
		return n, true
	}
	n, ok := o.base.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	n = n.Clone()
	o.nodes[id] = n
	return n, true
}

func (o *overlay) takeEdge(id model.EdgeID) (model.Edge, bool) {
	if e, ok := o.edges[id]; ok {
		return e, true
	}
	e, ok := o.base.edges[id]
	if !ok {
		return model.Edge{}, false
	}
	e = e.Clone()
	o.edges[id] = e
	return e, true
}

func (o *overlay) apply(ts model.Timestamp, r model.Record) error {
	if r.Node != nil {
		return o.applyNode(ts, r)
	}
	return o.applyEdge(ts, r)
}

func (o *overlay) applyNode(ts model.Timestamp, r model.Record) error {
	nr := r.Node
	subject := "node " + nr.ID.Short()

	n, ok := o.takeNode(nr.ID)
	switch c := nr.Create; {
	case c != nil && ok:
		if n.Kind != c.Kind {
			return model.ConstraintViolation(subject, "create changes kind from %s to %s", n.Kind, c.Kind)
		}
		n.Label = c.Label
		n.Data = c.Data.Clone()
		n.OpVersion = c.OpVersion
		n.Deleted = false
	case c != nil:
		n = model.NewNode(nr.ID, c.Kind, c.Label, c.Data.Clone())
		n.OpVersion = c.OpVersion
	case !ok:
		return model.ConstraintViolation(subject, "update of unknown node")
	}

	if err := applyNodeUpdates(subject, &n, nr.Updates); err != nil {
		return err
	}
	n.History = append(n.History, model.RecordEvent{Timestamp: ts, Record: r})
	o.nodes[nr.ID] = n
	return nil
}

// applyNodeUpdates applies updates in order. Only a create brings a
// tombstoned node back, so any update reaching one is refused.
func applyNodeUpdates(subject string, n *model.Node, updates []model.NodeUpdate) error {
	for _, u := range updates {
		if n.Deleted {
			return model.ConstraintViolation(subject, "update of deleted node")
		}
		switch u.Op {
		case model.NodeOpLabel:
			n.Label = u.Label
		case model.NodeOpData:
			n.Data = u.Data.Clone()
		case model.NodeOpMigrate:
			n.OpVersion = u.Version
			if err := applyNodeUpdates(subject, n, u.Updates); err != nil {
				return err
			}
		case model.NodeOpDelete:
			n.Deleted = true
		}
	}
	return nil
}

func (o *overlay) applyEdge(ts model.Timestamp, r model.Record) error {
	er := r.Edge
	subject := "edge " + er.ID.Short()

	e, ok := o.takeEdge(er.ID)
	if c := er.Create; c != nil {
		next := model.NewEdge(er.ID, c.Kind, c.From, c.To, c.Validity)
		if err := o.check(subject, next); err != nil {
			return err
		}
		if ok {
			next.History = e.History
			o.relink(e, next)
		} else {
			o.relink(model.Edge{Deleted: true}, next)
		}
		e, ok = next, true
	}
	if !ok {
		return model.ConstraintViolation(subject, "update of unknown edge")
	}

	for _, u := range er.Updates {
		if e.Deleted {
			return model.ConstraintViolation(subject, "update of deleted edge")
		}
		next := e
		switch u.Op {
		case model.EdgeOpEndpoints:
			next.From, next.To = *u.From, *u.To
		case model.EdgeOpKind:
			next.Kind = u.Kind
		case model.EdgeOpValidity:
			next.Validity = *u.Validity
		case model.EdgeOpDelete:
			next.Deleted = true
		}
		if !next.Deleted {
			if err := o.check(subject, next); err != nil {
				return err
			}
		}
		o.relink(e, next)
		e = next
	}

	e.History = append(e.History, model.RecordEvent{Timestamp: ts, Record: r})
	o.edges[er.ID] = e
	return nil
}

// check enforces the constraints a live edge must satisfy.
func (o *overlay) check(subject string, e model.Edge) error {
	from, ok := o.node(e.From)
	if !ok {
		return model.ConstraintViolation(subject, "from node %s not found", e.From.Short())
	}
	if from.Deleted {
		return model.ConstraintViolation(subject, "from node %s is deleted", e.From.Short())
	}
	to, ok := o.node(e.To)
	if !ok {
		return model.ConstraintViolation(subject, "to node %s not found", e.To.Short())
	}
	if to.Deleted {
		return model.ConstraintViolation(subject, "to node %s is deleted", e.To.Short())
	}
	switch e.Kind {
	case model.EdgeEquality:
		if e.From == e.To {
			return model.ConstraintViolation(subject, "equality edge links node %s to itself", e.From.Short())
		}
	case model.EdgeDefinition:
		if !to.Kind.IsLabel() {
			return model.ConstraintViolation(subject, "definition edge must target a label, %s is %s", e.To.Short(), to.Kind)
		}
	}
	return nil
}

// relink moves the edge between endpoint edge sets as it changes from prev
// to next. A deleted edge is in no edge set.
func (o *overlay) relink(prev, next model.Edge) {
	if prev.Kind == model.EdgeEquality || next.Kind == model.EdgeEquality {
		o.equality = true
	}
	if !prev.Deleted {
		o.unindex(prev.ID, prev.From)
		o.unindex(prev.ID, prev.To)
	}
	if !next.Deleted {
		o.index(next.ID, next.From)
		o.index(next.ID, next.To)
	}
}

func (o *overlay) index(id model.EdgeID, nodeID model.NodeID) {
	if n, ok := o.takeNode(nodeID); ok {
		n.Edges[id] = struct{}{}
	}
}

func (o *overlay) unindex(id model.EdgeID, nodeID model.NodeID) {
	if n, ok := o.takeNode(nodeID); ok {
		delete(n.Edges, id)
	}
}

// commit writes the overlay into its base state and appends ktx to the
// log. The caller holds the write lock when the base is shared.
func (o *overlay) commit(ktx keyedTx) {
	for id, n := range o.nodes {
		o.base.nodes[id] = n
	}
	for id, e := range o.edges {
		o.base.edges[id] = e
	}
	o.base.log = append(o.base.log, ktx)
	o.base.seen[ktx.key.Hash] = struct{}{}
	if o.equality {
		o.base.aliases = buildAliases(o.base.edges)
	}
}
