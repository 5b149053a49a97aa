package model

import "fmt"

// Record is one create/update/delete of a Node or an Edge.
// Exactly one of Node and Edge is set.
type Record struct {
	Node *NodeRecord `json:"node,omitempty"`
	Edge *EdgeRecord `json:"edge,omitempty"`
}

// NodeRecord targets a single node. A record may create and update at once;
// Create is applied first, then Updates in order.
type NodeRecord struct {
	ID      NodeID       `json:"id"`
	Create  *NodeInit    `json:"create,omitempty"`
	Updates []NodeUpdate `json:"updates,omitempty"`
}

// NodeInit carries the fields of a newly created node.
type NodeInit struct {
	Kind      NodeKind  `json:"kind"`
	OpVersion OpVersion `json:"op_version,omitempty"`
	Label     string    `json:"label,omitempty"`
	Data      DataHash  `json:"data"`
}

// NodeOp names a node mutation.
type NodeOp string

const (
	NodeOpLabel   NodeOp = "label"
	NodeOpData    NodeOp = "data"
	NodeOpMigrate NodeOp = "migrate"
	NodeOpDelete  NodeOp = "delete"
)

// NodeUpdate is one mutation of an existing node.
// Migrate sets Version and then applies the nested Updates.
type NodeUpdate struct {
	Op      NodeOp       `json:"op"`
	Label   string       `json:"label,omitempty"`
	Data    *DataHash    `json:"data,omitempty"`
	Version OpVersion    `json:"version,omitempty"`
	Updates []NodeUpdate `json:"updates,omitempty"`
}

// EdgeRecord targets a single edge.
type EdgeRecord struct {
	ID      EdgeID       `json:"id"`
	Create  *EdgeInit    `json:"create,omitempty"`
	Updates []EdgeUpdate `json:"updates,omitempty"`
}

// EdgeInit carries the fields of a newly created edge.
type EdgeInit struct {
	Kind     EdgeKind `json:"kind"`
	From     NodeID   `json:"from"`
	To       NodeID   `json:"to"`
	Validity Validity `json:"validity"`
}

// EdgeOp names an edge mutation.
type EdgeOp string

const (
	EdgeOpEndpoints EdgeOp = "endpoints"
	EdgeOpKind      EdgeOp = "kind"
	EdgeOpValidity  EdgeOp = "validity"
	EdgeOpDelete    EdgeOp = "delete"
)

// EdgeUpdate is one mutation of an existing edge.
type EdgeUpdate struct {
	Op       EdgeOp    `json:"op"`
	From     *NodeID   `json:"from,omitempty"`
	To       *NodeID   `json:"to,omitempty"`
	Kind     EdgeKind  `json:"kind,omitempty"`
	Validity *Validity `json:"validity,omitempty"`
}

// CreateNode returns a record that creates (or overwrites) node n.
func CreateNode(n Node) Record {
	return Record{Node: &NodeRecord{
		ID: n.ID,
		Create: &NodeInit{
			Kind:      n.Kind,
			OpVersion: n.OpVersion,
			Label:     n.Label,
			Data:      n.Data.Clone(),
		},
	}}
}

// UpdateNode returns a record applying updates to an existing node.
func UpdateNode(id NodeID, updates ...NodeUpdate) Record {
	return Record{Node: &NodeRecord{ID: id, Updates: updates}}
}

// DeleteNode returns a record that tombstones a node.
func DeleteNode(id NodeID) Record {
	return UpdateNode(id, NodeUpdate{Op: NodeOpDelete})
}

// UpdateNodeLabel returns a record that relabels a node.
func UpdateNodeLabel(id NodeID, label string) Record {
	return UpdateNode(id, SetLabel(label))
}

// UpdateNodeData returns a record that replaces a node's payload.
func UpdateNodeData(id NodeID, d DataHash) Record {
	return UpdateNode(id, SetData(d))
}

// SetLabel returns a label update.
func SetLabel(label string) NodeUpdate {
	return NodeUpdate{Op: NodeOpLabel, Label: label}
}

// SetData returns a data update.
func SetData(d DataHash) NodeUpdate {
	c := d.Clone()
	return NodeUpdate{Op: NodeOpData, Data: &c}
}

// Migrate returns an update that moves a node to version v and applies
// updates under the new version.
func Migrate(v OpVersion, updates ...NodeUpdate) NodeUpdate {
	return NodeUpdate{Op: NodeOpMigrate, Version: v, Updates: updates}
}

// CreateEdge returns a record that creates (or overwrites) edge e.
func CreateEdge(e Edge) Record {
	return Record{Edge: &EdgeRecord{
		ID: e.ID,
		Create: &EdgeInit{
			Kind:     e.Kind,
			From:     e.From,
			To:       e.To,
			Validity: e.Validity,
		},
	}}
}

// UpdateEdge returns a record applying updates to an existing edge.
func UpdateEdge(id EdgeID, updates ...EdgeUpdate) Record {
	return Record{Edge: &EdgeRecord{ID: id, Updates: updates}}
}

// DeleteEdge returns a record that tombstones an edge.
func DeleteEdge(id EdgeID) Record {
	return UpdateEdge(id, EdgeUpdate{Op: EdgeOpDelete})
}

// MoveEdge returns an update that re-points an edge.
func MoveEdge(from, to NodeID) EdgeUpdate {
	return EdgeUpdate{Op: EdgeOpEndpoints, From: &from, To: &to}
}

// SetValidity returns a validity update.
func SetValidity(v Validity) EdgeUpdate {
	return EdgeUpdate{Op: EdgeOpValidity, Validity: &v}
}

// SetEdgeKind returns a kind update.
func SetEdgeKind(k EdgeKind) EdgeUpdate {
	return EdgeUpdate{Op: EdgeOpKind, Kind: k}
}

// Validate checks a record's structure. Semantic constraints that need the
// current state (endpoint existence, label targets) are checked on apply.
func (r Record) Validate() error {
	switch {
	case r.Node != nil && r.Edge != nil:
		return fmt.Errorf("record targets both a node and an edge")
	case r.Node != nil:
		return r.Node.validate()
	case r.Edge != nil:
		return r.Edge.validate()
	}
	return fmt.Errorf("record targets neither a node nor an edge")
}

func (r *NodeRecord) validate() error {
	if r.Create == nil && len(r.Updates) == 0 {
		return fmt.Errorf("node %s: record has no create and no updates", r.ID.Short())
	}
	if r.Create != nil {
		if err := r.Create.Kind.Validate(); err != nil {
			return fmt.Errorf("node %s: %w", r.ID.Short(), err)
		}
	}
	return validateNodeUpdates(r.ID, r.Updates)
}

func validateNodeUpdates(id NodeID, updates []NodeUpdate) error {
	for i, u := range updates {
		switch u.Op {
		case NodeOpLabel, NodeOpDelete:
		case NodeOpData:
			if u.Data == nil {
				return fmt.Errorf("node %s: update[%d]: data update without data", id.Short(), i)
			}
		case NodeOpMigrate:
			if err := validateNodeUpdates(id, u.Updates); err != nil {
				return err
			}
		default:
			return fmt.Errorf("node %s: update[%d]: unknown op %q", id.Short(), i, u.Op)
		}
	}
	return nil
}

func (r *EdgeRecord) validate() error {
	if r.Create == nil && len(r.Updates) == 0 {
		return fmt.Errorf("edge %s: record has no create and no updates", r.ID.Short())
	}
	if r.Create != nil {
		if err := r.Create.Kind.Validate(); err != nil {
			return fmt.Errorf("edge %s: %w", r.ID.Short(), err)
		}
		if err := r.Create.Validity.Validate(); err != nil {
			return fmt.Errorf("edge %s: %w", r.ID.Short(), err)
		}
	}
	for i, u := range r.Updates {
		var err error
		switch u.Op {
		case EdgeOpDelete:
		case EdgeOpEndpoints:
			if u.From == nil || u.To == nil {
				err = fmt.Errorf("endpoints update requires from and to")
			}
		case EdgeOpKind:
			err = u.Kind.Validate()
		case EdgeOpValidity:
			if u.Validity == nil {
				err = fmt.Errorf("validity update without validity")
			} else {
				err = u.Validity.Validate()
			}
		default:
			err = fmt.Errorf("unknown op %q", u.Op)
		}
		if err != nil {
			return fmt.Errorf("edge %s: update[%d]: %w", r.ID.Short(), i, err)
		}
	}
	return nil
}
