package model

import (
	"slices"
	"time"
)

// Timestamp is nanoseconds since the UNIX epoch.
type Timestamp int64

// Time converts the timestamp to a time.Time in UTC.
func (t Timestamp) Time() time.Time { return time.Unix(0, int64(t)).UTC() }

// TimestampOf converts a time.Time to a Timestamp.
func TimestampOf(t time.Time) Timestamp { return Timestamp(t.UnixNano()) }

// OpVersion allows reinterpreting a kind payload without breaking old data.
type OpVersion uint32

// RecordEvent is a record as applied at a transaction's timestamp.
type RecordEvent struct {
	Timestamp Timestamp `json:"timestamp"`
	Record    Record    `json:"record"`
}

// Node is a data entity.
//
// Edges is derived state: the set of live edges whose From or To is this
// node. It is maintained by the world view and never by callers.
type Node struct {
	ID        NodeID              `json:"id"`
	Kind      NodeKind            `json:"kind"`
	Label     string              `json:"label,omitempty"`
	OpVersion OpVersion           `json:"op_version,omitempty"`
	Data      DataHash            `json:"data"`
	Edges     map[EdgeID]struct{} `json:"-"`
	History   []RecordEvent       `json:"history,omitempty"`
	Deleted   bool                `json:"deleted,omitempty"`
}

// NewNode returns a node with an empty edge set.
func NewNode(id NodeID, kind NodeKind, label string, data DataHash) Node {
	return Node{
		ID:    id,
		Kind:  kind,
		Label: label,
		Data:  data,
		Edges: make(map[EdgeID]struct{}),
	}
}

// EdgeIDs returns the node's edge set in ascending order.
func (n Node) EdgeIDs() []EdgeID {
	ids := make([]EdgeID, 0, len(n.Edges))
	for id := range n.Edges {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, EdgeID.Compare)
	return ids
}

// HasEdge reports whether id is in the node's edge set.
func (n Node) HasEdge(id EdgeID) bool {
	_, ok := n.Edges[id]
	return ok
}

// Clone returns a deep copy that shares no memory with n.
func (n Node) Clone() Node {
	c := n
	c.Data = n.Data.Clone()
	c.Edges = make(map[EdgeID]struct{}, len(n.Edges))
	for id := range n.Edges {
		c.Edges[id] = struct{}{}
	}
	c.History = slices.Clone(n.History)
	return c
}

// Edge is a directional relationship between two nodes.
type Edge struct {
	ID       EdgeID        `json:"id"`
	Kind     EdgeKind      `json:"kind"`
	From     NodeID        `json:"from"`
	To       NodeID        `json:"to"`
	Validity Validity      `json:"validity"`
	History  []RecordEvent `json:"history,omitempty"`
	Deleted  bool          `json:"deleted,omitempty"`
}

// NewEdge returns an edge valid from the given timestamp.
func NewEdge(id EdgeID, kind EdgeKind, from, to NodeID, validity Validity) Edge {
	return Edge{ID: id, Kind: kind, From: from, To: to, Validity: validity}
}

// Touches reports whether id is one of the edge's endpoints.
func (e Edge) Touches(id NodeID) bool { return e.From == id || e.To == id }

// ActiveAt reports whether the edge is live and inside its validity at ts.
func (e Edge) ActiveAt(ts Timestamp) bool {
	return !e.Deleted && e.Validity.ActiveAt(ts)
}

// Clone returns a deep copy that shares no memory with e.
func (e Edge) Clone() Edge {
	c := e
	c.History = slices.Clone(e.History)
	return c
}
