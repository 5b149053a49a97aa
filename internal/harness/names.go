package harness

import (
	"fmt"

	"github.com/roach88/datahog/internal/model"
)

// RootName refers to the Universe node.
const RootName = "root"

// Names resolves the symbolic identifiers used in transaction files.
//
// A name is either the 64-digit hex form of an ID or any other string,
// which is hashed into a stable ID with model.NamedNodeID and friends.
// Names remembers every resolution so results can be reported by name.
type Names struct {
	nodes   map[model.NodeID]string
	edges   map[model.EdgeID]string
	sources map[model.SourceID]string
}

// NewNames returns a resolver that knows only RootName.
func NewNames() *Names {
	return &Names{
		nodes:   map[model.NodeID]string{model.RootID: RootName},
		edges:   make(map[model.EdgeID]string),
		sources: make(map[model.SourceID]string),
	}
}

// Node resolves a node name.
func (n *Names) Node(name string) (model.NodeID, error) {
	switch name {
	case "":
		return model.NodeID{}, fmt.Errorf("empty node name")
	case RootName:
		return model.RootID, nil
	}
	id, err := model.ParseNodeID(name)
	if err != nil {
		id = model.NamedNodeID(name)
	}
	n.nodes[id] = name
	return id, nil
}

// Edge resolves an edge name.
func (n *Names) Edge(name string) (model.EdgeID, error) {
	if name == "" {
		return model.EdgeID{}, fmt.Errorf("empty edge name")
	}
	id, err := model.ParseEdgeID(name)
	if err != nil {
		id = model.NamedEdgeID(name)
	}
	n.edges[id] = name
	return id, nil
}

// Source resolves a source name.
func (n *Names) Source(name string) (model.SourceID, error) {
	if name == "" {
		return model.SourceID{}, fmt.Errorf("empty source name")
	}
	id, err := model.ParseSourceID(name)
	if err != nil {
		id = model.NamedSourceID(name)
	}
	n.sources[id] = name
	return id, nil
}

// NodeName returns the name id was resolved from, or its short hex form.
func (n *Names) NodeName(id model.NodeID) string {
	if name, ok := n.nodes[id]; ok {
		return name
	}
	return id.Short()
}

// EdgeName returns the name id was resolved from, or its short hex form.
func (n *Names) EdgeName(id model.EdgeID) string {
	if name, ok := n.edges[id]; ok {
		return name
	}
	return id.Short()
}

// SourceName returns the name id was resolved from, or its short hex form.
func (n *Names) SourceName(id model.SourceID) string {
	if name, ok := n.sources[id]; ok {
		return name
	}
	return id.Short()
}
