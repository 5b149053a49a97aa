package testutil

import (
	"github.com/roach88/datahog/internal/model"
)

// Writer is the source ID fixtures use when none is given.
var Writer = model.NamedSourceID("testutil/writer")

// Label returns a label node named name, with a stable ID derived from it.
func Label(name string) model.Node {
	return model.NewNode(model.NamedNodeID(name), model.LabelKind(), name, model.DataHash{})
}

// Text returns a markdown render node with inline text.
func Text(name, text string) model.Node {
	return model.NewNode(model.NamedNodeID(name), model.RenderKind(model.RenderMarkdown),
		name, model.InlineData([]byte(text)))
}

// Link returns an edge named name between two named nodes.
func Link(name string, kind model.EdgeKind, from, to string, v model.Validity) model.Edge {
	return model.NewEdge(model.NamedEdgeID(name), kind,
		model.NamedNodeID(from), model.NamedNodeID(to), v)
}

// Tx builds a transaction from Writer at ts. It panics on an empty record
// list.
func Tx(ts model.Timestamp, records ...model.Record) model.Transaction {
	return model.MustTransaction(ts, Writer, records...)
}

// TxFrom builds a transaction from an explicit source.
func TxFrom(ts model.Timestamp, src model.SourceID, records ...model.Record) model.Transaction {
	return model.MustTransaction(ts, src, records...)
}
