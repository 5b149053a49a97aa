package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func labelNode(name string) Node {
	return NewNode(NamedNodeID(name), LabelKind(), name, DataHash{})
}

func TestNewTransactionRejectsEmpty(t *testing.T) {
	_, err := NewTransaction(NamedSourceID("s"))
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.ErrorIs(t, err, ErrMalformedTransaction)
	assert.ErrorIs(t, err, ErrEmptyTransaction)
}

func TestNewTransactionStampsMonotonically(t *testing.T) {
	src := NamedSourceID("s")
	a, err := NewTransaction(src, CreateNode(labelNode("a")))
	require.NoError(t, err)
	b, err := NewTransaction(src, CreateNode(labelNode("b")))
	require.NoError(t, err)
	assert.Less(t, a.Timestamp, b.Timestamp)
}

func TestTransactionValidate(t *testing.T) {
	src := NamedSourceID("s")
	n := NamedNodeID("n")
	e := NamedEdgeID("e")

	tests := []struct {
		name   string
		record Record
	}{
		{"empty record", Record{}},
		{"both targets", Record{Node: &NodeRecord{ID: n}, Edge: &EdgeRecord{ID: e}}},
		{"node without ops", Record{Node: &NodeRecord{ID: n}}},
		{"bad node kind", Record{Node: &NodeRecord{ID: n, Create: &NodeInit{Kind: NodeKind{Class: "x"}}}}},
		{"data update without data", UpdateNode(n, NodeUpdate{Op: NodeOpData})},
		{"nested bad op", UpdateNode(n, Migrate(2, NodeUpdate{Op: "grow"}))},
		{"bad edge kind", CreateEdge(NewEdge(e, "parent", n, n, From(0)))},
		{"inverted period", CreateEdge(NewEdge(e, EdgeContains, n, n, Period(9, 1)))},
		{"endpoints missing to", UpdateEdge(e, EdgeUpdate{Op: EdgeOpEndpoints, From: &n})},
		{"validity update empty", UpdateEdge(e, EdgeUpdate{Op: EdgeOpValidity})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Transaction{Timestamp: 1, Source: src, Records: []Record{tt.record}}
			err := tx.Validate()
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}

	ok := MustTransaction(1, src,
		CreateNode(labelNode("n")),
		UpdateNode(n, SetLabel("renamed"), Migrate(2, SetData(InlineData([]byte("v2"))))),
		CreateEdge(NewEdge(e, EdgeContains, n, n, From(0))),
		UpdateEdge(e, SetValidity(Period(1, 2)), SetEdgeKind(EdgeUsing), DeleteEdge(e).Edge.Updates[0]),
	)
	assert.NoError(t, ok.Validate())
}

func TestTransactionOrdering(t *testing.T) {
	var s1, s2 SourceID
	s1[0], s2[0] = 1, 2

	a := MustTransaction(100, s1, CreateNode(labelNode("a")))
	b := MustTransaction(50, s2, CreateNode(labelNode("b")))
	c := MustTransaction(100, s2, CreateNode(labelNode("c")))

	txs := []Transaction{a, c, b}
	SortTransactions(txs)
	assert.Equal(t, []Transaction{b, a, c}, txs)

	// Same timestamp and source: order falls back to the content hash and
	// is the same whichever way round the inputs arrive.
	d := MustTransaction(100, s1, CreateNode(labelNode("d")))
	assert.Equal(t, a.Compare(d), -d.Compare(a))
	assert.NotEqual(t, 0, a.Compare(d))
}

func TestKeyMatchesTransactionOrder(t *testing.T) {
	src := NamedSourceID("s")
	a := MustTransaction(1, src, CreateNode(labelNode("a")))
	b := MustTransaction(1, src, CreateNode(labelNode("b")))

	ka, err := KeyOf(a)
	require.NoError(t, err)
	kb, err := KeyOf(b)
	require.NoError(t, err)
	assert.Equal(t, a.Compare(b), ka.Compare(kb))
}

func TestTransactionJSONRoundTrip(t *testing.T) {
	n := NamedNodeID("n")
	e := NamedEdgeID("e")
	tx := MustTransaction(42, NamedSourceID("s"),
		CreateNode(NewNode(n, MimeKind("text/plain"), "n.txt", HashRef(ContentHash([]byte("body"))))),
		CreateEdge(NewEdge(e, EdgeContains, rootNode(), n, From(42))),
		UpdateNode(n, SetLabel("renamed")),
	)

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var back Transaction
	require.NoError(t, json.Unmarshal(data, &back))

	h1, err := tx.Hash()
	require.NoError(t, err)
	h2, err := back.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func rootNode() NodeID { return RootID }
