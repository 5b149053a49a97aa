package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/testutil"
)

// aliasGraph is labelGraph plus a "shopping" label made equal to
// "groceries".
func aliasGraph() []model.Transaction {
	return append(labelGraph(),
		testutil.Tx(40,
			model.CreateNode(testutil.Label("shopping")),
			model.CreateEdge(testutil.Link("groceries=shopping", model.EdgeEquality, "groceries", "shopping", model.From(40))),
		),
	)
}

func TestShowRootNode(t *testing.T) {
	db := testDB(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "show", "node", "root")
	require.NoError(t, err)

	resp := decodeResponse[NodeView](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, model.RootID.String(), resp.Data.ID)
	assert.Equal(t, "label", resp.Data.Kind)
	assert.Equal(t, "Universe", resp.Data.Label)
	assert.Empty(t, resp.Data.Edges)
	require.Len(t, resp.Data.History, 1)
	assert.Equal(t, "create", resp.Data.History[0].Op)
}

func TestShowNodeByPrefix(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)
	list := model.NamedNodeID("list")

	out, _, err := execute(t, "--db", db, "--format", "json", "show", "node", list.String()[:12])
	require.NoError(t, err)

	resp := decodeResponse[NodeView](t, out)
	assert.Equal(t, list.String(), resp.Data.ID)
	assert.Equal(t, "render/markdown", resp.Data.Kind)
	assert.Equal(t, "- milk\n- eggs", resp.Data.Text)
	assert.Equal(t, 13, resp.Data.Size)
	assert.Equal(t, list.String(), resp.Data.Canonical)
	require.Len(t, resp.Data.Edges, 1)
	assert.Equal(t, string(model.EdgeContains), resp.Data.Edges[0].Kind)
	assert.Equal(t, model.NamedNodeID("groceries").String(), resp.Data.Edges[0].From)
}

func TestShowNodeAliases(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, aliasGraph()...)
	groceries := model.NamedNodeID("groceries")
	shopping := model.NamedNodeID("shopping")

	out, _, err := execute(t, "--db", db, "--format", "json", "show", "node", groceries.String())
	require.NoError(t, err)

	resp := decodeResponse[NodeView](t, out)
	assert.Equal(t, []string{shopping.String()}, resp.Data.Aliases)
	canonical := groceries
	if shopping.Less(groceries) {
		canonical = shopping
	}
	assert.Equal(t, canonical.String(), resp.Data.Canonical)
	assert.Len(t, resp.Data.Edges, 2)
}

func TestShowNodeText(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)

	out, _, err := execute(t, "--db", db, "show", "node", model.NamedNodeID("list").String())
	require.NoError(t, err)
	assert.Contains(t, out, "Kind: render/markdown")
	assert.Contains(t, out, "    | - milk")
	assert.Contains(t, out, "    | - eggs")
	assert.Contains(t, out, "Edges: 1")
	assert.Contains(t, out, "History: 1 record(s)")
}

func TestShowNodeNotFound(t *testing.T) {
	db := testDB(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "show", "node", model.NamedNodeID("ghost").String())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse[any](t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestShowNodeInvalidID(t *testing.T) {
	db := testDB(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "show", "node", "not-hex")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse[any](t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_COMMAND", resp.Error.Code)
}

func TestShowEdge(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)
	id := model.NamedEdgeID("groceries-list")

	out, _, err := execute(t, "--db", db, "--format", "json", "show", "edge", id.String()[:10])
	require.NoError(t, err)

	resp := decodeResponse[EdgeView](t, out)
	assert.Equal(t, id.String(), resp.Data.ID)
	assert.Equal(t, string(model.EdgeContains), resp.Data.Kind)
	assert.Equal(t, model.NamedNodeID("list").String(), resp.Data.To)
	assert.Equal(t, model.From(30), resp.Data.Validity)
	assert.False(t, resp.Data.Deleted)
	require.Len(t, resp.Data.History, 1)
	assert.Equal(t, model.Timestamp(30), resp.Data.History[0].Timestamp)
}

func TestShowEdgeText(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)

	out, _, err := execute(t, "--db", db, "show", "edge", model.NamedEdgeID("groceries-list").String())
	require.NoError(t, err)
	assert.Contains(t, out, "Kind: contains")
	assert.Contains(t, out, "Validity: from 30")
}

func TestDescribeRecord(t *testing.T) {
	n := testutil.Label("x")
	tests := []struct {
		name   string
		record model.Record
		want   string
	}{
		{"create", model.CreateNode(n), "create"},
		{"label", model.UpdateNodeLabel(n.ID, "y"), "update label"},
		{"delete", model.DeleteNode(n.ID), "delete"},
		{"edge delete", model.DeleteEdge(model.NamedEdgeID("e")), "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeRecord(tt.record))
		})
	}
}

func TestFormatValidity(t *testing.T) {
	assert.Equal(t, "from 5", formatValidity(model.From(5)))
	assert.Equal(t, "[5, 9)", formatValidity(model.Period(5, 9)))
}

func TestMatchPrefix(t *testing.T) {
	hexes := []string{"abc1", "abc2", "def0"}

	i, err := matchPrefix("DEF", hexes)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	_, err = matchPrefix("abc", hexes)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous id prefix")

	_, err = matchPrefix("0123", hexes)
	assert.True(t, model.IsNotFound(err))

	_, err = matchPrefix("", hexes)
	assert.Error(t, err)
}
