package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/testutil"
)

func TestSearchRanksLabelsBeforeText(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, append(labelGraph(),
		testutil.Tx(40, model.CreateNode(testutil.Label("milk"))),
		testutil.Tx(50, model.CreateNode(testutil.Label("milkshake"))),
	)...)

	out, _, err := execute(t, "--db", db, "--format", "json", "search", "MILK")
	require.NoError(t, err)

	resp := decodeResponse[SearchResult](t, out)
	assert.Equal(t, "MILK", resp.Data.Query)
	require.Len(t, resp.Data.Hits, 3)
	assert.Equal(t, "milk", resp.Data.Hits[0].Label)
	assert.Equal(t, "milkshake", resp.Data.Hits[1].Label)
	assert.Equal(t, "list", resp.Data.Hits[2].Label, "text matches rank last")
	assert.Equal(t, "render/markdown", resp.Data.Hits[2].Kind)
}

func TestSearchLimit(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)

	out, _, err := execute(t, "--db", db, "--format", "json", "search", "-n", "1", "e")
	require.NoError(t, err)

	resp := decodeResponse[SearchResult](t, out)
	assert.Len(t, resp.Data.Hits, 1)
}

func TestSearchSkipsDeletedNodes(t *testing.T) {
	db := testDB(t)
	seedLog(t, db,
		testutil.Tx(10, model.CreateNode(testutil.Label("draft"))),
		testutil.Tx(20, model.DeleteNode(model.NamedNodeID("draft"))),
	)

	out, _, err := execute(t, "--db", db, "search", "draft")
	require.NoError(t, err)
	assert.Contains(t, out, `No nodes match "draft".`)
}

func TestSearchTextOutput(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)

	out, _, err := execute(t, "--db", db, "search", "groceries")
	require.NoError(t, err)
	assert.Contains(t, out, model.NamedNodeID("groceries").String()[:8])
	assert.Contains(t, out, "groceries")
}

func TestSearchRequiresQuery(t *testing.T) {
	db := testDB(t)

	_, _, err := execute(t, "--db", db, "search")
	require.Error(t, err)
}
