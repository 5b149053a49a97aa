package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/testutil"
)

func TestStatsEmptyLog(t *testing.T) {
	db := testDB(t)

	out, _, err := execute(t, "--db", db, "--format", "json", "stats")
	require.NoError(t, err)

	resp := decodeResponse[StatsResult](t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(0), resp.Data.LogLength)
	assert.Equal(t, 1, resp.Data.Nodes, "only the Universe node")
	assert.Equal(t, 1, resp.Data.Transactions)
	require.Len(t, resp.Data.Sources, 1)
	assert.Equal(t, logSourceName, resp.Data.Sources[0].Name)
}

func TestStatsAfterSeeding(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, aliasGraph()...)

	out, _, err := execute(t, "--db", db, "--format", "json", "stats")
	require.NoError(t, err)

	resp := decodeResponse[StatsResult](t, out)
	assert.Equal(t, int64(4), resp.Data.LogLength)
	assert.Equal(t, 4, resp.Data.Nodes)
	assert.Equal(t, 4, resp.Data.LiveNodes)
	assert.Equal(t, 2, resp.Data.Edges)
	assert.Equal(t, 5, resp.Data.Transactions)
	assert.Equal(t, model.Timestamp(40), resp.Data.Watermark)
	assert.Equal(t, 4, resp.Data.Sources[0].Applied)
}

func TestStatsAfterIngest(t *testing.T) {
	db := testDB(t)
	dir := writeTree(t, ingestFiles)

	_, _, err := execute(t, "--db", db, "ingest", "--dir", dir)
	require.NoError(t, err)

	out, _, err := execute(t, "--db", db, "--format", "json", "stats")
	require.NoError(t, err)

	resp := decodeResponse[StatsResult](t, out)
	assert.Equal(t, int64(4), resp.Data.LogLength)
	assert.Equal(t, 5, resp.Data.LiveNodes)
	assert.Empty(t, resp.Data.Roots, "disk sources are only registered while ingesting or watching")
}

func TestStatsTextOutput(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, labelGraph()...)

	out, _, err := execute(t, "--db", db, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Log: 3 entries")
	assert.Contains(t, out, "Nodes: 3 (3 live)")
	assert.Contains(t, out, "Edges: 1 (1 live)")
	assert.Contains(t, out, "Source log: 3 applied")
}

func TestStatsRejectedLogEntryIsCommandError(t *testing.T) {
	db := testDB(t)
	seedLog(t, db, append(labelGraph(),
		testutil.Tx(50, model.CreateEdge(testutil.Link("dangling", model.EdgeUsing, "a", "b", model.From(50)))))...)

	_, _, err := execute(t, "--db", db, "--format", "json", "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to replay transaction log")
	assert.True(t, model.IsReplay(err))
}
