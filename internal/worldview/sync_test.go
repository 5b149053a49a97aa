package worldview

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/source"
	"github.com/roach88/datahog/internal/storage"
	"github.com/roach88/datahog/internal/testutil"
	"github.com/roach88/datahog/internal/txlog"
)

// feedSource delivers whatever was pushed since the last poll and can be
// told to fail.
type feedSource struct {
	name    string
	mu      sync.Mutex
	queue   []model.Transaction
	err     error
	changes chan struct{}
}

func newFeedSource(name string, txs ...model.Transaction) *feedSource {
	return &feedSource{name: name, queue: txs, changes: make(chan struct{}, 1)}
}

func (s *feedSource) ID() model.SourceID { return source.SourceIDFor("feed", s.name) }
func (s *feedSource) Name() string { return s.name }
func (s *feedSource) Changes() <-chan struct{} { return s.changes }

func (s *feedSource) GetUpdates(ctx context.Context) ([]model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	txs := s.queue
	s.queue = nil
	return txs, nil
}

func (s *feedSource) push(txs ...model.Transaction) {
	s.mu.Lock()
	s.queue = append(s.queue, txs...)
	s.mu.Unlock()
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *feedSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type recordingWriter struct {
	mu  sync.Mutex
	txs []model.Transaction
	err error
}

func (r *recordingWriter) AddTx(_ context.Context, txs []model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.txs = append(r.txs, txs...)
	return nil
}

func TestAddSourceAppliesFirstBatch(t *testing.T) {
	ctx := context.Background()
	w := newTestView(t)

	src := newFeedSource("one",
		createLabel(20, s1, "b"),
		createLabel(10, s1, "a"),
		testutil.Tx(30, model.UpdateNode(id("ghost"), model.SetLabel("x"))),
	)
	applied, err := w.AddSource(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	status, ok := w.SourceStatus(src.ID())
	require.True(t, ok)
	assert.Equal(t, 3, status.Delivered)
	assert.Equal(t, 2, status.Applied)
	assert.Equal(t, 1, status.Rejected)
	assert.Equal(t, model.Timestamp(30), status.LastTimestamp)

	_, err = w.AddSource(ctx, src)
	assert.ErrorIs(t, err, ErrSourceExists)
}

func TestAddSourceFailureIsReturned(t *testing.T) {
	w := newTestView(t)
	src := newFeedSource("broken")
	src.fail(model.Replay("log corrupt", errors.New("chain mismatch")))

	_, err := w.AddSource(context.Background(), src)
	require.Error(t, err)
	assert.True(t, model.IsReplay(err))
	_, ok := w.SourceStatus(src.ID())
	assert.False(t, ok)
}

func TestAddSourceStrictFailsOnRejection(t *testing.T) {
	w := newTestView(t)
	src := newFeedSource("log",
		createLabel(10, s1, "a"),
		testutil.Tx(20, model.UpdateNode(id("ghost"), model.SetLabel("x"))),
	)

	_, err := w.AddSourceStrict(context.Background(), src)
	require.Error(t, err)
	assert.True(t, model.IsReplay(err))
	assert.True(t, errors.Is(err, model.ErrConstraintViolation))
	_, ok := w.SourceStatus(src.ID())
	assert.False(t, ok)
}

func TestAddSourceStrictAcceptsCleanHistory(t *testing.T) {
	w := newTestView(t)
	src := newFeedSource("log", createLabel(20, s1, "b"), createLabel(10, s1, "a"))

	applied, err := w.AddSourceStrict(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	_, ok := w.SourceStatus(src.ID())
	assert.True(t, ok)
}

func TestSyncOrdersAcrossSources(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	w := newTestView(t, WithMetrics(metrics), WithCycleIDs(testutil.NewSequentialCycleIDs("sync")))

	first := newFeedSource("first")
	second := newFeedSource("second")
	_, err := w.AddSource(ctx, first)
	require.NoError(t, err)
	_, err = w.AddSource(ctx, second)
	require.NoError(t, err)

	// The edge depends on both nodes; each source delivers part of it out of
	// order. The pending queue sorts before applying, so no rebuild happens.
	first.push(createLabel(100, s1, "N1"), testutil.TxFrom(200, s1, model.CreateEdge(
		model.NewEdge(edgeID("E1"), model.EdgeContains, id("N1"), id("N2"), model.From(200)))))
	second.push(createLabel(50, s2, "N2"))

	report, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sync-1", report.CycleID)
	assert.Equal(t, 3, report.Applied)
	assert.Empty(t, report.Rejected)
	assert.Empty(t, report.SourceErrors)
	assert.True(t, report.Changed())
	assert.ElementsMatch(t, []model.NodeID{id("N1"), id("N2")}, report.TouchedNodes)
	assert.Equal(t, []model.EdgeID{edgeID("E1")}, report.TouchedEdges)

	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.TxApplied))
	assert.Equal(t, 0.0, promtest.ToFloat64(metrics.Rebuilds))
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.Nodes))
	assertEdgeSync(t, w)

	report, err = w.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestSyncToleratesFailingSource(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	w := newTestView(t, WithMetrics(metrics))

	good := newFeedSource("good")
	bad := newFeedSource("bad")
	_, err := w.AddSource(ctx, good)
	require.NoError(t, err)
	_, err = w.AddSource(ctx, bad)
	require.NoError(t, err)

	bad.fail(model.SourceIO("bad", errors.New("disk on fire")))
	good.push(createLabel(10, s1, "ok"), testutil.Tx(11, model.DeleteNode(id("unknown"))))

	report, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	require.Len(t, report.SourceErrors, 1)
	assert.Equal(t, "bad", report.SourceErrors[0].Source)
	assert.True(t, model.IsSourceIO(report.SourceErrors[0].Err))
	require.Len(t, report.Rejected, 1)
	assert.True(t, model.IsConstraintViolation(report.Rejected[0].Err))

	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.SourceErrors.WithLabelValues("bad")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.TxRejected.WithLabelValues(string(model.CodeConstraintViolation))))

	status, _ := w.SourceStatus(bad.ID())
	assert.Equal(t, 1, status.Failures)
	assert.Contains(t, status.LastError, "disk on fire")

	_, err = w.GetNode(id("ok"))
	assert.NoError(t, err)
}

func TestSyncReplayErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	w := newTestView(t)
	src := newFeedSource("log")
	_, err := w.AddSource(ctx, src)
	require.NoError(t, err)

	src.fail(model.Replay("log corrupt", errors.New("hash mismatch")))
	_, err = w.Sync(ctx)
	require.Error(t, err)
	assert.True(t, model.IsReplay(err))
}

func TestSyncDeduplicatesAcrossSources(t *testing.T) {
	ctx := context.Background()
	w := newTestView(t)
	tx := createLabel(10, s1, "shared")
	a := newFeedSource("a")
	b := newFeedSource("b")
	_, err := w.AddSource(ctx, a)
	require.NoError(t, err)
	_, err = w.AddSource(ctx, b)
	require.NoError(t, err)

	a.push(tx)
	b.push(tx)
	report, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.Duplicates)
}

func TestUpdateNodeWritesBack(t *testing.T) {
	ctx := context.Background()
	wr := &recordingWriter{}
	local := model.NamedSourceID("local")
	w := newTestView(t, WithWriteBack(wr), WithLocalSource(local))

	require.NoError(t, w.UpdateNode(ctx, testutil.Label("mine")))
	require.NoError(t, w.UpdateEdge(ctx, model.NewEdge(edgeID("r"), model.EdgeContains, model.RootID, id("mine"), model.From(0))))

	require.Len(t, wr.txs, 2)
	assert.Equal(t, local, wr.txs[0].Source)
	assert.Equal(t, model.Timestamp(1000), wr.txs[0].Timestamp)
	assert.Equal(t, model.Timestamp(1001), wr.txs[1].Timestamp)

	edge, err := w.GetEdge(edgeID("r"))
	require.NoError(t, err)
	edge.Deleted = true
	require.NoError(t, w.UpdateEdge(ctx, edge))
	edge, _ = w.GetEdge(edgeID("r"))
	assert.True(t, edge.Deleted)
}

func TestUpdateNodeKeepsTombstones(t *testing.T) {
	ctx := context.Background()
	wr := &recordingWriter{}
	w := newTestView(t, WithWriteBack(wr))
	require.NoError(t, w.UpdateNode(ctx, testutil.Label("n1")))

	n, err := w.GetNode(id("n1"))
	require.NoError(t, err)
	n.Deleted = true
	require.NoError(t, w.UpdateNode(ctx, n))
	n, _ = w.GetNode(id("n1"))
	assert.True(t, n.Deleted)

	// Editing a tombstone is refused and nothing is written back.
	n.Label = "edited"
	err = w.UpdateNode(ctx, n)
	assert.True(t, model.IsConstraintViolation(err))
	n, _ = w.GetNode(id("n1"))
	assert.True(t, n.Deleted)
	assert.Equal(t, "n1", n.Label)
	assert.Len(t, wr.txs, 2)

	n.Deleted = false
	n.Label = "revived"
	require.NoError(t, w.UpdateNode(ctx, n))
	n, _ = w.GetNode(id("n1"))
	assert.False(t, n.Deleted)
	assert.Equal(t, "revived", n.Label)
}

func TestWriteBackFailureKeepsChange(t *testing.T) {
	wr := &recordingWriter{err: errors.New("read-only")}
	w := newTestView(t, WithWriteBack(wr))

	err := w.UpdateNode(context.Background(), testutil.Label("kept"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write back")

	_, err = w.GetNode(id("kept"))
	assert.NoError(t, err)
}

func TestUpdateRejectionSkipsWriteBack(t *testing.T) {
	wr := &recordingWriter{}
	w := newTestView(t, WithWriteBack(wr))

	err := w.UpdateEdge(context.Background(), testutil.Link("dangling", model.EdgeUsing, "a", "b", model.From(0)))
	assert.True(t, model.IsConstraintViolation(err))
	assert.Empty(t, wr.txs)
}

func TestRunSyncsOnChangeSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestView(t, WithPollInterval(time.Hour))
	src := newFeedSource("live")
	_, err := w.AddSource(ctx, src)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	src.push(createLabel(10, s1, "pushed"))
	require.Eventually(t, func() bool {
		_, err := w.GetNode(id("pushed"))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSourceRootsIncludeDiskSources(t *testing.T) {
	ctx := context.Background()
	w := newTestView(t)
	disk := source.NewDiskSource(storage.NewMemDir(map[string]string{"a.md": "# A"}),
		source.DiskOptions{Name: "notes", Clock: testutil.NewFixedClock(10, 1)})

	applied, err := w.AddSource(ctx, disk)
	require.NoError(t, err)
	assert.Positive(t, applied)

	roots := w.SourceRoots()
	assert.Equal(t, disk.RootNode(), roots[disk.ID()])

	root, err := w.GetNode(disk.RootNode())
	require.NoError(t, err)
	assert.Equal(t, "notes", root.Label)
	neighbors, err := w.Neighbors(model.RootID)
	require.NoError(t, err)
	assert.Contains(t, neighbors, disk.RootNode())

	hits := w.SearchNodes("a.md", 0)
	require.NotEmpty(t, hits)
	assert.Equal(t, disk.NodeFor("a.md"), hits[0].ID)
}

func TestDiskEntryReturningAsOtherTypeIsRestored(t *testing.T) {
	ctx := context.Background()
	w := newTestView(t)
	dir := storage.NewMemDir(map[string]string{"a.dat": "plain words"})
	disk := source.NewDiskSource(dir, source.DiskOptions{
		Name:     "notes",
		Clock:    testutil.NewFixedClock(10, 1),
		Baseline: w,
	})
	_, err := w.AddSource(ctx, disk)
	require.NoError(t, err)
	first, err := w.GetNode(disk.NodeFor("a.dat"))
	require.NoError(t, err)

	require.NoError(t, dir.Remove(ctx, storage.Split("a.dat")))
	report, err := w.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Rejected)

	require.NoError(t, dir.Write(ctx, storage.Split("a.dat"), []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")))
	report, err = w.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Rejected)
	assert.Equal(t, 1, report.Applied)

	n, err := w.GetNode(disk.NodeFor("a.dat"))
	require.NoError(t, err)
	assert.False(t, n.Deleted)
	assert.Equal(t, first.Kind, n.Kind, "the kind is kept from the first creation")
	assert.True(t, n.Data.IsHash())
	assertEdgeSync(t, w)
}

func TestJournalRecordsSourceTransactions(t *testing.T) {
	ctx := context.Background()
	wr := &recordingWriter{}
	w := newTestView(t, WithJournal(wr))

	src := newFeedSource("feed", createLabel(20, s1, "b"), createLabel(10, s1, "a"))
	_, err := w.AddSource(ctx, src)
	require.NoError(t, err)
	require.Len(t, wr.txs, 2)
	assert.Equal(t, []model.Timestamp{10, 20}, timestamps(wr.txs))

	src.push(createLabel(30, s1, "c"), createLabel(10, s1, "a"))
	report, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Journaled)
	assert.Len(t, wr.txs, 3)
}

func TestJournalSkipsItsOwnEntries(t *testing.T) {
	ctx := context.Background()
	l, err := txlog.OpenSQLite(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	_, err = l.Append(ctx, createLabel(5, s2, "persisted"))
	require.NoError(t, err)

	logSrc := source.NewLogSource("log", l, nil)
	w := newTestView(t, WithJournal(logSrc))

	applied, err := w.AddSource(ctx, logSrc)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	feed := newFeedSource("feed", createLabel(10, s1, "scanned"))
	_, err = w.AddSource(ctx, feed)
	require.NoError(t, err)

	last, err := l.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	report, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Delivered)
	assert.Zero(t, report.Journaled)
}

func TestJournalFailureIsASourceError(t *testing.T) {
	ctx := context.Background()
	wr := &recordingWriter{err: errors.New("disk full")}
	w := newTestView(t, WithJournal(wr))

	src := newFeedSource("feed")
	_, err := w.AddSource(ctx, src)
	require.NoError(t, err)

	src.push(createLabel(10, s1, "kept"))
	report, err := w.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Zero(t, report.Journaled)
	require.Len(t, report.SourceErrors, 1)
	assert.Equal(t, "journal", report.SourceErrors[0].Source)

	_, err = w.GetNode(id("kept"))
	assert.NoError(t, err)
}
