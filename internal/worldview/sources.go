package worldview

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/source"
)

// ErrSourceExists is returned by AddSource for an already registered
// SourceID.
var ErrSourceExists = errors.New("source already registered")

// SourceStatus reports the progress of one registered source.
type SourceStatus struct {
	ID            model.SourceID  `json:"id"`
	Name          string          `json:"name"`
	Polls         int             `json:"polls"`
	Failures      int             `json:"failures"`
	Delivered     int             `json:"delivered"`
	Applied       int             `json:"applied"`
	Duplicates    int             `json:"duplicates"`
	Rejected      int             `json:"rejected"`
	LastTimestamp model.Timestamp `json:"last_timestamp"`
	LastPoll      time.Time       `json:"last_poll"`
	LastError     string          `json:"last_error,omitempty"`
}

type registered struct {
	src source.Source

	mu     sync.Mutex
	status SourceStatus
}

func (r *registered) polled(txs []model.Transaction, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Polls++
	r.status.LastPoll = time.Now()
	if err != nil {
		r.status.Failures++
		r.status.LastError = err.Error()
		return
	}
	r.status.LastError = ""
	r.status.Delivered += len(txs)
	for _, tx := range txs {
		r.status.LastTimestamp = max(r.status.LastTimestamp, tx.Timestamp)
	}
}

func (r *registered) applied(out outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case err != nil:
		r.status.Rejected++
	case out == outcomeDuplicate:
		r.status.Duplicates++
	default:
		r.status.Applied++
	}
}

// Rejection is a delivered transaction the view refused.
type Rejection struct {
	Source    string          `json:"source"`
	Timestamp model.Timestamp `json:"timestamp"`
	Hash      model.U256      `json:"hash"`
	Err       error           `json:"-"`
}

// SourceError is a failed source poll.
type SourceError struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

// SyncReport describes one sync cycle.
type SyncReport struct {
	CycleID      string         `json:"cycle_id"`
	Delivered    int            `json:"delivered"`
	Applied      int            `json:"applied"`
	Duplicates   int            `json:"duplicates"`
	Journaled    int            `json:"journaled"`
	Rejected     []Rejection    `json:"rejected,omitempty"`
	SourceErrors []SourceError  `json:"source_errors,omitempty"`
	TouchedNodes []model.NodeID `json:"touched_nodes,omitempty"`
	TouchedEdges []model.EdgeID `json:"touched_edges,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Changed reports whether the cycle applied anything.
func (r SyncReport) Changed() bool { return r.Applied > 0 }

// AddSource registers src and applies its first batch of updates. A poll
// failure is returned and the source is not registered; a replay error
// from the source must be treated as fatal. Individual rejected
// transactions are logged and skipped. It returns the number of
// transactions applied.
func (w *WorldView) AddSource(ctx context.Context, src source.Source) (int, error) {
	return w.addSource(ctx, src, false)
}

// AddSourceStrict is AddSource for sources whose history must apply in
// full, such as the transaction log itself. The first rejected transaction
// fails the call with a replay error wrapping the cause and the source is
// not registered. The view may then hold part of the batch and should be
// discarded.
func (w *WorldView) AddSourceStrict(ctx context.Context, src source.Source) (int, error) {
	return w.addSource(ctx, src, true)
}

func (w *WorldView) addSource(ctx context.Context, src source.Source, strict bool) (int, error) {
	r := &registered{
		src:    src,
		status: SourceStatus{ID: src.ID(), Name: src.Name()},
	}
	if w.lookup(src.ID()) != nil {
		return 0, fmt.Errorf("add source %s: %w", src.Name(), ErrSourceExists)
	}

	txs, err := w.poll(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("add source %s: %w", src.Name(), err)
	}
	q := newPendingQueue()
	report := SyncReport{CycleID: "add-source"}
	w.enqueue(q, r, txs, &report)
	w.drain(ctx, q, &report)
	if strict && len(report.Rejected) > 0 {
		first := report.Rejected[0]
		return report.Applied, model.Replay(
			fmt.Sprintf("add source %s: transaction at %d rejected", src.Name(), first.Timestamp), first.Err)
	}

	w.srcMu.Lock()
	if slices.ContainsFunc(w.sources, func(o *registered) bool { return o.src.ID() == src.ID() }) {
		w.srcMu.Unlock()
		return report.Applied, fmt.Errorf("add source %s: %w", src.Name(), ErrSourceExists)
	}
	w.sources = append(w.sources, r)
	w.srcMu.Unlock()

	w.logger.Info("source added",
		"source", src.Name(),
		"id", src.ID().Short(),
		"delivered", report.Delivered,
		"applied", report.Applied,
		"rejected", len(report.Rejected))
	return report.Applied, nil
}

func (w *WorldView) lookup(id model.SourceID) *registered {
	w.srcMu.Lock()
	defer w.srcMu.Unlock()
	for _, r := range w.sources {
		if r.src.ID() == id {
			return r
		}
	}
	return nil
}

func (w *WorldView) registeredSources() []*registered {
	w.srcMu.Lock()
	defer w.srcMu.Unlock()
	return slices.Clone(w.sources)
}

// SourceStatus returns the status of a registered source.
func (w *WorldView) SourceStatus(id model.SourceID) (SourceStatus, bool) {
	r := w.lookup(id)
	if r == nil {
		return SourceStatus{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, true
}

// SourceStatuses returns the status of every registered source in
// registration order.
func (w *WorldView) SourceStatuses() []SourceStatus {
	srcs := w.registeredSources()
	out := make([]SourceStatus, len(srcs))
	for i, r := range srcs {
		r.mu.Lock()
		out[i] = r.status
		r.mu.Unlock()
	}
	return out
}

// SourceRoots returns the root node of each registered source that has
// one, such as a DiskSource.
func (w *WorldView) SourceRoots() map[model.SourceID]model.NodeID {
	out := make(map[model.SourceID]model.NodeID)
	for _, r := range w.registeredSources() {
		if rooted, ok := r.src.(interface{ RootNode() model.NodeID }); ok {
			out[r.src.ID()] = rooted.RootNode()
		}
	}
	return out
}

func (w *WorldView) poll(ctx context.Context, r *registered) ([]model.Transaction, error) {
	txs, err := r.src.GetUpdates(ctx)
	r.polled(txs, err)
	return txs, err
}

func (w *WorldView) enqueue(q *pendingQueue, r *registered, txs []model.Transaction, report *SyncReport) {
	for _, tx := range txs {
		ktxs, err := keyed(tx)
		if err != nil {
			r.applied(0, err)
			w.metrics.rejected(err)
			report.Rejected = append(report.Rejected, Rejection{
				Source:    r.src.Name(),
				Timestamp: tx.Timestamp,
				Err:       err,
			})
			continue
		}
		if !q.Push(pendingTx{keyedTx: ktxs[0], src: r}) {
			r.applied(outcomeDuplicate, nil)
			report.Duplicates++
		}
	}
}

// drain applies every queued transaction in key order and journals the
// applied ones.
func (w *WorldView) drain(ctx context.Context, q *pendingQueue, report *SyncReport) {
	nodes := make(map[model.NodeID]struct{})
	edges := make(map[model.EdgeID]struct{})
	var journal []model.Transaction

	for _, p := range q.Drain() {
		report.Delivered++
		out, err := w.apply(p.tx)
		p.src.applied(out, err)
		switch {
		case err != nil:
			w.logger.Warn("tx rejected",
				"cycle", report.CycleID,
				"source", p.src.src.Name(),
				"ts", p.tx.Timestamp,
				"hash", p.key.Hash.Short(),
				"err", err)
			report.Rejected = append(report.Rejected, Rejection{
				Source:    p.src.src.Name(),
				Timestamp: p.tx.Timestamp,
				Hash:      p.key.Hash,
				Err:       err,
			})
		case out == outcomeDuplicate:
			report.Duplicates++
		default:
			report.Applied++
			if w.journals(p.src) {
				journal = append(journal, p.tx)
			}
			for _, rec := range p.tx.Records {
				if rec.Node != nil {
					nodes[rec.Node.ID] = struct{}{}
				}
				if rec.Edge != nil {
					edges[rec.Edge.ID] = struct{}{}
				}
			}
		}
	}

	w.writeJournal(ctx, journal, report)

	for id := range nodes {
		report.TouchedNodes = append(report.TouchedNodes, id)
	}
	for id := range edges {
		report.TouchedEdges = append(report.TouchedEdges, id)
	}
	slices.SortFunc(report.TouchedNodes, model.NodeID.Compare)
	slices.SortFunc(report.TouchedEdges, model.EdgeID.Compare)
}

// journals reports whether transactions from r go to the journal.
func (w *WorldView) journals(r *registered) bool {
	if w.journal == nil {
		return false
	}
	if js, ok := w.journal.(source.Source); ok && js.ID() == r.src.ID() {
		return false
	}
	return true
}

// writeJournal appends txs to the journal. A failure is reported as a
// source error; the transactions stay applied.
func (w *WorldView) writeJournal(ctx context.Context, txs []model.Transaction, report *SyncReport) {
	if len(txs) == 0 {
		return
	}
	if err := w.journal.AddTx(ctx, txs); err != nil {
		name := "journal"
		if js, ok := w.journal.(source.Source); ok {
			name = js.Name()
		}
		w.metrics.sourceError(name)
		w.logger.Error("journal append failed",
			"cycle", report.CycleID,
			"count", len(txs),
			"err", err)
		report.SourceErrors = append(report.SourceErrors, SourceError{Source: name, Err: err})
		return
	}
	report.Journaled += len(txs)
}

// Sync polls every registered source concurrently and applies what they
// deliver in key order. A failing source is recorded in the report and the
// others continue. Only a replay error or cancellation fails the cycle.
func (w *WorldView) Sync(ctx context.Context) (SyncReport, error) {
	report := SyncReport{CycleID: w.cycleIDs.Generate()}
	ctx, span := tracer.Start(ctx, "worldview.Sync",
		trace.WithAttributes(attribute.String("cycle_id", report.CycleID)))
	defer span.End()
	start := time.Now()

	srcs := w.registeredSources()
	q := newPendingQueue()
	var reportMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range srcs {
		g.Go(func() error {
			txs, err := w.poll(gctx, r)
			if err != nil {
				if model.IsReplay(err) {
					return fmt.Errorf("source %s: %w", r.src.Name(), err)
				}
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				w.metrics.sourceError(r.src.Name())
				w.logger.Warn("source poll failed",
					"cycle", report.CycleID,
					"source", r.src.Name(),
					"err", err)
				reportMu.Lock()
				report.SourceErrors = append(report.SourceErrors, SourceError{Source: r.src.Name(), Err: err})
				reportMu.Unlock()
				return nil
			}
			reportMu.Lock()
			w.enqueue(q, r, txs, &report)
			reportMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	slices.SortFunc(report.SourceErrors, func(a, b SourceError) int {
		return cmp.Compare(a.Source, b.Source)
	})
	w.drain(ctx, q, &report)
	report.Duration = time.Since(start)
	w.metrics.synced(report.Duration.Seconds())

	span.SetAttributes(
		attribute.Int("sources", len(srcs)),
		attribute.Int("applied", report.Applied),
		attribute.Int("rejected", len(report.Rejected)),
		attribute.Int("source_errors", len(report.SourceErrors)),
	)
	level := w.logger.Debug
	if report.Applied > 0 || len(report.Rejected) > 0 || len(report.SourceErrors) > 0 {
		level = w.logger.Info
	}
	level("sync cycle complete",
		"cycle", report.CycleID,
		"sources", len(srcs),
		"delivered", report.Delivered,
		"applied", report.Applied,
		"rejected", len(report.Rejected),
		"source_errors", len(report.SourceErrors),
		"duration", report.Duration)
	return report, nil
}

// Run syncs on every poll interval, and immediately whenever a source
// implementing source.Notifier signals a change, until ctx is cancelled.
// It returns ctx.Err() on cancellation and the error of a failed cycle
// otherwise.
//
// Sources that only start notifying after being added (for example a
// DiskSource whose Watch is called later) are picked up on the next cycle.
func (w *WorldView) Run(ctx context.Context) error {
	w.logger.Info("sync loop starting", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	wake := make(chan struct{}, 1)
	watched := make(map[*registered]bool)
	for {
		w.watchNotifiers(ctx, watched, wake)
		if _, err := w.Sync(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("sync loop stopping: context cancelled")
				return ctx.Err()
			}
			w.logger.Error("sync loop stopping", "err", err)
			return err
		}

		select {
		case <-ctx.Done():
			w.logger.Info("sync loop stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (w *WorldView) watchNotifiers(ctx context.Context, watched map[*registered]bool, wake chan struct{}) {
	for _, r := range w.registeredSources() {
		if watched[r] {
			continue
		}
		n, ok := r.src.(source.Notifier)
		if !ok {
			watched[r] = true
			continue
		}
		ch := n.Changes()
		if ch == nil {
			continue
		}
		watched[r] = true
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			}
		}()
	}
}
