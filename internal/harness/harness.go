package harness

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/testutil"
	"github.com/roach88/datahog/internal/worldview"
)

// Harness runs scenarios against a fresh world view with a deterministic
// clock, so every run of a scenario produces the same trace and state.
type Harness struct {
	view    *worldview.WorldView
	builder *Builder
	logger  *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a new in-memory world view. Steps are
// delivered in file order, so a step with an earlier timestamp than its
// predecessors exercises late arrival.
//
// Execution flow:
// 1. Build every step's transaction, resolving names to IDs
// 2. Apply each one and record its outcome in the trace
// 3. Compare outcomes against expect clauses
// 4. Evaluate assertions against the final state
//
// An error is returned only when the scenario cannot be built. Failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with an explicit logger for the world view.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	h := newHarness(logger)

	txs := make([]model.Transaction, len(scenario.Steps))
	for i, step := range scenario.Steps {
		tx, err := h.builder.Build(step.TxSpec)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		txs[i] = tx
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev := h.deliver(i, step, txs[i])
		result.Trace = append(result.Trace, ev)
		checkExpect(result, i, step.Expect, ev)
	}

	actx := &AssertionContext{View: h.view, Names: h.builder.Names}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	result.State = h.state()
	return result, nil
}

func newHarness(logger *slog.Logger) *Harness {
	local := model.NamedSourceID("harness")
	view := worldview.New(
		worldview.WithLogger(logger),
		worldview.WithLocalSource(local),
		worldview.WithClock(testutil.NewFixedClock(1, 1)),
		worldview.WithCycleIDs(testutil.NewSequentialCycleIDs("harness")),
	)
	return &Harness{view: view, builder: NewBuilder(local), logger: logger}
}

func (h *Harness) deliver(i int, step Step, tx model.Transaction) TraceEvent {
	ev := TraceEvent{
		Step:      i,
		Timestamp: int64(tx.Timestamp),
		Source:    step.Source,
		Records:   len(tx.Records),
	}

	before := h.view.Stats().Transactions
	err := h.view.DoTx(tx)
	switch {
	case err != nil:
		ev.Outcome = OutcomeRejected
		ev.Code = string(errorCode(err))
	case h.view.Stats().Transactions == before:
		ev.Outcome = OutcomeDuplicate
	default:
		ev.Outcome = OutcomeAccepted
	}

	h.logger.Info("step delivered",
		"step", i,
		"ts", ev.Timestamp,
		"source", ev.Source,
		"outcome", ev.Outcome,
		"error", err,
	)
	return ev
}

func errorCode(err error) model.ErrorCode {
	var e *model.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func checkExpect(result *Result, i int, expect *Expect, ev TraceEvent) {
	want := Expect{Outcome: OutcomeAccepted}
	if expect != nil {
		want = *expect
	}
	if ev.Outcome != want.Outcome {
		result.AddError(fmt.Sprintf("step %d: expected %s, got %s %s", i, want.Outcome, ev.Outcome, ev.Code))
		return
	}
	if want.Code != "" && ev.Code != want.Code {
		result.AddError(fmt.Sprintf("step %d: expected code %s, got %s", i, want.Code, ev.Code))
	}
}

func (h *Harness) state() State {
	names := h.builder.Names
	st := State{
		Transactions: h.view.Stats().Transactions,
		Nodes:        []NodeState{},
		Edges:        []EdgeState{},
	}

	for _, id := range h.view.Nodes() {
		n, err := h.view.GetNode(id)
		if err != nil {
			continue
		}
		ns := NodeState{
			Name:    names.NodeName(id),
			Kind:    n.Kind.String(),
			Label:   n.Label,
			Deleted: n.Deleted,
			Edges:   []string{},
			History: historyOf(n.History),
		}
		for _, eid := range n.EdgeIDs() {
			ns.Edges = append(ns.Edges, names.EdgeName(eid))
		}
		slices.Sort(ns.Edges)
		st.Nodes = append(st.Nodes, ns)
	}

	for _, id := range h.view.Edges() {
		e, err := h.view.GetEdge(id)
		if err != nil {
			continue
		}
		st.Edges = append(st.Edges, EdgeState{
			Name:    names.EdgeName(id),
			Kind:    string(e.Kind),
			From:    names.NodeName(e.From),
			To:      names.NodeName(e.To),
			Deleted: e.Deleted,
			History: historyOf(e.History),
		})
	}

	slices.SortFunc(st.Nodes, func(a, b NodeState) int { return cmp.Compare(a.Name, b.Name) })
	slices.SortFunc(st.Edges, func(a, b EdgeState) int { return cmp.Compare(a.Name, b.Name) })
	return st
}

func historyOf(events []model.RecordEvent) []int64 {
	out := make([]int64, len(events))
	for i, ev := range events {
		out[i] = int64(ev.Timestamp)
	}
	return out
}
