package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/worldview"
)

// AssertionContext provides what assertions query.
type AssertionContext struct {
	View  *worldview.WorldView
	Names *Names
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Subject  string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " %s", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertNode:
		return assertNode(a, actx)
	case AssertNodeAbsent:
		return assertNodeAbsent(a, actx)
	case AssertEdge:
		return assertEdge(a, actx)
	case AssertEdgeAbsent:
		return assertEdgeAbsent(a, actx)
	case AssertAliases:
		return assertAliases(a, actx)
	case AssertSearch:
		return assertSearch(a, actx)
	case AssertTransactions:
		return assertTransactions(a, actx)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// mismatch accumulates field comparisons for one subject.
type mismatch struct {
	expected []string
	actual   []string
}

func (m *mismatch) check(field string, want, got any) {
	ws, gs := fmt.Sprint(want), fmt.Sprint(got)
	if ws != gs {
		m.expected = append(m.expected, fmt.Sprintf("%s=%s", field, ws))
		m.actual = append(m.actual, fmt.Sprintf("%s=%s", field, gs))
	}
}

func (m *mismatch) err(typ, subject string) error {
	if len(m.expected) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Subject:  subject,
		Expected: strings.Join(m.expected, ", "),
		Actual:   strings.Join(m.actual, ", "),
	}
}

func assertNode(a Assertion, actx *AssertionContext) error {
	id, err := actx.Names.Node(a.Node)
	if err != nil {
		return err
	}
	n, err := actx.View.GetNode(id)
	if err != nil {
		return &AssertionError{Type: a.Type, Subject: a.Node, Expected: "node present", Actual: err.Error()}
	}

	var m mismatch
	if a.Kind != "" {
		m.check("kind", a.Kind, n.Kind.String())
	}
	if a.Label != nil {
		m.check("label", *a.Label, n.Label)
	}
	if a.Deleted != nil {
		m.check("deleted", *a.Deleted, n.Deleted)
	}
	if a.Edges != nil {
		var got []string
		for _, eid := range n.EdgeIDs() {
			got = append(got, actx.Names.EdgeName(eid))
		}
		m.check("edges", sorted(a.Edges), sorted(got))
	}
	if a.History != nil {
		m.check("history", a.History, historyOf(n.History))
	}
	return m.err(a.Type, a.Node)
}

func assertNodeAbsent(a Assertion, actx *AssertionContext) error {
	id, err := actx.Names.Node(a.Node)
	if err != nil {
		return err
	}
	if _, err := actx.View.GetNode(id); err == nil {
		return &AssertionError{Type: a.Type, Subject: a.Node, Expected: "no such node", Actual: "node present"}
	}
	return nil
}

func assertEdge(a Assertion, actx *AssertionContext) error {
	id, err := actx.Names.Edge(a.Edge)
	if err != nil {
		return err
	}
	e, err := actx.View.GetEdge(id)
	if err != nil {
		return &AssertionError{Type: a.Type, Subject: a.Edge, Expected: "edge present", Actual: err.Error()}
	}

	var m mismatch
	if a.Kind != "" {
		m.check("kind", a.Kind, string(e.Kind))
	}
	if a.From != "" {
		m.check("from", a.From, actx.Names.NodeName(e.From))
	}
	if a.To != "" {
		m.check("to", a.To, actx.Names.NodeName(e.To))
	}
	if a.Deleted != nil {
		m.check("deleted", *a.Deleted, e.Deleted)
	}
	if a.History != nil {
		m.check("history", a.History, historyOf(e.History))
	}
	return m.err(a.Type, a.Edge)
}

func assertEdgeAbsent(a Assertion, actx *AssertionContext) error {
	id, err := actx.Names.Edge(a.Edge)
	if err != nil {
		return err
	}
	if _, err := actx.View.GetEdge(id); err == nil {
		return &AssertionError{Type: a.Type, Subject: a.Edge, Expected: "no such edge", Actual: "edge present"}
	}
	return nil
}

func assertAliases(a Assertion, actx *AssertionContext) error {
	id, err := actx.Names.Node(a.Node)
	if err != nil {
		return err
	}
	want := a.Nodes
	if len(want) == 0 {
		want = []string{a.Node}
	}
	var m mismatch
	m.check("class", sorted(want), sorted(nodeNames(actx.Names, actx.View.Aliases(id))))
	return m.err(a.Type, a.Node)
}

func assertSearch(a Assertion, actx *AssertionContext) error {
	var got []string
	for _, n := range actx.View.SearchNodes(a.Query, a.Limit) {
		got = append(got, actx.Names.NodeName(n.ID))
	}
	var m mismatch
	m.check("hits", a.Nodes, got)
	return m.err(a.Type, fmt.Sprintf("%q", a.Query))
}

func assertTransactions(a Assertion, actx *AssertionContext) error {
	var m mismatch
	m.check("count", *a.Count, actx.View.Stats().Transactions)
	return m.err(a.Type, "")
}

func nodeNames(names *Names, ids []model.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = names.NodeName(id)
	}
	return out
}

func sorted(s []string) []string {
	c := slices.Clone(s)
	slices.Sort(c)
	return c
}
