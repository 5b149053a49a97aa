package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assertionSteps = `
name: assertion_checks
description: "a small graph to assert against"
steps:
  - ts: 1
    source: s1
    records:
      - create_node: {id: a, kind: label, label: Apple}
      - create_node: {id: b, kind: label, label: Banana}
      - create_edge: {id: a-b, kind: equality, from: a, to: b}
`

func runAssertions(t *testing.T, assertions string) *Result {
	t.Helper()
	scenario, err := ParseScenario([]byte(assertionSteps + assertions))
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestPassingAssertions(t *testing.T) {
	result := runAssertions(t, `
assertions:
  - type: node
    node: a
    kind: label
    label: Apple
    deleted: false
    edges: [a-b]
    history: [1]
  - type: edge
    edge: a-b
    kind: equality
    from: a
    to: b
  - type: aliases
    node: b
    nodes: [b, a]
  - type: node_absent
    node: c
  - type: edge_absent
    edge: b-a
  - type: search
    query: an
    nodes: [b]
  - type: transactions
    count: 2
`)
	assert.True(t, result.Pass, result.Errors)
}

func TestFailingAssertionsReportExpectedAndActual(t *testing.T) {
	result := runAssertions(t, `
assertions:
  - type: node
    node: a
    label: Apricot
    edges: []
  - type: edge
    edge: a-b
    to: a
  - type: aliases
    node: a
  - type: node_absent
    node: b
  - type: edge
    edge: missing
  - type: search
    query: apple
    nodes: []
  - type: transactions
    count: 9
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 7)

	assert.Contains(t, result.Errors[0], "Assertion failed: node a")
	assert.Contains(t, result.Errors[0], "Expected: label=Apricot, edges=[]")
	assert.Contains(t, result.Errors[0], "Actual: label=Apple, edges=[a-b]")
	assert.Contains(t, result.Errors[1], "Expected: to=a")
	assert.Contains(t, result.Errors[2], "class=[a]")
	assert.Contains(t, result.Errors[2], "class=[a b]")
	assert.Contains(t, result.Errors[3], "node present")
	assert.Contains(t, result.Errors[4], "edge present")
	assert.Contains(t, result.Errors[5], "hits=[a]")
	assert.Contains(t, result.Errors[6], "count=9")
	assert.Contains(t, result.Errors[6], "count=2")
}

func TestAssertionErrorFormat(t *testing.T) {
	err := &AssertionError{Type: AssertEdge, Subject: "e", Expected: "from=a", Actual: "from=b"}
	assert.Equal(t, "Assertion failed: edge e\n  Expected: from=a\n  Actual: from=b", err.Error())
}
