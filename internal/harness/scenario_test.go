package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/late_arrival.yaml")
	require.NoError(t, err)

	assert.Equal(t, "late_arrival", scenario.Name)
	require.Len(t, scenario.Steps, 5)
	step := scenario.Steps[2]
	require.NotNil(t, step.Timestamp)
	assert.Equal(t, int64(200), *step.Timestamp)
	assert.Equal(t, "s2", step.Source)
	require.Len(t, step.Records, 1)
	require.NotNil(t, step.Records[0].UpdateNode)
	assert.Equal(t, "Alpha Prime", *step.Records[0].UpdateNode.Label)

	require.NotNil(t, scenario.Steps[4].Expect)
	assert.Equal(t, OutcomeRejected, scenario.Steps[4].Expect.Outcome)
	assert.Equal(t, "CONSTRAINT_VIOLATION", scenario.Steps[4].Expect.Code)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenarioRejects(t *testing.T) {
	const step = `
steps:
  - ts: 1
    source: s1
    records: [{delete_node: a}]
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\n" + step,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\n" + step,
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\n",
			want: "steps list is required",
		},
		{
			name: "unknown field",
			yaml: "name: n\ndescription: d\nassertion: []\n" + step,
			want: "field assertion not found",
		},
		{
			name: "missing ts",
			yaml: "name: n\ndescription: d\nsteps:\n  - source: s1\n    records: []\n",
			want: "step 0: ts is required",
		},
		{
			name: "missing source",
			yaml: "name: n\ndescription: d\nsteps:\n  - ts: 1\n    records: []\n",
			want: "step 0: source is required",
		},
		{
			name: "unknown outcome",
			yaml: "name: n\ndescription: d\nsteps:\n  - ts: 1\n    source: s1\n    records: []\n    expect: {outcome: maybe}\n",
			want: "unknown outcome",
		},
		{
			name: "code on accepted",
			yaml: "name: n\ndescription: d\nsteps:\n  - ts: 1\n    source: s1\n    records: []\n    expect: {outcome: accepted, code: REPLAY}\n",
			want: "code is only valid for rejected steps",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\n" + step + "assertions:\n  - type: vibes\n",
			want: "unknown assertion type",
		},
		{
			name: "node assertion without node",
			yaml: "name: n\ndescription: d\n" + step + "assertions:\n  - type: node\n",
			want: "node requires node",
		},
		{
			name: "transactions without count",
			yaml: "name: n\ndescription: d\n" + step + "assertions:\n  - type: transactions\n",
			want: "transactions requires count",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEveryScenarioFileParses(t *testing.T) {
	entries, err := os.ReadDir("testdata/scenarios")
	require.NoError(t, err)
	for _, e := range entries {
		_, err := LoadScenario(filepath.Join("testdata/scenarios", e.Name()))
		assert.NoError(t, err, e.Name())
	}
}
