package harness

// TraceEvent records what happened to one step.
type TraceEvent struct {
	Step      int    `json:"step"`
	Timestamp int64  `json:"ts"`
	Source    string `json:"source"`
	Records   int    `json:"records"`
	Outcome   string `json:"outcome"`
	Code      string `json:"code,omitempty"`
}

// NodeState is a node as reported by name.
type NodeState struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Label   string   `json:"label,omitempty"`
	Deleted bool     `json:"deleted,omitempty"`
	Edges   []string `json:"edges"`
	History []int64  `json:"history"`
}

// EdgeState is an edge as reported by name.
type EdgeState struct {
	Name    string  `json:"name"`
	Kind    string  `json:"kind"`
	From    string  `json:"from"`
	To      string  `json:"to"`
	Deleted bool    `json:"deleted,omitempty"`
	History []int64 `json:"history"`
}

// State is the final graph, sorted by name.
type State struct {
	Transactions int         `json:"transactions"`
	Nodes        []NodeState `json:"nodes"`
	Edges        []EdgeState `json:"edges"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step outcome and assertion matched.
	Pass bool `json:"pass"`

	// Trace has one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final graph.
	State State `json:"state"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
