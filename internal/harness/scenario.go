package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a conformance test: transactions delivered in file order,
// the outcome each one should have, and assertions over the final graph.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are delivered to the world view in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one delivered transaction.
type Step struct {
	TxSpec `yaml:",inline"`

	// Expect is the outcome the step must have. Nil means accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes a step outcome.
type Expect struct {
	// Outcome is one of OutcomeAccepted, OutcomeDuplicate or
	// OutcomeRejected.
	Outcome string `yaml:"outcome"`

	// Code is the model.ErrorCode of a rejection. Empty matches any code.
	Code string `yaml:"code,omitempty"`
}

// Step outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Assertion validates the final state. Which fields apply depends on Type;
// unset optional fields are not checked.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Node and Edge name the subject.
	Node string `yaml:"node,omitempty"`
	Edge string `yaml:"edge,omitempty"`

	Kind    string   `yaml:"kind,omitempty"`
	Label   *string  `yaml:"label,omitempty"`
	Deleted *bool    `yaml:"deleted,omitempty"`
	From    string   `yaml:"from,omitempty"`
	To      string   `yaml:"to,omitempty"`
	Edges   []string `yaml:"edges,omitempty"`

	// History is the expected timestamps of the subject's history.
	History []int64 `yaml:"history,omitempty"`

	// Nodes is the expected alias class or the expected search hits in
	// rank order.
	Nodes []string `yaml:"nodes,omitempty"`

	Query string `yaml:"query,omitempty"`
	Limit int    `yaml:"limit,omitempty"`

	// Count is the expected number of applied transactions.
	Count *int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertNode         = "node"
	AssertNodeAbsent   = "node_absent"
	AssertEdge         = "edge"
	AssertEdgeAbsent   = "edge_absent"
	AssertAliases      = "aliases"
	AssertSearch       = "search"
	AssertTransactions = "transactions"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Timestamp == nil {
			return fmt.Errorf("step %d: ts is required", i)
		}
		if step.Source == "" {
			return fmt.Errorf("step %d: source is required", i)
		}
		if step.Expect == nil {
			continue
		}
		switch step.Expect.Outcome {
		case OutcomeAccepted, OutcomeDuplicate:
			if step.Expect.Code != "" {
				return fmt.Errorf("step %d: code is only valid for rejected steps", i)
			}
		case OutcomeRejected:
		default:
			return fmt.Errorf("step %d: unknown outcome %q", i, step.Expect.Outcome)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertNode, AssertNodeAbsent, AssertAliases:
		if a.Node == "" {
			return fmt.Errorf("%s requires node", a.Type)
		}
	case AssertEdge, AssertEdgeAbsent:
		if a.Edge == "" {
			return fmt.Errorf("%s requires edge", a.Type)
		}
	case AssertSearch:
		if a.Query == "" {
			return fmt.Errorf("search requires query")
		}
	case AssertTransactions:
		if a.Count == nil {
			return fmt.Errorf("transactions requires count")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
