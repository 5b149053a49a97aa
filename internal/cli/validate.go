package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/datahog/internal/config"
	"github.com/roach88/datahog/internal/harness"
	"github.com/roach88/datahog/internal/model"
)

// File kinds accepted by validate.
const (
	KindAuto     = "auto"
	KindConfig   = "config"
	KindTxs      = "txs"
	KindScenario = "scenario"
)

// ValidationError is one problem found in a file.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	File   string            `json:"file"`
	Kind   string            `json:"kind"`
	Valid  bool              `json:"valid"`
	Items  int               `json:"items"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kind string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a config, transaction or scenario file",
		Long: `Validate a file without touching the log.

Config files (.yaml or .cue) are checked against the config schema.
Transaction files are parsed, built and structurally validated. Scenario
files are parsed and checked for required fields.

With --kind auto, .cue files are configs and YAML files are told apart by
their top-level keys: transactions for transaction files, steps for
scenarios, anything else for configs.

Exit codes:
  0 - File is valid
  1 - File is invalid
  2 - Command error (file not found, etc.)

Examples:
  datahog validate datahog.yaml
  datahog validate txs.yaml --kind txs
  datahog validate scenarios/late_arrival.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", KindAuto, "file kind (auto|config|txs|scenario)")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return f.Fail(ExitCommandError, fmt.Sprintf("failed to read %s", path), err)
	}

	kind := opts.Kind
	if kind == KindAuto {
		kind = detectKind(path, data)
	}
	f.VerboseLog("Validating %s as %s", path, kind)

	result := ValidationResult{File: path, Kind: kind}
	switch kind {
	case KindConfig:
		result.Items, result.Errors = validateConfig(path, data)
	case KindTxs:
		result.Items, result.Errors = validateTxs(data)
	case KindScenario:
		result.Items, result.Errors = validateScenario(data)
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q: must be one of auto, config, txs, scenario", opts.Kind))
	}
	result.Valid = len(result.Errors) == 0

	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    result.Errors[0].Code,
				Message: fmt.Sprintf("%s is invalid", path),
				Details: result.Errors,
			}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		outputValidateText(f.Writer, result)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// detectKind guesses a file's kind from its extension and top-level keys.
func detectKind(path string, data []byte) string {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return KindConfig
	}
	var top map[string]any
	if err := yaml.Unmarshal(data, &top); err != nil {
		return KindConfig
	}
	if _, ok := top["transactions"]; ok {
		return KindTxs
	}
	if _, ok := top["steps"]; ok {
		return KindScenario
	}
	return KindConfig
}

func validateConfig(path string, data []byte) (int, []ValidationError) {
	cfg, err := config.Parse(filepath.Base(path), data)
	if err != nil {
		var cerr *config.Error
		if errors.As(err, &cerr) {
			ve := ValidationError{Field: cerr.Field, Message: cerr.Message, Code: "E_CONFIG"}
			if cerr.Pos.IsValid() {
				ve.Line = cerr.Pos.Line()
			}
			return 0, []ValidationError{ve}
		}
		return 0, []ValidationError{{Message: err.Error(), Code: "E_CONFIG"}}
	}
	return len(cfg.Sources), nil
}

// validateTxs builds every transaction and checks its structure. State
// constraints need a world view and are left to import.
func validateTxs(data []byte) (int, []ValidationError) {
	file, err := harness.ParseTxFile(data)
	if err != nil {
		return 0, []ValidationError{{Message: err.Error(), Code: "E_PARSE"}}
	}

	var errs []ValidationError
	b := harness.NewBuilder(model.NamedSourceID("local"))
	for i, spec := range file.Transactions {
		field := fmt.Sprintf("transactions[%d]", i)
		tx, err := b.Build(spec)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: "E_BUILD"})
			continue
		}
		if err := tx.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error(), Code: ErrorCode(err)})
		}
	}
	return len(file.Transactions), errs
}

func validateScenario(data []byte) (int, []ValidationError) {
	scenario, err := harness.ParseScenario(data)
	if err != nil {
		return 0, []ValidationError{{Message: err.Error(), Code: "E_SCENARIO"}}
	}
	return len(scenario.Steps), nil
}

func outputValidateText(w io.Writer, result ValidationResult) {
	if result.Valid {
		fmt.Fprintf(w, "✓ %s is a valid %s file (%d item(s))\n", result.File, result.Kind, result.Items)
		return
	}
	fmt.Fprintf(w, "✗ %s is not a valid %s file\n", result.File, result.Kind)
	for _, e := range result.Errors {
		loc := e.Field
		if e.Line > 0 {
			loc = fmt.Sprintf("line %d: %s", e.Line, e.Field)
		}
		if loc != "" {
			fmt.Fprintf(w, "  [%s] %s: %s\n", e.Code, loc, e.Message)
		} else {
			fmt.Fprintf(w, "  [%s] %s\n", e.Code, e.Message)
		}
	}
}
