package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/datahog/internal/harness"
	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/worldview"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	File   string
	Source string
	DryRun bool
}

// ImportedTx is the outcome of one imported transaction.
type ImportedTx struct {
	Index     int             `json:"index"`
	Timestamp model.Timestamp `json:"ts"`
	Hash      string          `json:"hash"`
	Outcome   string          `json:"outcome"`
	Code      string          `json:"code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// ImportResult holds the import result.
type ImportResult struct {
	File         string       `json:"file"`
	Transactions []ImportedTx `json:"transactions"`
	Accepted     int          `json:"accepted"`
	Duplicates   int          `json:"duplicates"`
	Rejected     int          `json:"rejected"`
	DryRun       bool         `json:"dry_run,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Apply transactions from a YAML file and append them to the log",
		Long: `Read transactions from a YAML file, apply each one to the world view
rebuilt from the log, and append the accepted ones to the log.

Transactions are applied in file order. A rejected transaction is
reported and skipped; the rest are still applied. Transactions without a
source are stamped with --source, and without a ts with the current time.

Exit codes:
  0 - Every transaction was accepted or already present
  1 - One or more transactions were rejected
  2 - Command error (unreadable file, corrupt log, etc.)

Examples:
  datahog import --file txs.yaml --db ./datahog.db
  datahog import --file txs.yaml --dry-run --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "YAML transaction file (required)")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().StringVar(&opts.Source, "source", "local", "source name for transactions that omit one")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "apply without appending to the log")

	return cmd
}

func runImport(ctx context.Context, opts *ImportOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	file, err := harness.LoadTxFile(opts.File)
	if err != nil {
		return f.Fail(ExitCommandError, fmt.Sprintf("failed to load %s", opts.File), err)
	}

	local := model.NamedSourceID(opts.Source)
	txs, err := harness.NewBuilder(local).BuildAll(file.Transactions)
	if err != nil {
		return f.Fail(ExitCommandError, fmt.Sprintf("failed to build %s", opts.File), err)
	}

	s, err := openSession(ctx, opts.RootOptions, cmd, worldview.WithLocalSource(local))
	if err != nil {
		return err
	}
	defer s.Close()

	result := ImportResult{
		File:         opts.File,
		Transactions: make([]ImportedTx, 0, len(txs)),
		DryRun:       opts.DryRun,
	}
	for i, tx := range txs {
		item, err := importTx(ctx, s.view, tx, opts.DryRun)
		if err != nil {
			return f.Fail(ExitCommandError, "failed to append to log", err)
		}
		item.Index = i
		switch item.Outcome {
		case harness.OutcomeAccepted:
			result.Accepted++
		case harness.OutcomeDuplicate:
			result.Duplicates++
		default:
			result.Rejected++
		}
		f.VerboseLog("tx %d at %d: %s", i, tx.Timestamp, item.Outcome)
		result.Transactions = append(result.Transactions, item)
	}

	if err := f.Emit(result, func(w io.Writer) { outputImportText(w, result) }); err != nil {
		return err
	}
	if result.Rejected > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d transaction(s) rejected", result.Rejected))
	}
	return nil
}

// importTx applies tx and classifies the outcome. The returned error is
// set only when an accepted transaction could not be persisted.
func importTx(ctx context.Context, view *worldview.WorldView, tx model.Transaction, dryRun bool) (ImportedTx, error) {
	item := ImportedTx{Timestamp: tx.Timestamp}
	if h, err := model.TransactionHash(tx); err == nil {
		item.Hash = h.String()
	}

	before := view.Stats().Transactions
	var err error
	if dryRun {
		err = view.DoTx(tx)
	} else {
		err = view.Submit(ctx, tx)
	}
	switch {
	case err == nil && view.Stats().Transactions == before:
		item.Outcome = harness.OutcomeDuplicate
	case err == nil:
		item.Outcome = harness.OutcomeAccepted
	case model.IsConstraintViolation(err) || model.IsMalformed(err):
		item.Outcome = harness.OutcomeRejected
		item.Code = ErrorCode(err)
		item.Error = err.Error()
	default:
		return item, err
	}
	return item, nil
}

func outputImportText(w io.Writer, result ImportResult) {
	for _, tx := range result.Transactions {
		status := "✓"
		if tx.Outcome == harness.OutcomeRejected {
			status = "✗"
		}
		fmt.Fprintf(w, "%s tx %d (ts %d): %s\n", status, tx.Index, tx.Timestamp, tx.Outcome)
		if tx.Error != "" {
			fmt.Fprintf(w, "  %s\n", tx.Error)
		}
	}
	fmt.Fprintln(w)
	verb := "Imported"
	if result.DryRun {
		verb = "Checked"
	}
	fmt.Fprintf(w, "%s %s: %d accepted, %d duplicate(s), %d rejected\n",
		verb, result.File, result.Accepted, result.Duplicates, result.Rejected)
}
