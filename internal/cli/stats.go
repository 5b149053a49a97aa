package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/datahog/internal/worldview"
)

// StatsResult holds the stats result.
type StatsResult struct {
	worldview.Stats
	LogLength int64                    `json:"log_length"`
	Sources   []worldview.SourceStatus `json:"sources"`
	Roots     map[string]string        `json:"roots"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the world view rebuilt from the log",
		Long: `Print node, edge and transaction counts for the world view rebuilt
from the log, together with the status of every registered source.

Examples:
  datahog stats --db ./datahog.db
  datahog stats --config datahog.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), rootOpts, cmd)
		},
	}
	return cmd
}

func runStats(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	seq, err := s.lastSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}
	result := StatsResult{
		Stats:     s.view.Stats(),
		LogLength: seq,
		Sources:   s.view.SourceStatuses(),
		Roots:     make(map[string]string),
	}
	for src, root := range s.view.SourceRoots() {
		result.Roots[src.String()] = root.String()
	}

	return f.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "Log: %d entries\n", result.LogLength)
		fmt.Fprintf(w, "Transactions: %d (genesis included), watermark %d\n", result.Transactions, result.Watermark)
		fmt.Fprintf(w, "Nodes: %d (%d live)\n", result.Nodes, result.LiveNodes)
		fmt.Fprintf(w, "Edges: %d (%d live)\n", result.Edges, result.LiveEdges)
		fmt.Fprintf(w, "Alias classes: %d\n", result.AliasClasses)
		for _, st := range result.Sources {
			fmt.Fprintf(w, "Source %s: %d applied, %d duplicate(s), %d rejected\n",
				st.Name, st.Applied, st.Duplicates, st.Rejected)
		}
	})
}
