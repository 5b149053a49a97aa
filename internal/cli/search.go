package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	Limit int
}

// SearchHit is one matching node.
type SearchHit struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Label string `json:"label,omitempty"`
}

// SearchResult holds the search result.
type SearchResult struct {
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find nodes by label or text",
		Long: `Search live nodes by label and inline text, case-insensitively.

Exact label matches rank first, then label prefixes, then label
substrings, then text matches.

Examples:
  datahog search notes --db ./datahog.db
  datahog search "grocery list" --limit 5 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), opts, cmd, args[0])
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of hits (0 for all)")

	return cmd
}

func runSearch(ctx context.Context, opts *SearchOptions, cmd *cobra.Command, query string) error {
	f := newFormatter(opts.RootOptions, cmd)

	s, err := openSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	nodes := s.view.SearchNodes(query, opts.Limit)
	result := SearchResult{Query: query, Hits: make([]SearchHit, len(nodes))}
	for i, n := range nodes {
		result.Hits[i] = SearchHit{ID: n.ID.String(), Kind: n.Kind.String(), Label: n.Label}
	}

	return f.Emit(result, func(w io.Writer) {
		if len(result.Hits) == 0 {
			fmt.Fprintf(w, "No nodes match %q.\n", query)
			return
		}
		for _, h := range result.Hits {
			fmt.Fprintf(w, "%s  %-18s %s\n", h.ID[:8], h.Kind, h.Label)
		}
	})
}
