package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/worldview"
)

// HistoryEntry is one applied record, summarized.
type HistoryEntry struct {
	Timestamp model.Timestamp `json:"ts"`
	Op        string          `json:"op"`
}

// EdgeSummary is an edge as listed on a node.
type EdgeSummary struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
}

// NodeView is the rendered form of a node.
type NodeView struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Label     string         `json:"label,omitempty"`
	OpVersion uint32         `json:"op_version,omitempty"`
	Deleted   bool           `json:"deleted,omitempty"`
	Text      string         `json:"text,omitempty"`
	Hash      string         `json:"hash,omitempty"`
	Size      int            `json:"size"`
	Canonical string         `json:"canonical"`
	Aliases   []string       `json:"aliases"`
	Edges     []EdgeSummary  `json:"edges"`
	History   []HistoryEntry `json:"history"`
}

// EdgeView is the rendered form of an edge.
type EdgeView struct {
	EdgeSummary
	Validity model.Validity `json:"validity"`
	Deleted  bool           `json:"deleted,omitempty"`
	History  []HistoryEntry `json:"history"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one node or edge with its history",
		Long: `Print a node or an edge of the world view rebuilt from the log.

IDs are 64-digit hex, or any unambiguous prefix. "root" names the
Universe node.

Examples:
  datahog show node root --db ./datahog.db
  datahog show node 3f2a9c --db ./datahog.db
  datahog show edge 9b1e --format json`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "node <id>",
		Short:         "Print a node",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowNode(cmd.Context(), rootOpts, cmd, args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "edge <id>",
		Short:         "Print an edge",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowEdge(cmd.Context(), rootOpts, cmd, args[0])
		},
	})

	return cmd
}

func runShowNode(ctx context.Context, opts *RootOptions, cmd *cobra.Command, arg string) error {
	f := newFormatter(opts, cmd)

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := resolveNode(s.view, arg)
	if err != nil {
		return f.Fail(ExitFailure, fmt.Sprintf("node %s", arg), err)
	}
	view, err := renderNode(s.view, id)
	if err != nil {
		return f.Fail(ExitFailure, fmt.Sprintf("node %s", arg), err)
	}

	return f.Emit(view, func(w io.Writer) { printNode(w, view) })
}

func runShowEdge(ctx context.Context, opts *RootOptions, cmd *cobra.Command, arg string) error {
	f := newFormatter(opts, cmd)

	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := resolveEdge(s.view, arg)
	if err != nil {
		return f.Fail(ExitFailure, fmt.Sprintf("edge %s", arg), err)
	}
	e, err := s.view.GetEdge(id)
	if err != nil {
		return f.Fail(ExitFailure, fmt.Sprintf("edge %s", arg), err)
	}
	view := EdgeView{
		EdgeSummary: summarizeEdge(e),
		Validity:    e.Validity,
		Deleted:     e.Deleted,
		History:     summarizeHistory(e.History),
	}

	return f.Emit(view, func(w io.Writer) {
		fmt.Fprintf(w, "Edge %s\n", view.ID)
		fmt.Fprintf(w, "  Kind: %s\n", view.Kind)
		fmt.Fprintf(w, "  From: %s\n", view.From)
		fmt.Fprintf(w, "  To: %s\n", view.To)
		fmt.Fprintf(w, "  Validity: %s\n", formatValidity(view.Validity))
		if view.Deleted {
			fmt.Fprintln(w, "  Deleted: true")
		}
		printHistory(w, view.History)
	})
}

func renderNode(wv *worldview.WorldView, id model.NodeID) (NodeView, error) {
	n, err := wv.GetNode(id)
	if err != nil {
		return NodeView{}, err
	}
	edges, err := wv.EdgesOf(id)
	if err != nil {
		return NodeView{}, err
	}

	view := NodeView{
		ID:        n.ID.String(),
		Kind:      n.Kind.String(),
		Label:     n.Label,
		OpVersion: uint32(n.OpVersion),
		Deleted:   n.Deleted,
		Canonical: wv.Canonical(id).String(),
		Aliases:   []string{},
		Edges:     make([]EdgeSummary, 0, len(edges)),
		History:   summarizeHistory(n.History),
	}
	if n.Data.IsHash() {
		view.Hash = n.Data.Hash.String()
	} else {
		view.Size = len(n.Data.Inline)
		if utf8.Valid(n.Data.Inline) {
			view.Text = string(n.Data.Inline)
		}
	}
	for _, alias := range wv.Aliases(id) {
		if alias != id {
			view.Aliases = append(view.Aliases, alias.String())
		}
	}
	for _, e := range edges {
		view.Edges = append(view.Edges, summarizeEdge(e))
	}
	return view, nil
}

func printNode(w io.Writer, view NodeView) {
	fmt.Fprintf(w, "Node %s\n", view.ID)
	fmt.Fprintf(w, "  Kind: %s\n", view.Kind)
	if view.Label != "" {
		fmt.Fprintf(w, "  Label: %s\n", view.Label)
	}
	if view.OpVersion != 0 {
		fmt.Fprintf(w, "  Version: %d\n", view.OpVersion)
	}
	if view.Deleted {
		fmt.Fprintln(w, "  Deleted: true")
	}
	switch {
	case view.Hash != "":
		fmt.Fprintf(w, "  Data: blob %s\n", view.Hash)
	case view.Text != "":
		fmt.Fprintf(w, "  Data: %d byte(s)\n", view.Size)
		for _, line := range strings.Split(view.Text, "\n") {
			fmt.Fprintf(w, "    | %s\n", line)
		}
	case view.Size > 0:
		fmt.Fprintf(w, "  Data: %d binary byte(s)\n", view.Size)
	}
	if view.Canonical != view.ID {
		fmt.Fprintf(w, "  Canonical: %s\n", view.Canonical)
	}
	for _, a := range view.Aliases {
		fmt.Fprintf(w, "  Alias: %s\n", a)
	}
	fmt.Fprintf(w, "  Edges: %d\n", len(view.Edges))
	for _, e := range view.Edges {
		fmt.Fprintf(w, "    %s %s %s -> %s\n", e.ID[:8], e.Kind, e.From[:8], e.To[:8])
	}
	printHistory(w, view.History)
}

func printHistory(w io.Writer, history []HistoryEntry) {
	fmt.Fprintf(w, "  History: %d record(s)\n", len(history))
	for _, h := range history {
		fmt.Fprintf(w, "    %d %s\n", h.Timestamp, h.Op)
	}
}

func summarizeEdge(e model.Edge) EdgeSummary {
	return EdgeSummary{
		ID:   e.ID.String(),
		Kind: string(e.Kind),
		From: e.From.String(),
		To:   e.To.String(),
	}
}

func summarizeHistory(events []model.RecordEvent) []HistoryEntry {
	out := make([]HistoryEntry, len(events))
	for i, ev := range events {
		out[i] = HistoryEntry{Timestamp: ev.Timestamp, Op: describeRecord(ev.Record)}
	}
	return out
}

// describeRecord renders a record as "create", "update label,data" or
// "delete".
func describeRecord(r model.Record) string {
	var ops []string
	switch {
	case r.Node != nil:
		if r.Node.Create != nil {
			ops = append(ops, "create")
		}
		for _, u := range r.Node.Updates {
			if u.Op == model.NodeOpDelete {
				return "delete"
			}
			ops = append(ops, string(u.Op))
		}
	case r.Edge != nil:
		if r.Edge.Create != nil {
			ops = append(ops, "create")
		}
		for _, u := range r.Edge.Updates {
			if u.Op == model.EdgeOpDelete {
				return "delete"
			}
			ops = append(ops, string(u.Op))
		}
	}
	if len(ops) > 0 && ops[0] == "create" {
		if len(ops) == 1 {
			return "create"
		}
		return "create, update " + strings.Join(ops[1:], ",")
	}
	return "update " + strings.Join(ops, ",")
}

func formatValidity(v model.Validity) string {
	switch v.Type {
	case model.ValidFrom:
		return fmt.Sprintf("from %d", v.Start)
	case model.ValidTo:
		return fmt.Sprintf("until %d", v.End)
	case model.ValidPeriod:
		return fmt.Sprintf("[%d, %d)", v.Start, v.End)
	}
	return string(v.Type)
}

// resolveNode accepts a full hex ID, "root", or a unique hex prefix of a
// node in the view.
func resolveNode(wv *worldview.WorldView, arg string) (model.NodeID, error) {
	if arg == "root" {
		return model.RootID, nil
	}
	ids := wv.Nodes()
	hexes := make([]string, len(ids))
	for i, id := range ids {
		hexes[i] = id.String()
	}
	i, err := matchPrefix(arg, hexes)
	if err != nil {
		return model.NodeID{}, err
	}
	return ids[i], nil
}

// resolveEdge is resolveNode for edges.
func resolveEdge(wv *worldview.WorldView, arg string) (model.EdgeID, error) {
	ids := wv.Edges()
	hexes := make([]string, len(ids))
	for i, id := range ids {
		hexes[i] = id.String()
	}
	i, err := matchPrefix(arg, hexes)
	if err != nil {
		return model.EdgeID{}, err
	}
	return ids[i], nil
}

func matchPrefix(arg string, hexes []string) (int, error) {
	prefix := strings.ToLower(arg)
	if prefix == "" {
		return 0, fmt.Errorf("empty id")
	}
	if _, err := model.ParseU256(strings.Repeat("0", max(0, 64-len(prefix))) + prefix); err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", arg, err)
	}
	found := -1
	for i, h := range hexes {
		if !strings.HasPrefix(h, prefix) {
			continue
		}
		if found >= 0 {
			return 0, fmt.Errorf("ambiguous id prefix %q", arg)
		}
		found = i
	}
	if found < 0 {
		return 0, model.NotFound(arg)
	}
	return found, nil
}
