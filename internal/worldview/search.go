package worldview

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/datahog/internal/model"
)

// Match ranks, best first.
const (
	rankExact = iota
	rankPrefix
	rankSubstring
	rankText
)

// foldCase normalizes s for case-insensitive comparison. cases.Caser is not
// safe for concurrent use, so each call makes its own.
func foldCase(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// SearchNodes returns up to limit live nodes matching query. Exact label
// matches rank first, then label prefixes, then label substrings, then
// nodes whose inline text payload contains the query. Equal ranks are
// ordered by ID. A limit of zero or less means no limit.
func (w *WorldView) SearchNodes(query string, limit int) []model.Node {
	q := foldCase(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	type hit struct {
		rank int
		node model.Node
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var hits []hit
	for _, n := range w.st.nodes {
		if n.Deleted {
			continue
		}
		if r, ok := matchRank(q, n); ok {
			hits = append(hits, hit{rank: r, node: n})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return a.node.ID.Compare(b.node.ID)
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]model.Node, len(hits))
	for i, h := range hits {
		out[i] = h.node.Clone()
	}
	return out
}

func matchRank(q string, n model.Node) (int, bool) {
	label := foldCase(n.Label)
	switch {
	case label == q:
		return rankExact, true
	case strings.HasPrefix(label, q):
		return rankPrefix, true
	case strings.Contains(label, q):
		return rankSubstring, true
	}
	if !n.Data.IsHash() && len(n.Data.Inline) > 0 && utf8.Valid(n.Data.Inline) {
		if strings.Contains(foldCase(string(n.Data.Inline)), q) {
			return rankText, true
		}
	}
	return 0, false
}
