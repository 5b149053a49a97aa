package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialCycleIDs generates sync-cycle IDs "<prefix>-1", "<prefix>-2", ...
//
// This keeps log output and sync reports comparable across runs.
// If prefix is empty, "cycle" is used.
//
// Thread-safety: safe for concurrent use.
type SequentialCycleIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialCycleIDs creates a generator with the given prefix.
func NewSequentialCycleIDs(prefix string) *SequentialCycleIDs {
	if prefix == "" {
		prefix = "cycle"
	}
	return &SequentialCycleIDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialCycleIDs) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}
