package worldview

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/roach88/datahog/internal/model"
	"github.com/roach88/datahog/internal/source"
)

var tracer = otel.Tracer("datahog/worldview")

// DefaultPollInterval is how often Run syncs when no source signals a
// change.
const DefaultPollInterval = 5 * time.Second

// CycleIDGenerator generates correlation IDs for sync cycles.
// Implemented by UUIDv7CycleIDs (production) and test generators.
type CycleIDGenerator interface {
	Generate() string
}

// UUIDv7CycleIDs generates time-sortable UUIDv7 cycle IDs, so log lines from
// successive cycles sort by start time.
//
// Thread-safety: UUIDv7CycleIDs is stateless and safe for concurrent use.
type UUIDv7CycleIDs struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7CycleIDs) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// WorldView is the unified, queryable graph.
//
// Thread-safety model:
//   - queries take the read lock and return clones
//   - applies are serialized by applyMu and build their changes off-lock
//   - the write lock is held only to swap committed state in
type WorldView struct {
	logger    *slog.Logger
	clock     model.Clock
	local     model.SourceID
	writeBack source.Writer
	journal   source.Writer
	metrics   *Metrics
	cycleIDs  CycleIDGenerator
	interval  time.Duration

	applyMu sync.Mutex
	mu      sync.RWMutex
	st      *state

	srcMu   sync.Mutex
	sources []*registered
}

// Option configures a WorldView.
type Option func(*WorldView)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *WorldView) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithLocalSource sets the SourceID stamped on UpdateNode and UpdateEdge
// transactions. A random ID is used by default.
func WithLocalSource(id model.SourceID) Option {
	return func(w *WorldView) { w.local = id }
}

// WithClock sets the clock for locally built transactions.
func WithClock(c model.Clock) Option {
	return func(w *WorldView) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithWriteBack persists every locally submitted transaction to wr.
func WithWriteBack(wr source.Writer) Option {
	return func(w *WorldView) { w.writeBack = wr }
}

// WithJournal appends every transaction applied from a registered source to
// wr at the end of each sync. Transactions delivered by wr itself, when wr
// is also a registered source, are not appended again.
func WithJournal(wr source.Writer) Option {
	return func(w *WorldView) { w.journal = wr }
}

// WithMetrics records apply and sync metrics.
func WithMetrics(m *Metrics) Option {
	return func(w *WorldView) { w.metrics = m }
}

// WithCycleIDs sets the sync-cycle ID generator.
func WithCycleIDs(g CycleIDGenerator) Option {
	return func(w *WorldView) {
		if g != nil {
			w.cycleIDs = g
		}
	}
}

// WithPollInterval sets how often Run syncs without a change signal.
func WithPollInterval(d time.Duration) Option {
	return func(w *WorldView) {
		if d > 0 {
			w.interval = d
		}
	}
}

// genesis creates the Universe label every view is rooted at.
var genesis = model.MustTransaction(0, model.SourceID{},
	model.CreateNode(model.NewNode(model.RootID, model.LabelKind(), "Universe", model.DataHash{})))

// Genesis returns the transaction New applies first.
func Genesis() model.Transaction { return genesis }

// New creates a WorldView holding only the Universe root node.
func New(opts ...Option) *WorldView {
	w := &WorldView{
		logger:   slog.Default(),
		clock:    model.DefaultClock,
		local:    model.RandomSourceID(),
		cycleIDs: UUIDv7CycleIDs{},
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}

	ktxs, err := keyed(genesis)
	if err != nil {
		panic("worldview: genesis unencodable: " + err.Error())
	}
	st, err := fold(ktxs)
	if err != nil {
		panic("worldview: genesis rejected: " + err.Error())
	}
	w.st = st
	w.metrics.size(len(st.nodes), len(st.edges))
	return w
}

// RootID returns the Universe node's ID.
func (w *WorldView) RootID() model.NodeID { return model.RootID }

// LocalSource returns the SourceID of locally built transactions.
func (w *WorldView) LocalSource() model.SourceID { return w.local }
