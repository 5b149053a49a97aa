package worldview

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/datahog/internal/model"
)

// Metrics are the Prometheus collectors a WorldView updates. A nil
// *Metrics records nothing.
type Metrics struct {
	TxApplied    prometheus.Counter
	TxDuplicate  prometheus.Counter
	TxRejected   *prometheus.CounterVec
	Rebuilds     prometheus.Counter
	SourceErrors *prometheus.CounterVec
	SyncCycles   prometheus.Counter
	SyncDuration prometheus.Histogram
	Nodes        prometheus.Gauge
	Edges        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid global registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TxApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "tx_applied_total",
			Help:      "Transactions applied, including those applied by rebuild",
		}),
		TxDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "tx_duplicate_total",
			Help:      "Re-delivered transactions that were already applied",
		}),
		TxRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "tx_rejected_total",
			Help:      "Rejected transactions by error code",
		}, []string{"code"}),
		Rebuilds: f.NewCounter(prometheus.CounterOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "rebuilds_total",
			Help:      "State rebuilds caused by late-arriving transactions",
		}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "source_errors_total",
			Help:      "Failed source polls by source name",
		}, []string{"source"}),
		SyncCycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "sync_cycles_total",
			Help:      "Completed sync cycles",
		}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a sync cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "nodes",
			Help:      "Nodes in the view, tombstones included",
		}),
		Edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "datahog",
			Subsystem: "worldview",
			Name:      "edges",
			Help:      "Edges in the view, tombstones included",
		}),
	}
}

func (m *Metrics) applied(rebuilt bool) {
	if m == nil {
		return
	}
	m.TxApplied.Inc()
	if rebuilt {
		m.Rebuilds.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m == nil {
		return
	}
	m.TxDuplicate.Inc()
}

func (m *Metrics) rejected(err error) {
	if m == nil {
		return
	}
	code := "unknown"
	var e *model.Error
	if errors.As(err, &e) {
		code = string(e.Code)
	}
	m.TxRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) sourceError(name string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(name).Inc()
}

func (m *Metrics) synced(seconds float64) {
	if m == nil {
		return
	}
	m.SyncCycles.Inc()
	m.SyncDuration.Observe(seconds)
}

func (m *Metrics) size(nodes, edges int) {
	if m == nil {
		return
	}
	m.Nodes.Set(float64(nodes))
	m.Edges.Set(float64(edges))
}
