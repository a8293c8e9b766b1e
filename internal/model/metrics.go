package model

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "capset"

type metrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	ledgerEntries  *prometheus.GaugeVec
	itemFailures   prometheus.Counter
	compactedBlobs prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "operations_total",
			Help:      "Model operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "operation_duration_seconds",
			Help:      "Time spent running model operations on the executor.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "queue_depth",
			Help:      "Operations waiting for the executor.",
		}),
		ledgerEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "ledger_entries",
			Help:      "Entries in the undo and redo ledgers.",
		}, []string{"ledger"}),
		itemFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "item_failures_total",
			Help:      "Failed items reported by multi-item commands.",
		}),
		compactedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "model",
			Name:      "compacted_blobs_total",
			Help:      "Unreferenced blobs removed by compaction.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.operations, m.duration, m.queueDepth, m.ledgerEntries, m.itemFailures, m.compactedBlobs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeLedgers(state *State) {
	m.ledgerEntries.WithLabelValues("undo").Set(float64(state.UndoDepth))
	m.ledgerEntries.WithLabelValues("redo").Set(float64(state.RedoDepth))
}
