package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics contains statically-registered Prometheus metrics for the package.
var metrics = struct {
	recordsBuilt    *prometheus.CounterVec
	recordsAccepted *prometheus.CounterVec
	recordsRejected *prometheus.CounterVec
	batchesInserted prometheus.Counter
	insertDuration  prometheus.Histogram
	pendingBatches  prometheus.Gauge
	runsTotal       *prometheus.CounterVec
}{
	recordsBuilt: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "records_built_total",
		Help: `The cumulative number of records finalized by a record builder,
before organism filtering.`,
	}, []string{"namespace"}),
	recordsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "records_accepted_total",
		Help:      `The cumulative number of records that passed the organism filter.`,
	}, []string{"namespace"}),
	recordsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "records_rejected_total",
		Help: `The cumulative number of records dropped before insertion: records
without an id, and records the organism filter refused because they name no
organism or an unsupported one.`,
	}, []string{"namespace"}),
	batchesInserted: promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "batches_inserted_total",
		Help:      `The cumulative number of batches successfully written to the store.`,
	}),
	insertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "insert_duration_seconds",
		Help: `How long a single batch insert took against the store.

Only one insert is in flight at a time, so a slow store shows up here before
it shows up as memory growth in pending_batches.`,
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	}),
	pendingBatches: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "pending_batches",
		Help: `The number of batches submitted to the delivery queue that have not
completed yet, including the one currently being inserted.`,
	}),
	runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grounding",
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      `The cumulative number of ingestion runs, by namespace and outcome.`,
	}, []string{"namespace", "outcome"}),
}
