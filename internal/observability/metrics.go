// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Collection metrics
	SignaturesCollected  *prometheus.CounterVec
	BlocksScanned        *prometheus.CounterVec
	TransactionsRecorded *prometheus.CounterVec
	BodiesBackfilled     prometheus.Counter
	BoundaryStalls       prometheus.Counter
	CollectionErrors     *prometheus.CounterVec

	// Chain position metrics
	HighestFinalizedSlot prometheus.Gauge
	ForwardScanPosition  *prometheus.GaugeVec

	// Decode metrics
	EventsDecoded *prometheus.CounterVec

	// Replay metrics
	EventsReplayed prometheus.Counter
	ReplayHalts    *prometheus.CounterVec

	// Valuation metrics
	SnapshotsWritten prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "lending_index"
	}

	return &Metrics{
		// Collection metrics
		SignaturesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "signatures_collected_total",
			Help:      "Total number of historical signatures committed per protocol",
		}, []string{"protocol"}),
		BlocksScanned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "blocks_scanned_total",
			Help:      "Total number of blocks scanned forward per protocol",
		}, []string{"protocol"}),
		TransactionsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "transactions_recorded_total",
			Help:      "Total number of transaction records upserted by provenance",
		}, []string{"protocol", "provenance"}),
		BodiesBackfilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "bodies_backfilled_total",
			Help:      "Total number of raw transaction bodies attached by the backfiller",
		}),
		BoundaryStalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "boundary_stalls_total",
			Help:      "Total number of full signature batches spanning a single slot",
		}),
		CollectionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection",
			Name:      "errors_total",
			Help:      "Total number of collection errors by component and type",
		}, []string{"component", "error_type"}),

		// Chain position metrics
		HighestFinalizedSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "highest_finalized_slot",
			Help:      "Latest finalized slot observed",
		}),
		ForwardScanPosition: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "forward_scan_position",
			Help:      "Last block collected by the forward scanner per protocol",
		}, []string{"protocol"}),

		// Decode metrics
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "events_decoded_total",
			Help:      "Total number of protocol events extracted from raw bodies",
		}, []string{"protocol"}),

		// Replay metrics
		EventsReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "events_replayed_total",
			Help:      "Total number of decoded events applied to loan entities",
		}),
		ReplayHalts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "halts_total",
			Help:      "Total number of replay halts by protocol and reason",
		}, []string{"protocol", "reason"}),

		// Valuation metrics
		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "valuation",
			Name:      "snapshots_written_total",
			Help:      "Total number of health snapshots written",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSignaturesCollected adds committed historical signatures for a protocol.
func RecordSignaturesCollected(protocol string, n int) {
	DefaultMetrics.SignaturesCollected.WithLabelValues(protocol).Add(float64(n))
}

// RecordBlockScanned increments the forward-scanned block counter.
func RecordBlockScanned(protocol string) {
	DefaultMetrics.BlocksScanned.WithLabelValues(protocol).Inc()
}

// RecordTransactionRecorded increments the transaction upsert counter.
func RecordTransactionRecorded(protocol, provenance string) {
	DefaultMetrics.TransactionsRecorded.WithLabelValues(protocol, provenance).Inc()
}

// RecordBodiesBackfilled adds attached raw bodies.
func RecordBodiesBackfilled(n int) {
	DefaultMetrics.BodiesBackfilled.Add(float64(n))
}

// RecordBoundaryStall increments the single-slot full batch counter.
func RecordBoundaryStall() {
	DefaultMetrics.BoundaryStalls.Inc()
}

// RecordCollectionError records a collection error.
func RecordCollectionError(component, errorType string) {
	DefaultMetrics.CollectionErrors.WithLabelValues(component, errorType).Inc()
}

// UpdateHighestFinalizedSlot updates the finalized slot gauge.
func UpdateHighestFinalizedSlot(slot int64) {
	DefaultMetrics.HighestFinalizedSlot.Set(float64(slot))
}

// UpdateForwardScanPosition updates the per-protocol scan position gauge.
func UpdateForwardScanPosition(protocol string, slot int64) {
	DefaultMetrics.ForwardScanPosition.WithLabelValues(protocol).Set(float64(slot))
}

// RecordEventsDecoded adds extracted protocol events.
func RecordEventsDecoded(protocol string, n int) {
	DefaultMetrics.EventsDecoded.WithLabelValues(protocol).Add(float64(n))
}

// RecordEventsReplayed adds applied decoded events.
func RecordEventsReplayed(n int) {
	DefaultMetrics.EventsReplayed.Add(float64(n))
}

// RecordReplayHalt increments the replay halt counter.
func RecordReplayHalt(protocol, reason string) {
	DefaultMetrics.ReplayHalts.WithLabelValues(protocol, reason).Inc()
}

// RecordSnapshotsWritten adds written health snapshots.
func RecordSnapshotsWritten(n int) {
	DefaultMetrics.SnapshotsWritten.Add(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
