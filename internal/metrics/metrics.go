// Package metrics exposes snapshot reconstruction metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rpattn/entityhistory/internal/snapshot"
)

const metricsNamespace = "entityhistory"

// SnapshotMetrics records one sample per GetSnapshot call. It implements
// snapshot.Observer and is safe for concurrent use.
type SnapshotMetrics struct {
	// SnapshotsTotal counts reconstructions.
	// Labels: entity_type, outcome (ok, absent, error)
	SnapshotsTotal *prometheus.CounterVec

	// DurationSeconds measures loading plus folding time.
	// Labels: entity_type
	DurationSeconds *prometheus.HistogramVec

	// PropertyChanges measures how many property changes a reconstruction walked.
	PropertyChanges prometheus.Histogram
}

var _ snapshot.Observer = (*SnapshotMetrics)(nil)

// NewSnapshotMetrics creates the metrics and registers them with reg.
func NewSnapshotMetrics(reg prometheus.Registerer) *SnapshotMetrics {
	factory := promauto.With(reg)
	return &SnapshotMetrics{
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "snapshots_total",
				Help:      "Total number of snapshot reconstructions by entity type and outcome",
			},
			[]string{"entity_type", "outcome"},
		),
		DurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "snapshot_duration_seconds",
				Help:      "Time spent loading and reconstructing a snapshot in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"entity_type"},
		),
		PropertyChanges: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "snapshot_property_changes",
				Help:      "Number of property changes walked per reconstruction",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}

// ObserveSnapshot implements snapshot.Observer.
func (m *SnapshotMetrics) ObserveSnapshot(obs snapshot.Observation) {
	m.SnapshotsTotal.WithLabelValues(obs.EntityType, string(obs.Outcome)).Inc()
	m.DurationSeconds.WithLabelValues(obs.EntityType).Observe(obs.Duration.Seconds())
	if obs.Outcome == snapshot.OutcomeOK {
		m.PropertyChanges.Observe(float64(obs.PropertyChanges))
	}
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
