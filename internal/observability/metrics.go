package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// augmentation pipeline.
type Metrics struct {
	RecordsAugmented  prometheus.Counter
	RecordsSkipped    *prometheus.CounterVec // labels: reason={out_of_order,store_error,invalid}
	FieldFailures     *prometheus.CounterVec // labels: field
	ServiceAugmenting prometheus.Gauge

	AppendDuration    prometheus.Histogram
	AugmentDuration   prometheus.Histogram
	QueueDepth        prometheus.Gauge
	AdapterPolls      *prometheus.CounterVec // labels: source, outcome={success,error}
	TagResolutions    *prometheus.CounterVec // labels: outcome={hit,absent,error}
	ColdStartDuration prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsAugmented,
		m.RecordsSkipped,
		m.FieldFailures,
		m.ServiceAugmenting,
		m.AppendDuration,
		m.AugmentDuration,
		m.QueueDepth,
		m.AdapterPolls,
		m.TagResolutions,
		m.ColdStartDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsAugmented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weatherwd",
			Name:      "records_augmented_total",
			Help:      "Archive records successfully augmented and stored.",
		}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherwd",
			Name:      "records_skipped_total",
			Help:      "Archive records dropped without a stored supplement, by reason.",
		}, []string{"reason"}),
		FieldFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherwd",
			Name:      "field_failures_total",
			Help:      "Per-field derived computation failures.",
		}, []string{"field"}),
		ServiceAugmenting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherwd",
			Name:      "service_augmenting",
			Help:      "1 while an archive record is being augmented, 0 when idle.",
		}),
		AppendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weatherwd",
			Name:      "append_duration_seconds",
			Help:      "Duration of a supplementary store append.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		AugmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weatherwd",
			Name:      "augment_duration_seconds",
			Help:      "Duration of a complete merge-calculate-append cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherwd",
			Name:      "notification_queue_depth",
			Help:      "Archive notifications waiting for augmentation.",
		}),
		AdapterPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherwd",
			Name:      "adapter_polls_total",
			Help:      "External adapter fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		TagResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherwd",
			Name:      "tag_resolutions_total",
			Help:      "Tag lookups by outcome.",
		}, []string{"outcome"}),
		ColdStartDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherwd",
			Name:      "cold_start_duration_seconds",
			Help:      "Wall time of the last accumulator rebuild.",
		}),
	}
}
