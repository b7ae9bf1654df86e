package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_tagger"

// Metrics holds the Prometheus counters, histograms, and gauges for the tagging service.
type Metrics struct {
	JobsConsumed    prometheus.Counter
	ResultsProduced prometheus.Counter
	JobsProcessed   *prometheus.CounterVec // labels: status={succeeded,failed}
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Tagging metrics.
	TaggingDuration prometheus.Histogram
	TaggedCells     prometheus.Counter
	SkippedGroups   prometheus.Counter
	Overwrites      prometheus.Counter
	TrackCache      *prometheus.CounterVec // labels: result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Total job requests read from the source topic.",
		}),
		ResultsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_produced_total",
			Help:      "Total job results written to the sink topic.",
		}),
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Tagging jobs by final status.",
		}, []string{"status"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of job requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-tag-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		TaggingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tagging_duration_seconds",
			Help:      "Wall time of a single tagging job, from track load to output write.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 300, 900},
		}),
		TaggedCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tagged_cells_total",
			Help:      "Grid cells assigned a storm id.",
		}),
		SkippedGroups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_time_groups_total",
			Help:      "Track timestamps with no matching grid time.",
		}),
		Overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overwritten_cells_total",
			Help:      "Cells reassigned to a later storm within the same time step.",
		}),
		TrackCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "track_cache_total",
			Help:      "Track file cache lookups by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.JobsConsumed,
		m.ResultsProduced,
		m.JobsProcessed,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.TaggingDuration,
		m.TaggedCells,
		m.SkippedGroups,
		m.Overwrites,
		m.TrackCache,
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
