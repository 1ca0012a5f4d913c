package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atei"

// Metrics holds the Prometheus counters, histograms, and gauges for the ATEI service.
type Metrics struct {
	JobsConsumed    prometheus.Counter
	JobsProduced    prometheus.Counter
	JobParseErrors  prometheus.Counter
	PipelineRunning prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Zone scoring metrics.
	ZoneOutcomes        *prometheus.CounterVec // labels: status={done,failed}, stage
	ZoneComputeDuration prometheus.Histogram

	// Terrain provider metrics.
	TerrainRequests    *prometheus.CounterVec   // labels: derivative, outcome={success,error}
	TerrainCache       *prometheus.CounterVec   // labels: derivative, result={hit,miss}
	TerrainAPIDuration *prometheus.HistogramVec // labels: derivative
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_consumed_total",
			Help:      "Total job messages read from the source topic.",
		}),
		JobsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_produced_total",
			Help:      "Total job results written to the sink topic.",
		}),
		JobParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_errors_total",
			Help:      "Total job messages skipped because they could not be processed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of jobs per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-process-load cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ZoneOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zones_total",
			Help:      "Scored zones by status and last stage reached.",
		}, []string{"status", "stage"}),
		ZoneComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "zone_compute_duration_seconds",
			Help:      "Time to crop, derive, reclassify, overlay and aggregate one zone.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		TerrainRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terrain_requests_total",
			Help:      "Terrain service requests by derivative and outcome.",
		}, []string{"derivative", "outcome"}),
		TerrainCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terrain_cache_total",
			Help:      "Derived layer cache lookups by derivative and result.",
		}, []string{"derivative", "result"}),
		TerrainAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "terrain_api_duration_seconds",
			Help:      "Terrain service request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"derivative"}),
	}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobsConsumed,
		m.JobsProduced,
		m.JobParseErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ZoneOutcomes,
		m.ZoneComputeDuration,
		m.TerrainRequests,
		m.TerrainCache,
		m.TerrainAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
