// Package metrics provides Prometheus metrics for the binder annotator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the binder annotator.
type Metrics struct {
	// Submission metrics
	SubmissionsProcessed *prometheus.CounterVec
	StageFailures        *prometheus.CounterVec
	FeatureFailures      *prometheus.CounterVec
	RelaxCache           *prometheus.CounterVec

	// Timing metrics
	StageDuration      *prometheus.HistogramVec
	SubmissionDuration prometheus.Histogram
	BatchDuration      prometheus.Histogram

	// Batch metrics
	BatchesWritten *prometheus.CounterVec
	BatchesSkipped prometheus.Counter
	BatchRows      prometheus.Histogram
	ArtifactBytes  prometheus.Histogram

	// Pool metrics
	InFlightSubmissions prometheus.Gauge
	WorkerQueueDepth    prometheus.Gauge

	// Error metrics
	StorageErrors *prometheus.CounterVec
	CatalogErrors *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"
}

var defaultMetrics *Metrics

// Init registers metrics on the default registry and makes them the global
// instance. Call this once at startup.
func Init(namespace string) *Metrics {
	m := New(prometheus.DefaultRegisterer, namespace)
	defaultMetrics = m
	return m
}

// New creates metrics registered on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "binder_annotator"
	}
	f := promauto.With(reg)

	return &Metrics{
		SubmissionsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_processed_total",
				Help:      "Total number of submissions processed, by final status",
			},
			[]string{"status"},
		),
		StageFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of submissions failed at each pipeline stage",
			},
			[]string{"stage"},
		),
		FeatureFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_failures_total",
				Help:      "Total number of interface features defaulted after a failure",
			},
			[]string{"feature"},
		),
		RelaxCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relax_cache_total",
				Help:      "Relaxed structure cache lookups, by result",
			},
			[]string{"result"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"stage"},
		),
		SubmissionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "submission_duration_seconds",
				Help:      "Total time to process one submission",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 0.1s to ~800s
			},
		),
		BatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time to process and write one batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~2h
			},
		),
		BatchesWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_written_total",
				Help:      "Total number of batch artifacts written",
			},
			[]string{"format"},
		),
		BatchesSkipped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_skipped_total",
				Help:      "Total number of batches skipped because their artifact exists",
			},
		),
		BatchRows: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_rows",
				Help:      "Number of rows per batch artifact",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
			},
		),
		ArtifactBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "artifact_bytes",
				Help:      "Size of batch artifacts in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~32MB
			},
		),
		InFlightSubmissions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_submissions",
				Help:      "Number of submissions currently being processed",
			},
		),
		WorkerQueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current number of submissions waiting for a worker",
			},
		),
		StorageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of artifact storage errors",
			},
			[]string{"backend"},
		),
		CatalogErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of batch catalog errors",
			},
			[]string{"backend"},
		),
	}
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}

// IncSubmissions increments the processed counter for a final status.
func (m *Metrics) IncSubmissions(status string) {
	m.SubmissionsProcessed.WithLabelValues(status).Inc()
}

// IncStageFailures increments the failure counter of a stage.
func (m *Metrics) IncStageFailures(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// IncFeatureFailures increments the soft failure counter of a feature.
func (m *Metrics) IncFeatureFailures(feature string) {
	m.FeatureFailures.WithLabelValues(feature).Inc()
}

// IncRelaxCache records a cache hit or miss.
func (m *Metrics) IncRelaxCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RelaxCache.WithLabelValues(result).Inc()
}

// ObserveStageDuration records the time spent in a stage.
func (m *Metrics) ObserveStageDuration(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// ObserveSubmissionDuration records the total time of one submission.
func (m *Metrics) ObserveSubmissionDuration(seconds float64) {
	m.SubmissionDuration.Observe(seconds)
}

// ObserveBatch records a written batch artifact.
func (m *Metrics) ObserveBatch(format string, rows int, bytes int64, seconds float64) {
	m.BatchesWritten.WithLabelValues(format).Inc()
	m.BatchRows.Observe(float64(rows))
	m.ArtifactBytes.Observe(float64(bytes))
	m.BatchDuration.Observe(seconds)
}

// IncBatchesSkipped increments the skipped batch counter.
func (m *Metrics) IncBatchesSkipped() {
	m.BatchesSkipped.Inc()
}

// SetInFlightSubmissions sets the number of in-flight submissions.
func (m *Metrics) SetInFlightSubmissions(count float64) {
	m.InFlightSubmissions.Set(count)
}

// AddInFlightSubmissions adjusts the in-flight gauge.
func (m *Metrics) AddInFlightSubmissions(delta float64) {
	m.InFlightSubmissions.Add(delta)
}

// SetWorkerQueueDepth sets the current worker queue depth.
func (m *Metrics) SetWorkerQueueDepth(depth float64) {
	m.WorkerQueueDepth.Set(depth)
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(backend string) {
	m.StorageErrors.WithLabelValues(backend).Inc()
}

// IncCatalogErrors increments the catalog errors counter.
func (m *Metrics) IncCatalogErrors(backend string) {
	m.CatalogErrors.WithLabelValues(backend).Inc()
}
