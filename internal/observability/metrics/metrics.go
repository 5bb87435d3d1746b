package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "searchorch"

// Metrics owns a private registry per process. The API and the worker build
// their own instance and expose it on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration *prometheus.HistogramVec
	queriesTotal  *prometheus.CounterVec
	queryResults  prometheus.Histogram

	cacheRequests      *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
	searchDegraded     prometheus.Counter

	ingestRuns     *prometheus.CounterVec
	ingestItems    *prometheus.CounterVec
	ingestPages    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec

	jobsTotal    *prometheus.CounterVec
	jobsInFlight prometheus.Gauge
	queueLag     *prometheus.HistogramVec
}

func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &Metrics{
		registry: registry,

		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "requests_total",
				Help:        "Total HTTP requests processed.",
				ConstLabels: constLabels,
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "request_duration_seconds",
				Help:        "HTTP request duration in seconds.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"method", "route"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "http",
				Name:        "in_flight_requests",
				Help:        "Number of in-flight HTTP requests.",
				ConstLabels: constLabels,
			},
		),

		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "stage_duration_seconds",
				Help:        "Query pipeline stage duration by outcome.",
				Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5},
				ConstLabels: constLabels,
			},
			[]string{"stage", "outcome"},
		),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "queries_total",
				Help:        "Total answered queries, split by degraded flag.",
				ConstLabels: constLabels,
			},
			[]string{"degraded"},
		),
		queryResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "results",
				Help:        "Distribution of returned items per query.",
				Buckets:     []float64{0, 1, 2, 5, 10, 20, 50, 100},
				ConstLabels: constLabels,
			},
		),

		cacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "cache",
				Name:        "requests_total",
				Help:        "Cache lookups by cache name and result.",
				ConstLabels: constLabels,
			},
			[]string{"cache", "result"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "breaker",
				Name:        "transitions_total",
				Help:        "Circuit breaker state changes by target state.",
				ConstLabels: constLabels,
			},
			[]string{"breaker", "to"},
		),
		searchDegraded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "search",
				Name:        "backend_degraded_total",
				Help:        "Searches answered with an empty result because the backend failed.",
				ConstLabels: constLabels,
			},
		),

		ingestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "ingestion",
				Name:        "runs_total",
				Help:        "Finished ingestion runs by source and status.",
				ConstLabels: constLabels,
			},
			[]string{"source", "status"},
		),
		ingestItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "ingestion",
				Name:        "items_total",
				Help:        "Items fetched from content sources.",
				ConstLabels: constLabels,
			},
			[]string{"source"},
		),
		ingestPages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "ingestion",
				Name:        "pages_total",
				Help:        "Pages fetched from content sources.",
				ConstLabels: constLabels,
			},
			[]string{"source"},
		),
		ingestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "ingestion",
				Name:        "run_duration_seconds",
				Help:        "Ingestion run duration in seconds.",
				Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
				ConstLabels: constLabels,
			},
			[]string{"source"},
		),

		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "reindex_jobs_total",
				Help:        "Reindex jobs consumed from the queue by status.",
				ConstLabels: constLabels,
			},
			[]string{"source", "status"},
		),
		jobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "reindex_jobs_in_flight",
				Help:        "Number of reindex jobs being processed.",
				ConstLabels: constLabels,
			},
		),
		queueLag: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "worker",
				Name:        "queue_lag_seconds",
				Help:        "Delay between publishing a reindex job and a worker picking it up.",
				Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
				ConstLabels: constLabels,
			},
			[]string{"source"},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.stageDuration,
		m.queriesTotal,
		m.queryResults,
		m.cacheRequests,
		m.breakerTransitions,
		m.searchDegraded,
		m.ingestRuns,
		m.ingestItems,
		m.ingestPages,
		m.ingestDuration,
		m.jobsTotal,
		m.jobsInFlight,
		m.queueLag,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests that gather directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CacheRequests is handed to the caches, which label it (cache, result).
func (m *Metrics) CacheRequests() *prometheus.CounterVec {
	return m.cacheRequests
}

func (m *Metrics) SearchDegraded() prometheus.Counter {
	return m.searchDegraded
}

func (m *Metrics) RecordBreakerTransition(breaker, to string) {
	m.breakerTransitions.WithLabelValues(breaker, to).Inc()
}
