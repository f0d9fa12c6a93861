// Package metrics holds the Prometheus collectors for the pipeline. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Job outcomes as recorded in studybuddy_jobs_total.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
)

type Metrics struct {
	registry *prometheus.Registry

	jobs              *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	chunksWritten     prometheus.Counter
	embedFailures     prometheus.Counter
	retrievalDegraded prometheus.Counter
	dispatches        *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, plus the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studybuddy_jobs_total",
			Help: "Pipeline jobs handled, by job type and outcome.",
		}, []string{"job_type", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studybuddy_job_duration_seconds",
			Help:    "Wall time of a pipeline stage, by job type.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"job_type"}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studybuddy_chunks_written_total",
			Help: "Chunks persisted by the chunk stage.",
		}),
		embedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studybuddy_embedding_batch_failures_total",
			Help: "Embedding batches stored without vectors.",
		}),
		retrievalDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studybuddy_retrieval_keyword_only_total",
			Help: "Searches that fell back to keyword results only.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studybuddy_dispatch_total",
			Help: "Job dispatch attempts, by endpoint and result.",
		}, []string{"endpoint", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studybuddy_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studybuddy_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobs,
		m.jobDuration,
		m.chunksWritten,
		m.embedFailures,
		m.retrievalDegraded,
		m.dispatches,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveJob(jobType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(jobType, outcome).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) AddChunks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksWritten.Add(float64(n))
}

func (m *Metrics) EmbeddingBatchFailed() {
	if m == nil {
		return
	}
	m.embedFailures.Inc()
}

func (m *Metrics) RetrievalDegraded() {
	if m == nil {
		return
	}
	m.retrievalDegraded.Inc()
}

func (m *Metrics) ObserveDispatch(endpoint string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dispatches.WithLabelValues(endpoint, result).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
