package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions HTTP metrics by logical endpoint name rather than
// the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// questionsTotal counts completed /api/qa requests, partitioned by
	// outcome: "ok", "no_context", or "error".
	questionsTotal *prometheus.CounterVec

	// qaDurationSeconds records the wall-clock duration of each /api/qa
	// request including embedding, ranking, and generation.
	qaDurationSeconds *prometheus.HistogramVec

	// papersIngestedTotal counts paper ingestions, partitioned by outcome.
	papersIngestedTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) registers into the provided
// registry rather than the global default.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		questionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "qa",
			Name:      "questions_total",
			Help:      "Total number of /api/qa requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		qaDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Subsystem: "qa",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/qa requests from receipt to answer.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		papersIngestedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "ingest",
			Name:      "papers_total",
			Help:      "Total number of paper ingestions, partitioned by outcome.",
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paperqa",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
