package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facereg",
		Name:      "operations_total",
		Help:      "Orchestrator operations by outcome kind",
	}, []string{"operation", "kind"})

	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facereg",
		Name:      "compensations_total",
		Help:      "Compensating actions executed after a partial registration",
	}, []string{"result"})

	BestEffortFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facereg",
		Name:      "best_effort_failures_total",
		Help:      "Failed best-effort steps (flush, cache, cleanup)",
	}, []string{"step"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facereg",
		Name:      "step_duration_seconds",
		Help:      "Duration of collaborator calls",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"step"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facereg",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facereg",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
