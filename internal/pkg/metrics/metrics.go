// Package metrics holds the Prometheus collectors of the console backend (RED + visualization pipeline).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clabconsole"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "path"},
	)

	// VisualizeDurationSeconds is end-to-end visualize latency by view.
	VisualizeDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "visualize_duration_seconds",
			Help:      "Topology visualization duration (collect, transform, layout) in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"view"},
	)

	// LayoutDurationSeconds is layout engine latency.
	LayoutDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Layered layout duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	// VisualizeFailuresTotal counts failed visualizations by pipeline stage.
	VisualizeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visualize_failures_total",
			Help:      "Total number of failed visualizations by stage (collect, transform, layout).",
		},
		[]string{"stage"},
	)

	// VisualizeSupersededTotal counts results discarded because a newer request replaced them.
	VisualizeSupersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visualize_superseded_total",
			Help:      "Total number of visualize results discarded as stale.",
		},
	)

	// VisualizeSessionsActive is the number of tracked visualize sessions.
	VisualizeSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "visualize_sessions_active",
			Help:      "Number of visualize sessions currently tracked.",
		},
	)

	// WebSocketConnectionsActive is current number of WebSocket clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	// CircuitBreakerState is 0=closed, 1=open, 2=half-open.
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "k8s_circuit_breaker_state",
			Help:      "Kubernetes API circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
	)

	// CircuitBreakerTransitionsTotal counts state transitions.
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "k8s_circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions.",
		},
		[]string{"from", "to"},
	)

	// CircuitBreakerFailuresTotal counts failures recorded by the breaker.
	CircuitBreakerFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "k8s_circuit_breaker_failures_total",
			Help:      "Total number of Kubernetes API failures recorded by the circuit breaker.",
		},
	)
)
