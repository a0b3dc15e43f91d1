// Package metrics provides Prometheus instrumentation shared by the
// relay, agent, and gateway processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfclaw_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tfclaw_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Relay metrics.
var (
	RelaySessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tfclaw_relay_sessions_active",
		Help: "Number of currently live relay sessions.",
	})

	RelaySocketsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tfclaw_relay_sockets_active",
		Help: "Number of currently open relay sockets, by role.",
	}, []string{"role"})

	RelayMessagesRoutedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfclaw_relay_messages_routed_total",
		Help: "Total number of wire messages routed by the relay, by type.",
	}, []string{"type"})

	RelayUpgradeRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfclaw_relay_upgrade_rejections_total",
		Help: "Total number of rejected WebSocket upgrade attempts, by reason.",
	}, []string{"reason"})

	RelayAgentEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfclaw_relay_agent_evictions_total",
		Help: "Total number of agent sockets evicted by a newer agent connection.",
	})
)

// Agent metrics.
var (
	AgentCaptureSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tfclaw_agent_capture_sweep_duration_seconds",
		Help:    "Duration of one capture-poll-and-diff sweep across all terminals.",
		Buckets: prometheus.DefBuckets,
	})

	AgentActiveTerminals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tfclaw_agent_active_terminals",
		Help: "Number of currently active terminals driven by this agent.",
	})

	AgentCaptureErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tfclaw_agent_capture_errors_total",
		Help: "Total number of capture errors reported to the relay.",
	})
)

// Gateway metrics.
var (
	GatewayProgressQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tfclaw_gateway_progress_queue_depth",
		Help: "Number of progress updates currently queued across all in-flight requests.",
	})

	GatewayCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tfclaw_gateway_commands_total",
		Help: "Total number of chat commands handled, by outcome.",
	}, []string{"outcome"})
)
