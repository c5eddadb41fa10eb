package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay Core Metrics
var (
	// RelayConnectedClients tracks connections currently held by the registry
	RelayConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Number of connections currently registered with the relay",
		},
	)

	// RelaySubmissionsTotal tracks accepted payload submissions
	RelaySubmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_submissions_total",
			Help: "Total payload submissions accepted and stored",
		},
	)

	// RelaySubmissionsRejected tracks dropped submissions by reason
	RelaySubmissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_submissions_rejected_total",
			Help: "Total payload submissions dropped by reason (malformed, missing_field, store_error)",
		},
		[]string{"reason"},
	)

	// RelayFanoutSends tracks per-target send results by envelope kind
	RelayFanoutSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fanout_sends_total",
			Help: "Per-target envelope sends by kind (message, delete) and status (ok, failed)",
		},
		[]string{"kind", "status"},
	)

	// RelayFanoutDuration tracks how long one fan-out loop takes
	RelayFanoutDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_fanout_duration_seconds",
			Help:    "Duration of a single fan-out over all targets",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"kind"},
	)

	// RelayRetainedRecords tracks records currently held by the retention store
	RelayRetainedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_retained_records",
			Help: "Number of message records currently retained",
		},
	)
)

// Sweeper Metrics
var (
	// SweepDuration tracks sweep tick latency
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_sweep_duration_seconds",
			Help:    "Duration of one eviction sweep",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// RecordsEvictedTotal tracks records removed by the sweeper
	RecordsEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_records_evicted_total",
			Help: "Total message records evicted after reaching the retention lifetime",
		},
	)

	// SweepErrorsTotal tracks failed or panicking sweep ticks
	SweepErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_sweep_errors_total",
			Help: "Total sweep ticks that failed or recovered from a panic",
		},
	)
)

// WebSocket Metrics
var (
	WebSocketConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connections accepted since start",
		},
	)

	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "WebSocket connections rejected before upgrade by reason",
		},
		[]string{"reason"},
	)

	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "Lifetime of WebSocket connections",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time spent writing a single frame to a WebSocket",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	WebSocketSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_slow_clients_evicted_total",
			Help: "WebSocket clients disconnected because their send buffer was full",
		},
	)

	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Failed keepalive pings",
		},
	)
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)

// BuildInfo exposes the running version as labels on a constant gauge.
var BuildInfo = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build information (always 1)",
	},
	[]string{"version", "commit", "go_version"},
)
