// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Pool event metrics
	PoolEventsReceived  prometheus.Counter
	PoolEventsDuplicate prometheus.Counter
	PoolEventErrors     *prometheus.CounterVec

	// Strategy metrics
	EntryEvaluations *prometheus.CounterVec
	StrategyErrors   *prometheus.CounterVec

	// Execution metrics
	TradesTotal       *prometheus.CounterVec
	TradeFailures     *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	SubmitAttempts    prometheus.Counter
	QuoteLatency      prometheus.Histogram

	// Position metrics
	OpenPositions          prometheus.Gauge
	PositionTransitions    *prometheus.CounterVec
	ExitsTriggered         *prometheus.CounterVec
	ExitEvaluationDuration prometheus.Histogram

	// Breaker metrics
	BreakerOpen  *prometheus.GaugeVec
	BreakerTrips *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulTrade prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_pool_trader"
	}

	return &Metrics{
		// Pool event metrics
		PoolEventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "pool_events_received_total",
			Help:      "Total number of pool creation events received",
		}),
		PoolEventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "pool_events_duplicate_total",
			Help:      "Total number of pool creation events dropped as duplicates",
		}),
		PoolEventErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "pool_event_errors_total",
			Help:      "Total number of pool event handling errors by type",
		}, []string{"error_type"}),

		// Strategy metrics
		EntryEvaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "entry_evaluations_total",
			Help:      "Total number of entry evaluations by verdict",
		}, []string{"verdict"}),
		StrategyErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "strategy",
			Name:      "errors_total",
			Help:      "Total number of strategy evaluation errors",
		}, []string{"strategy"}),

		// Execution metrics
		TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "trades_total",
			Help:      "Total number of trade executions by side and outcome",
		}, []string{"side", "status"}),
		TradeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "failures_total",
			Help:      "Total number of failed trade executions by error kind",
		}, []string{"kind"}),
		ExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "End-to-end trade execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"side"}),
		SubmitAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "submit_attempts_total",
			Help:      "Total number of transaction submission attempts",
		}),
		QuoteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "quote_latency_seconds",
			Help:      "Swap router quote latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Position metrics
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "open",
			Help:      "Number of positions currently tracked",
		}),
		PositionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "transitions_total",
			Help:      "Total number of position lifecycle transitions by event",
		}, []string{"event"}),
		ExitsTriggered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exits_triggered_total",
			Help:      "Total number of exit signals by strategy",
		}, []string{"strategy", "partial"}),
		ExitEvaluationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exit_evaluation_duration_seconds",
			Help:      "Duration of one exit evaluation pass over all positions",
			Buckets:   prometheus.DefBuckets,
		}),

		// Breaker metrics
		BreakerOpen: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "open",
			Help:      "1 if the circuit breaker is tripped, 0 otherwise",
		}, []string{"name"}),
		BreakerTrips: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total number of circuit breaker trips",
		}, []string{"name"}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulTrade: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_trade_timestamp",
			Help:      "Unix timestamp of last confirmed trade",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPoolEvent increments the pool events counter.
func RecordPoolEvent(duplicate bool) {
	DefaultMetrics.PoolEventsReceived.Inc()
	if duplicate {
		DefaultMetrics.PoolEventsDuplicate.Inc()
	}
}

// RecordPoolEventError records a pool event handling error.
func RecordPoolEventError(errorType string) {
	DefaultMetrics.PoolEventErrors.WithLabelValues(errorType).Inc()
}

// RecordEntryEvaluation records an entry verdict ("trade" or "skip").
func RecordEntryEvaluation(trade bool) {
	verdict := "skip"
	if trade {
		verdict = "trade"
	}
	DefaultMetrics.EntryEvaluations.WithLabelValues(verdict).Inc()
}

// RecordStrategyError records a failing strategy.
func RecordStrategyError(strategy string) {
	DefaultMetrics.StrategyErrors.WithLabelValues(strategy).Inc()
}

// RecordTrade records a finished execution. kind is empty on success.
func RecordTrade(side string, success bool, kind string, seconds float64) {
	status := "failed"
	if success {
		status = "confirmed"
	}
	DefaultMetrics.TradesTotal.WithLabelValues(side, status).Inc()
	DefaultMetrics.ExecutionDuration.WithLabelValues(side).Observe(seconds)
	if !success && kind != "" {
		DefaultMetrics.TradeFailures.WithLabelValues(kind).Inc()
	}
}

// RecordSubmitAttempt increments the submission attempts counter.
func RecordSubmitAttempt() {
	DefaultMetrics.SubmitAttempts.Inc()
}

// RecordQuoteLatency records swap router quote latency.
func RecordQuoteLatency(seconds float64) {
	DefaultMetrics.QuoteLatency.Observe(seconds)
}

// UpdateOpenPositions sets the open positions gauge.
func UpdateOpenPositions(n int) {
	DefaultMetrics.OpenPositions.Set(float64(n))
}

// RecordTransition records a position lifecycle transition.
func RecordTransition(event string) {
	DefaultMetrics.PositionTransitions.WithLabelValues(event).Inc()
}

// RecordExitSignal records an exit signal from a strategy.
func RecordExitSignal(strategy string, partial bool) {
	p := "false"
	if partial {
		p = "true"
	}
	DefaultMetrics.ExitsTriggered.WithLabelValues(strategy, p).Inc()
}

// RecordExitEvaluation records the duration of an exit evaluation pass.
func RecordExitEvaluation(seconds float64) {
	DefaultMetrics.ExitEvaluationDuration.Observe(seconds)
}

// RecordBreakerState updates breaker gauges; trips also bump the trip counter.
func RecordBreakerState(name string, tripped bool) {
	if tripped {
		DefaultMetrics.BreakerOpen.WithLabelValues(name).Set(1)
		DefaultMetrics.BreakerTrips.WithLabelValues(name).Inc()
		return
	}
	DefaultMetrics.BreakerOpen.WithLabelValues(name).Set(0)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateLastSuccessfulTrade sets the last confirmed trade timestamp (unix seconds).
func UpdateLastSuccessfulTrade(unix int64) {
	DefaultMetrics.LastSuccessfulTrade.Set(float64(unix))
}
