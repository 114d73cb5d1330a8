// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger operation metrics
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec

	// Token flow metrics, in smallest token units
	AmountDeposited *prometheus.CounterVec
	AmountPaidOut   *prometheus.CounterVec
	RewardPaid      *prometheus.CounterVec
	TokenBalance    *prometheus.GaugeVec

	// Event metrics
	EventsRecorded    *prometheus.CounterVec
	EventStoreErrors  *prometheus.CounterVec
	StreamSubscribers prometheus.Gauge
	StreamDropped     prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulOperation prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "staking_ledger"
	}

	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and status",
		}, []string{"operation", "status"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		AmountDeposited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_deposited_total",
			Help:      "Total amount pulled into custody by token and source",
		}, []string{"token", "source"}),
		AmountPaidOut: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_paid_out_total",
			Help:      "Total amount transferred out of custody by token and reason",
		}, []string{"token", "reason"}),
		RewardPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reward_paid_total",
			Help:      "Total reward paid out by token",
		}, []string{"token"}),
		TokenBalance: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "token_balance",
			Help:      "Custodial balance per token after the last operation",
		}, []string{"token"}),

		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "recorded_total",
			Help:      "Total number of ledger events recorded by kind",
		}, []string{"kind"}),
		EventStoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "store_errors_total",
			Help:      "Total number of event store write failures by kind",
		}, []string{"kind"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stream_subscribers",
			Help:      "Current number of websocket event stream subscribers",
		}),
		StreamDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stream_dropped_total",
			Help:      "Total number of events dropped for slow subscribers",
		}),

		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database unit of work duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of failed database units of work",
		}, []string{"database", "operation"}),

		LastSuccessfulOperation: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_operation_timestamp",
			Help:      "Unix timestamp of the last successful ledger write",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome and latency of a ledger operation.
// status is "ok" or the error kind.
func RecordOperation(operation, status string, duration time.Duration) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	if status == "ok" {
		DefaultMetrics.LastSuccessfulOperation.SetToCurrentTime()
	}
}

// RecordDeposit records an amount pulled into custody.
func RecordDeposit(token, source string, amount *uint256.Int) {
	DefaultMetrics.AmountDeposited.WithLabelValues(token, source).Add(toFloat(amount))
}

// RecordPayout records an amount transferred out and the reward part of it.
func RecordPayout(token, reason string, amount, reward *uint256.Int) {
	DefaultMetrics.AmountPaidOut.WithLabelValues(token, reason).Add(toFloat(amount))
	if reward != nil && !reward.IsZero() {
		DefaultMetrics.RewardPaid.WithLabelValues(token).Add(toFloat(reward))
	}
}

// UpdateTokenBalance sets the balance gauge of token.
func UpdateTokenBalance(token string, balance *uint256.Int) {
	DefaultMetrics.TokenBalance.WithLabelValues(token).Set(toFloat(balance))
}

// RecordEvent records a ledger event write; err is the store error, if any.
func RecordEvent(kind string, err error) {
	if err != nil {
		DefaultMetrics.EventStoreErrors.WithLabelValues(kind).Inc()
		return
	}
	DefaultMetrics.EventsRecorded.WithLabelValues(kind).Inc()
}

// UpdateStreamSubscribers sets the websocket subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordStreamDropped counts an event not delivered to a slow subscriber.
func RecordStreamDropped() {
	DefaultMetrics.StreamDropped.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// toFloat converts an amount to float64; precision loss above 2^53 is acceptable for metrics.
func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
