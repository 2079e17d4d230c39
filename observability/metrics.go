package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics tracks the JSON-RPC surface per method.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics

	payoutMetricsOnce sync.Once
	payoutRegistry    *PayoutMetrics
)

// RPC returns the process-wide JSON-RPC registry.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests by module, method and HTTP status class.",
			}, []string{"module", "method", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "deliverynet",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC handler latency.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "rpc",
				Name:      "throttled_total",
				Help:      "Requests rejected before dispatch.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency, rpcRegistry.throttles)
	})
	return rpcRegistry
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// Observe records one dispatched request with the HTTP status written.
func (m *RPCMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	module, method = orUnknown(module), orUnknown(method)
	m.requests.WithLabelValues(module, method, statusClass(status)).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected by a policy such as "rate_limit".
func (m *RPCMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(orUnknown(module), orUnknown(reason)).Inc()
}

// MarketMetrics captures the coordinator's operation outcomes and the funds
// moving through escrow.
type MarketMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	instructions *prometheus.CounterVec
	escrowVolume *prometheus.CounterVec
}

// Market returns the singleton metrics registry for the order coordinator.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "market",
				Name:      "operations_total",
				Help:      "Count of coordinator operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "deliverynet",
				Subsystem: "market",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for coordinator operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "market",
				Name:      "instructions_total",
				Help:      "Count of funds-received instructions segmented by tag and outcome.",
			}, []string{"tag", "outcome"}),
			escrowVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "market",
				Name:      "escrow_volume_total",
				Help:      "Sum of amounts locked or released through escrow in base units.",
			}, []string{"direction"}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.latency,
			marketRegistry.instructions,
			marketRegistry.escrowVolume,
		)
	})
	return marketRegistry
}

// Observe records the execution metrics for a coordinator operation. outcome
// is one of "success", "rejected" or "error".
func (m *MarketMetrics) Observe(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "success"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordInstruction increments the instruction counter.
func (m *MarketMetrics) RecordInstruction(tag, outcome string) {
	if m == nil {
		return
	}
	if tag = strings.TrimSpace(tag); tag == "" {
		tag = "unknown"
	}
	m.instructions.WithLabelValues(tag, outcome).Inc()
}

// RecordEscrow adds amount to the locked or released volume.
func (m *MarketMetrics) RecordEscrow(direction string, amount *big.Int) {
	if m == nil {
		return
	}
	m.escrowVolume.WithLabelValues(direction).Add(bigToFloat(amount))
}

// PayoutMetrics wraps collectors tracking the payout notification publisher.
type PayoutMetrics struct {
	published *prometheus.CounterVec
	latency   prometheus.Histogram
	errors    *prometheus.CounterVec
}

// Payouts exposes the metrics registry for the payout publisher.
func Payouts() *PayoutMetrics {
	payoutMetricsOnce.Do(func() {
		payoutRegistry = &PayoutMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "payouts",
				Name:      "published_total",
				Help:      "Count of payout notifications written to the broker by event type.",
			}, []string{"type"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "deliverynet",
				Subsystem: "payouts",
				Name:      "publish_latency_seconds",
				Help:      "Latency distribution for broker writes.",
				Buckets:   prometheus.DefBuckets,
			}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deliverynet",
				Subsystem: "payouts",
				Name:      "errors_total",
				Help:      "Count of payout publish failures segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			payoutRegistry.published,
			payoutRegistry.latency,
			payoutRegistry.errors,
		)
	})
	return payoutRegistry
}

// ObservePublish records a broker write.
func (m *PayoutMetrics) ObservePublish(eventType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.latency.Observe(d.Seconds())
	if err != nil {
		m.RecordError("write")
		return
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		eventType = "unknown"
	}
	m.published.WithLabelValues(eventType).Inc()
}

// RecordError increments the error counter for the supplied reason.
func (m *PayoutMetrics) RecordError(reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.errors.WithLabelValues(reason).Inc()
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
