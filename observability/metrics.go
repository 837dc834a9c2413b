package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// RescueMetrics tracks rescue attempts, governance operations and the HTTP
// surface of the rescue daemon.
type RescueMetrics struct {
	attempts   *prometheus.CounterVec
	collateral prometheus.Counter
	duration   *prometheus.HistogramVec
	governance *prometheus.CounterVec
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	throttles  *prometheus.CounterVec
}

var (
	rescueMetricsOnce sync.Once
	rescueRegistry    *RescueMetrics
)

var wadScale = new(big.Float).SetFloat64(1e18)

// Rescue returns the lazily-initialised metrics registry for the rescue
// engine.
func Rescue() *RescueMetrics {
	rescueMetricsOnce.Do(func() {
		rescueRegistry = newRescueMetrics()
		prometheus.MustRegister(
			rescueRegistry.attempts,
			rescueRegistry.collateral,
			rescueRegistry.duration,
			rescueRegistry.governance,
			rescueRegistry.requests,
			rescueRegistry.latency,
			rescueRegistry.throttles,
		)
	})
	return rescueRegistry
}

func newRescueMetrics() *RescueMetrics {
	return &RescueMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "safesaviour",
			Subsystem: "rescue",
			Name:      "attempts_total",
			Help:      "Rescue attempts segmented by outcome.",
		}, []string{"outcome"}),
		collateral: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "safesaviour",
			Subsystem: "rescue",
			Name:      "collateral_added",
			Help:      "Collateral added to vaults by successful rescues, in whole units.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "safesaviour",
			Subsystem: "rescue",
			Name:      "duration_seconds",
			Help:      "Latency of rescue attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		governance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "safesaviour",
			Subsystem: "governance",
			Name:      "operations_total",
			Help:      "Governance operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "safesaviour",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "safesaviour",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "safesaviour",
			Subsystem: "http",
			Name:      "throttles_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"reason"}),
	}
}

// ObserveRescue records the outcome of a rescue attempt.
func (m *RescueMetrics) ObserveRescue(outcome string, collateralAdded *uint256.Int, duration time.Duration) {
	if m == nil {
		return
	}
	outcome = normalizeLabel(outcome, "unknown")
	m.attempts.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(duration.Seconds())
	if collateralAdded != nil && !collateralAdded.IsZero() {
		units, _ := new(big.Float).Quo(new(big.Float).SetInt(collateralAdded.ToBig()), wadScale).Float64()
		m.collateral.Add(units)
	}
}

// ObserveGovernance records a governance operation.
func (m *RescueMetrics) ObserveGovernance(operation, outcome string) {
	if m == nil {
		return
	}
	m.governance.WithLabelValues(normalizeLabel(operation, "unknown"), normalizeLabel(outcome, "unknown")).Inc()
}

// ObserveRequest records an HTTP request. route should be the route pattern,
// not the raw path.
func (m *RescueMetrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = normalizeLabel(route, "unmatched")
	method = normalizeLabel(method, "unknown")
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a request rejected for reason.
func (m *RescueMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(normalizeLabel(reason, "unspecified")).Inc()
}

func normalizeLabel(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
