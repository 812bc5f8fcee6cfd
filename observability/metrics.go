package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics tracks engine operations served by the staking daemon.
type StakingMetrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	activeLocks   prometheus.Gauge
	pointsClaimed prometheus.Counter
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

// Staking returns the lazily-initialised staking metrics registry.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Name:      "operations_total",
				Help:      "Total staking operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftstake",
				Name:      "operation_seconds",
				Help:      "Latency distribution for staking operations including custody calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			activeLocks: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Name:      "active_locks",
				Help:      "Number of items currently locked across all holders.",
			}),
			pointsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftstake",
				Name:      "points_claimed_total",
				Help:      "Total points settled through claims.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.activeLocks,
			stakingRegistry.pointsClaimed,
		)
	})
	return stakingRegistry
}

// ObserveOperation records the outcome and latency of a single operation.
// Outcome is "ok" for successes and an error class otherwise.
func (m *StakingMetrics) ObserveOperation(op, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// LockOpened increments the active lock gauge.
func (m *StakingMetrics) LockOpened() {
	if m == nil {
		return
	}
	m.activeLocks.Inc()
}

// LockClosed decrements the active lock gauge.
func (m *StakingMetrics) LockClosed() {
	if m == nil {
		return
	}
	m.activeLocks.Dec()
}

// SetActiveLocks seeds the gauge, typically from the journal on startup.
func (m *StakingMetrics) SetActiveLocks(n int) {
	if m == nil {
		return
	}
	m.activeLocks.Set(float64(n))
}

// RecordClaim adds a settled payout to the claimed points counter.
func (m *StakingMetrics) RecordClaim(points uint32) {
	if m == nil {
		return
	}
	m.pointsClaimed.Add(float64(points))
}
