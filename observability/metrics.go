package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SwapMetrics records host-level swap activity segmented by operation and
// outcome.
type SwapMetrics struct {
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	swapMetricsOnce sync.Once
	swapRegistry    *SwapMetrics
)

// Swap returns the lazily-initialised swap metrics registry.
func Swap() *SwapMetrics {
	swapMetricsOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			ops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cosmoswap",
				Subsystem: "node",
				Name:      "operations_total",
				Help:      "Total swap host operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cosmoswap",
				Subsystem: "node",
				Name:      "operation_seconds",
				Help:      "Latency of swap host operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(swapRegistry.ops, swapRegistry.latency)
	})
	return swapRegistry
}

// Record counts one completed operation and observes its latency.
func (m *SwapMetrics) Record(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ops.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
