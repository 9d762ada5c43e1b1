package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warp"

var (
	warpMetricsOnce sync.Once
	warpRegistry    *WarpMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics
)

// WarpMetrics tracks escrow engine outcomes.
type WarpMetrics struct {
	deferrals     *prometheus.CounterVec
	passthroughs  prometheus.Counter
	fees          prometheus.Counter
	feeSize       prometheus.Histogram
	redemptions   prometheus.Counter
	redeemed      prometheus.Counter
	cleared       prometheus.Counter
	cancellations *prometheus.CounterVec
	failures      *prometheus.CounterVec
	pending       prometheus.Gauge
}

// Warp returns the lazily-initialised engine metrics registry.
func Warp() *WarpMetrics {
	warpMetricsOnce.Do(func() {
		warpRegistry = &WarpMetrics{
			deferrals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "deferrals_total",
				Help:      "Count of transfers escrowed segmented by trigger.",
			}, []string{"reason"}),
			passthroughs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "passthroughs_total",
				Help:      "Count of transfers left to settle directly.",
			}),
			fees: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "fees_paid_total",
				Help:      "Sum of escrow fees paid to receivers, in base units.",
			}),
			feeSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "fee_size",
				Help:      "Distribution of individual escrow fees, in base units.",
				Buckets:   prometheus.ExponentialBuckets(1, 10, 12),
			}),
			redemptions: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "redemptions_total",
				Help:      "Count of successful ghost balance redemptions.",
			}),
			redeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "redeemed_amount_total",
				Help:      "Sum of ghost balance converted into real transfers, in base units.",
			}),
			cleared: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "pending_cleared_total",
				Help:      "Count of pending entries cleared by redemption.",
			}),
			cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "cancellations_total",
				Help:      "Count of cancel calls segmented by whether an entry existed.",
			}, []string{"existed"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "failures_total",
				Help:      "Count of rolled back engine calls segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "pending_entries",
				Help:      "Current number of pending ledger entries.",
			}),
		}
		prometheus.MustRegister(
			warpRegistry.deferrals,
			warpRegistry.passthroughs,
			warpRegistry.fees,
			warpRegistry.feeSize,
			warpRegistry.redemptions,
			warpRegistry.redeemed,
			warpRegistry.cleared,
			warpRegistry.cancellations,
			warpRegistry.failures,
			warpRegistry.pending,
		)
	})
	return warpRegistry
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// RecordDeferral counts an escrowed transfer and the fee paid for it.
func (m *WarpMetrics) RecordDeferral(reason string, fee *big.Int) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.deferrals.WithLabelValues(reason).Inc()
	value := bigToFloat(fee)
	m.fees.Add(value)
	m.feeSize.Observe(value)
}

// RecordPassthrough counts a transfer that was not deferred.
func (m *WarpMetrics) RecordPassthrough() {
	if m == nil {
		return
	}
	m.passthroughs.Inc()
}

// RecordRedemption counts a redemption and the pending entries it cleared.
func (m *WarpMetrics) RecordRedemption(amount *big.Int, cleared int) {
	if m == nil {
		return
	}
	m.redemptions.Inc()
	m.redeemed.Add(bigToFloat(amount))
	if cleared > 0 {
		m.cleared.Add(float64(cleared))
	}
}

// RecordCancellation counts a cancel call.
func (m *WarpMetrics) RecordCancellation(existed bool) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(strconv.FormatBool(existed)).Inc()
}

// RecordFailure counts a rolled back call.
func (m *WarpMetrics) RecordFailure(operation, reason string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.failures.WithLabelValues(operation, reason).Inc()
}

// SetPending publishes the pending ledger size.
func (m *WarpMetrics) SetPending(count uint64) {
	if m == nil {
		return
	}
	m.pending.Set(float64(count))
}

// RPCMetrics tracks HTTP API traffic.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// RPC returns the lazily-initialised HTTP API metrics registry.
func RPC() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected by rate limiting.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
			rpcRegistry.throttles,
		)
	})
	return rpcRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *RPCMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for route.
func (m *RPCMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.throttles.WithLabelValues(route).Inc()
}
