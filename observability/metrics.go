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

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics

	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics
)

// EngineMetrics tracks mint/burn engine activity and wrapper supply health.
type EngineMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	supply     prometheus.Gauge
	dustUnits  *prometheus.GaugeVec
	paused     prometheus.Gauge
}

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "art",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of wrapper engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "art",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for wrapper engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "art",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of wrapper engine failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			supply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "art",
				Subsystem: "engine",
				Name:      "total_supply",
				Help:      "Current wrapper total supply in base units.",
			}),
			dustUnits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "art",
				Subsystem: "engine",
				Name:      "dust_units",
				Help:      "Accumulated floor-division dust per basket asset, in 1/10000 token units.",
			}, []string{"asset"}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "art",
				Subsystem: "engine",
				Name:      "paused",
				Help:      "Whether mint/burn is currently halted (1) or serving (0).",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.errors,
			engineRegistry.supply,
			engineRegistry.dustUnits,
			engineRegistry.paused,
		)
	})
	return engineRegistry
}

// Observe records one engine operation's outcome and latency.
func (m *EngineMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// SetSupply publishes the current wrapper total supply. Values beyond float64
// precision saturate rather than wrap.
func (m *EngineMetrics) SetSupply(supply *big.Int) {
	if m == nil || supply == nil {
		return
	}
	value, _ := new(big.Float).SetInt(supply).Float64()
	if math.IsInf(value, 0) {
		value = math.MaxFloat64
	}
	m.supply.Set(value)
}

// SetDust publishes the dust counter for one basket asset.
func (m *EngineMetrics) SetDust(asset string, units *big.Int) {
	if m == nil || units == nil {
		return
	}
	value, _ := new(big.Float).SetInt(units).Float64()
	m.dustUnits.WithLabelValues(strings.ToLower(asset)).Set(value)
}

// SetPaused publishes the pause flag.
func (m *EngineMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// Gateway returns the lazily-initialised HTTP gateway metrics registry.
func Gateway() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "art",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route, method, and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "art",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route, method, and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "art",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "art",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected by throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route.
// Reasons should be stable strings such as "rate_limit" so dashboards stay
// consistent.
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}
