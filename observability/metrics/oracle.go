// Package metrics holds auxiliary Prometheus registries that are sampled
// periodically rather than recorded inline with request handling.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OracleMetrics wraps collectors tracking price feed health per basket asset.
type OracleMetrics struct {
	reads      *prometheus.CounterVec
	lastUpdate *prometheus.GaugeVec
	staleness  *prometheus.GaugeVec
}

var (
	oracleOnce     sync.Once
	oracleRegistry *OracleMetrics
)

// Oracle exposes the singleton oracle health registry.
func Oracle() *OracleMetrics {
	oracleOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			reads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "art_oracle_reads_total",
				Help: "Count of oracle price reads segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			lastUpdate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "art_oracle_last_update_timestamp_seconds",
				Help: "Unix timestamp of the latest accepted feed reading per asset.",
			}, []string{"asset"}),
			staleness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "art_oracle_staleness_seconds",
				Help: "Age of the latest feed reading per asset at sampling time.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			oracleRegistry.reads,
			oracleRegistry.lastUpdate,
			oracleRegistry.staleness,
		)
	})
	return oracleRegistry
}

// RecordRead counts one price resolution attempt for the asset.
func (m *OracleMetrics) RecordRead(asset string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.reads.WithLabelValues(normalizeAsset(asset), outcome).Inc()
}

// RecordReading publishes freshness gauges for one accepted feed reading.
func (m *OracleMetrics) RecordReading(asset string, updatedAt, sampledAt time.Time) {
	if m == nil || updatedAt.IsZero() {
		return
	}
	label := normalizeAsset(asset)
	m.lastUpdate.WithLabelValues(label).Set(float64(updatedAt.Unix()))
	m.staleness.WithLabelValues(label).Set(sampledAt.Sub(updatedAt).Seconds())
}

func normalizeAsset(asset string) string {
	normalized := strings.TrimSpace(strings.ToLower(asset))
	if normalized == "" {
		normalized = "unknown"
	}
	return normalized
}
