package metrics

import (
	"time"

	"github.com/marmos91/cascview/pkg/explorer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// catalogMetrics is the Prometheus implementation of explorer.Metrics.
type catalogMetrics struct {
	files           prometheus.Gauge
	unknown         prometheus.Gauge
	rebuildDuration prometheus.Histogram
	exports         *prometheus.CounterVec
	exportLines     *prometheus.CounterVec
}

// NewCatalogMetrics creates a Prometheus-backed explorer.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCatalogMetrics() explorer.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &catalogMetrics{
		files: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_files",
				Help:      "Files visible in the catalog",
			},
		),
		unknown: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "catalog_unknown_files",
				Help:      "Files of the catalog still without a name",
			},
		),
		rebuildDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "catalog_rebuild_duration_seconds",
				Help:      "Duration of catalog (re)builds in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		exports: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Total number of exports by kind and status",
			},
			[]string{"kind", "status"},
		),
		exportLines: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "export_lines_total",
				Help:      "Total lines written by exports",
			},
			[]string{"kind"},
		),
	}
}

// SetCounts implements explorer.Metrics.SetCounts
func (m *catalogMetrics) SetCounts(files, unknown int) {
	m.files.Set(float64(files))
	m.unknown.Set(float64(unknown))
}

// ObserveRebuild implements explorer.Metrics.ObserveRebuild
func (m *catalogMetrics) ObserveRebuild(duration time.Duration) {
	m.rebuildDuration.Observe(duration.Seconds())
}

// ObserveExport implements explorer.Metrics.ObserveExport
func (m *catalogMetrics) ObserveExport(kind string, lines int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.exports.WithLabelValues(kind, status).Inc()
	m.exportLines.WithLabelValues(kind).Add(float64(lines))
}
