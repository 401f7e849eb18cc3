package metrics

import (
	"time"

	"github.com/marmos91/cascview/pkg/audit"
	"github.com/marmos91/cascview/pkg/resolver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// resolverMetrics is the Prometheus implementation of resolver.Metrics.
type resolverMetrics struct {
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	decisions    *prometheus.CounterVec
	unknown      prometheus.Gauge
}

// NewResolverMetrics creates a Prometheus-backed resolver.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the resolver to use its built-in no-op implementation.
func NewResolverMetrics() resolver.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &resolverMetrics{
		passes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_passes_total",
				Help:      "Total number of resolution passes by outcome",
			},
			[]string{"outcome"},
		),
		passDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolver_pass_duration_seconds",
				Help:      "Duration of resolution passes in seconds",
				Buckets: []float64{
					0.1,  // 100ms
					0.5,  // 500ms
					1,    // 1s
					5,    // 5s
					15,   // 15s
					60,   // 1m
					300,  // 5m
					900,  // 15m
					3600, // 1h
				},
			},
		),
		decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolver_decisions_total",
				Help:      "Total number of resolver decisions by kind",
			},
			[]string{"kind"},
		),
		unknown: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolver_unknown_files",
				Help:      "Files still unknown after the last completed pass",
			},
		),
	}
}

// ObservePass implements resolver.Metrics.ObservePass
func (m *resolverMetrics) ObservePass(duration time.Duration, outcome string) {
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(duration.Seconds())
}

// RecordDecision implements resolver.Metrics.RecordDecision
func (m *resolverMetrics) RecordDecision(kind audit.Kind) {
	m.decisions.WithLabelValues(kind.String()).Inc()
}

// SetUnknown implements resolver.Metrics.SetUnknown
func (m *resolverMetrics) SetUnknown(n int) {
	m.unknown.Set(float64(n))
}
