package config

import (
	"github.com/marmos91/cascview/pkg/explorer"
	"github.com/marmos91/cascview/pkg/metrics"
	"github.com/marmos91/cascview/pkg/resolver"
	"github.com/marmos91/cascview/pkg/storage/s3"
)

// MetricsResult contains all metrics-related components created from configuration.
//
// Collectors are nil when metrics are disabled; every consumer replaces a
// nil collector with its own no-op implementation.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Resolver observes resolution passes
	Resolver resolver.Metrics

	// Catalog observes builds, status counters and exports
	Catalog explorer.Metrics

	// S3 observes S3 requests (only used by the s3 storage type)
	S3 s3.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server and nil collectors (zero overhead)
//
// It must be called at most once per process with metrics enabled;
// collectors register on the global registry.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	return &MetricsResult{
		Server:   metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		Resolver: metrics.NewResolverMetrics(),
		Catalog:  metrics.NewCatalogMetrics(),
		S3:       metrics.NewS3Metrics(),
	}
}
