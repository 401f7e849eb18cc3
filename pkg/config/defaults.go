package config

import (
	"strings"

	"github.com/marmos91/cascview/pkg/metrics"
	"github.com/marmos91/cascview/pkg/resolver"
)

// DefaultMetricsPort is the port of the metrics endpoint.
const DefaultMetricsPort = metrics.DefaultPort

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyStorageDefaults(&cfg.Storage)
	applyCatalogDefaults(&cfg.Catalog)
	applyResolverDefaults(&cfg.Resolver)
	applyAuditDefaults(&cfg.Audit)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyStorageDefaults sets storage backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	// Initialize maps if nil
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "."
	}
}

// applyCatalogDefaults sets catalog defaults.
func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Locale == "" {
		cfg.Locale = "enUS"
	}
}

// applyResolverDefaults fills in the well-known table locations.
func applyResolverDefaults(cfg *ResolverConfig) {
	if cfg.SoundEntriesPath == "" {
		cfg.SoundEntriesPath = resolver.DefaultSoundEntriesPath
	}
	if cfg.SoundKitID == 0 {
		cfg.SoundKitID = resolver.DefaultSoundKitID
	}
	if cfg.SoundKitEntryID == 0 {
		cfg.SoundKitEntryID = resolver.DefaultSoundKitEntryID
	}
	if cfg.SoundKitNameID == 0 {
		cfg.SoundKitNameID = resolver.DefaultSoundKitNameID
	}
}

// applyAuditDefaults sets audit log defaults.
func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
