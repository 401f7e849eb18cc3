package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete cascview configuration.
//
// This structure captures all configurable aspects of a session:
//   - Logging configuration
//   - Storage backend selection and configuration (backend-specific)
//   - Catalog build options (locales and variant preferences)
//   - Resolver candidate sources
//   - Audit log selection and configuration (store-specific)
//   - Export file locations
//   - Metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (CASCVIEW_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each backend defines its own configuration type, decoded by its factory
// from the section matching the selected type (storage.filesystem,
// storage.s3, audit.badger, ...). The other sections are ignored.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Storage specifies the backend type and type-specific configuration
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Catalog selects which variants the tree exposes
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Resolver configures the candidate sources of a resolution pass
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`

	// Audit specifies where resolver decisions are recorded
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Export sets the default output paths of the export command
	Export ExportConfig `mapstructure:"export" yaml:"export"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// StorageConfig specifies the storage backend.
//
// The Type field determines which backend is used. Only the corresponding
// type-specific section is read.
type StorageConfig struct {
	// Type specifies which backend implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration (path)
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Memory contains memory-specific configuration (preload)
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// S3 contains S3-specific configuration (bucket, region, endpoint, ...)
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// CatalogConfig selects the variants the catalog tree exposes.
type CatalogConfig struct {
	// Locale is a comma separated list of locale names ("enUS,deDE") or "All"
	Locale string `mapstructure:"locale" yaml:"locale" validate:"required"`

	// OverrideArchive lets override-archive variants win at a shared path
	OverrideArchive bool `mapstructure:"override_archive" yaml:"override_archive"`

	// PreferHighRes lets high-resolution variants win at a shared path
	PreferHighRes bool `mapstructure:"prefer_high_res" yaml:"prefer_high_res"`
}

// ResolverConfig configures the candidate sources of a resolution pass.
type ResolverConfig struct {
	// AnalyzeSoundFiles enables the sound table sources
	AnalyzeSoundFiles bool `mapstructure:"analyze_sound_files" yaml:"analyze_sound_files"`

	// AddFileDataID appends the file id to names derived from sound kits
	AddFileDataID bool `mapstructure:"add_file_data_id" yaml:"add_file_data_id"`

	// SoundEntriesPath locates the legacy sound table
	SoundEntriesPath string `mapstructure:"sound_entries_path" yaml:"sound_entries_path" validate:"required"`

	// SoundKitID, SoundKitEntryID and SoundKitNameID are the file ids of
	// the three linked sound kit tables
	SoundKitID      int32 `mapstructure:"sound_kit_id" yaml:"sound_kit_id" validate:"gt=0"`
	SoundKitEntryID int32 `mapstructure:"sound_kit_entry_id" yaml:"sound_kit_entry_id" validate:"gt=0"`
	SoundKitNameID  int32 `mapstructure:"sound_kit_name_id" yaml:"sound_kit_name_id" validate:"gt=0"`

	// KnownKeys lists the hexadecimal ids of the encryption keys available
	// to read encrypted table sections
	KnownKeys []string `mapstructure:"known_keys" yaml:"known_keys" validate:"dive,hexadecimal,max=18"`
}

// AuditConfig specifies the audit log store.
type AuditConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific configuration (db_path)
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// ExportConfig sets the default export paths. Empty paths use the default
// file names in the working directory.
type ExportConfig struct {
	ListingPath     string `mapstructure:"listing_path" yaml:"listing_path"`
	DirectoriesPath string `mapstructure:"directories_path" yaml:"directories_path"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns metrics collection on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port serves /metrics while a command runs
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CASCVIEW_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeys are bound explicitly so environment variables apply even when
// the key is absent from the config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"storage.type",
	"storage.filesystem.path",
	"storage.s3.bucket",
	"storage.s3.region",
	"storage.s3.endpoint",
	"storage.s3.key_prefix",
	"storage.s3.access_key_id",
	"storage.s3.secret_access_key",
	"catalog.locale",
	"resolver.analyze_sound_files",
	"audit.type",
	"audit.badger.db_path",
	"metrics.enabled",
	"metrics.port",
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the CASCVIEW_ prefix and underscores
	// Example: CASCVIEW_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CASCVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/cascview/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cascview")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "cascview")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
