package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/cascview/pkg/catalog"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	locales, err := catalog.ParseLocales(cfg.Catalog.Locale)
	if err != nil {
		return fmt.Errorf("catalog.locale: %w", err)
	}
	if locales == catalog.LocaleNone {
		return fmt.Errorf("catalog.locale: at least one locale must be selected")
	}

	if _, err := ParseKnownKeys(cfg.Resolver.KnownKeys); err != nil {
		return fmt.Errorf("resolver.known_keys: %w", err)
	}

	switch cfg.Storage.Type {
	case "filesystem":
		if s, _ := cfg.Storage.Filesystem["path"].(string); s == "" {
			return fmt.Errorf("storage.filesystem.path is required")
		}
	case "s3":
		var s3Cfg s3BackendConfig
		if err := mapstructure.Decode(cfg.Storage.S3, &s3Cfg); err != nil {
			return fmt.Errorf("storage.s3: %w", err)
		}
		if s3Cfg.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
		if s3Cfg.Region == "" {
			return fmt.Errorf("storage.s3.region is required")
		}
	}

	if cfg.Audit.Type == "badger" {
		if s, _ := cfg.Audit.Badger["db_path"].(string); s == "" {
			return fmt.Errorf("audit.badger.db_path is required")
		}
	}

	return nil
}

// ParseKnownKeys parses hexadecimal key ids, with or without a 0x prefix.
func ParseKnownKeys(keys []string) (map[uint64]struct{}, error) {
	ids := make(map[uint64]struct{}, len(keys))
	for _, k := range keys {
		hex := strings.TrimPrefix(strings.TrimPrefix(k, "0x"), "0X")
		id, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid key id %q: %w", k, err)
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
