package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/emingest/pkg/transfer"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !strings.Contains(cfg.Source.DataPath, transfer.EntryIDPlaceholder) {
		return fmt.Errorf("source.data_path: must contain %s placeholder", transfer.EntryIDPlaceholder)
	}

	if cfg.Storage.Type == "s3" {
		if bucket, _ := cfg.Storage.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("storage.s3.bucket: required when storage.type is s3")
		}
	}

	if cfg.Index.Type == "badger" {
		if path, _ := cfg.Index.Badger["path"].(string); path == "" {
			return fmt.Errorf("index.badger.path: required when index.type is badger")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics.port: required when metrics are enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
