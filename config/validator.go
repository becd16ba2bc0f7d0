package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("env", validateEnvironment)
	_ = validate.RegisterValidation("file_exists", validateFileExists)
	_ = validate.RegisterValidation("dir_exists", validateDirExists)
	_ = validate.RegisterValidation("host", validateHost)
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	var details ValidationErrors
	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return err
		}
		for _, fe := range validationErrors {
			details = append(details, ConfigError{
				Field:   fe.Namespace(),
				Message: formatValidationError(fe),
				Value:   fe.Value(),
			})
		}
	}

	var cross ValidationErrors
	if errors.As(validateCrossField(cfg), &cross) {
		details = append(details, cross...)
	}

	if len(details) > 0 {
		return details
	}
	return nil
}

// validateCrossField checks rules that span more than one field.
func validateCrossField(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, ConfigError{
			Field:   "Config.Tracing.Endpoint",
			Message: "is required when tracing is enabled",
			Value:   cfg.Tracing.Endpoint,
		})
	}

	if cfg.Ledger.Enabled {
		switch cfg.Ledger.Backend {
		case "file", "badger":
			if cfg.Ledger.Path == "" {
				errs = append(errs, ConfigError{
					Field:   "Config.Ledger.Path",
					Message: fmt.Sprintf("is required for the %s backend", cfg.Ledger.Backend),
					Value:   cfg.Ledger.Path,
				})
			}
		case "redis":
			if cfg.Ledger.Redis.Address == "" {
				errs = append(errs, ConfigError{
					Field:   "Config.Ledger.Redis.Address",
					Message: "is required for the redis backend",
					Value:   cfg.Ledger.Redis.Address,
				})
			}
		}
	}

	if cfg.Executor.Backoff.Max > 0 && cfg.Executor.Backoff.Max < cfg.Executor.Backoff.Initial {
		errs = append(errs, ConfigError{
			Field:   "Config.Executor.Backoff.Max",
			Message: "must not be smaller than the initial delay",
			Value:   cfg.Executor.Backoff.Max,
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// formatValidationError converts validator.FieldError to a human-readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "env":
		return "must be one of [development staging production]"
	case "file_exists":
		return "file does not exist"
	case "dir_exists":
		return "directory does not exist"
	case "host":
		return "must be a valid hostname or IP address"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	env := fl.Field().String()
	validEnvs := []string{"development", "staging", "production"}
	for _, valid := range validEnvs {
		if env == valid {
			return true
		}
	}
	return false
}

// validateFileExists accepts an empty path or a path to a regular file.
func validateFileExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// validateDirExists accepts an empty path or a path to a directory.
func validateDirExists(fl validator.FieldLevel) bool {
	path := fl.Field().String()
	if path == "" {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// validateHost accepts an empty value, an IP address or an RFC 1123 hostname.
func validateHost(fl validator.FieldLevel) bool {
	host := fl.Field().String()
	if host == "" {
		return true
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			if !isValidHostChar(label[i]) {
				return false
			}
		}
	}
	return true
}

func isValidHostChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '-'
}
