package utils

import (
	"errors"
	"fmt"
)

// ConfigurationError represents a fatal data-integrity or configuration
// problem: malformed contest timestamps, a malformed calendar rule, or a
// holiday search that exceeded its bound. It is never retried.
type ConfigurationError struct {
	Message string
}

// Error returns the error message string.
func (e *ConfigurationError) Error() string {
	return e.Message
}

// NewConfigurationError creates a new ConfigurationError with a specific message.
func NewConfigurationError(message string) error {
	return &ConfigurationError{
		Message: message,
	}
}

// NewConfigurationErrorf creates a new ConfigurationError with a formatted message.
func NewConfigurationErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
