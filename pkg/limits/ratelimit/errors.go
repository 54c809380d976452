package ratelimit

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is the base error for rejected limiter configurations.
// Every *ConfigurationError unwraps to it.
var ErrInvalidConfig = errors.New("invalid rate limiter configuration")

// ConfigurationError describes a limiter parameter rejected at construction.
type ConfigurationError struct {
	// Field is the offending parameter (window_size, max_requests, ...).
	Field string

	// Value is the rejected value.
	Value interface{}

	// Message explains the constraint that was violated.
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Message)
}

// Unwrap returns ErrInvalidConfig so callers can match with errors.Is.
func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

func newConfigError(field string, value interface{}, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}
