package vectorizer

import (
	"errors"
	"fmt"
)

// Error taxonomy for vectorizer lifecycle operations. Everything except lock
// contention during index builds surfaces as one of these.
var (
	ErrInvalidConfig     = errors.New("invalid vectorizer configuration")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNameCollision     = errors.New("object name already in use")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNoPrimaryKey      = errors.New("source table has no primary key")
	ErrSourceNotFound    = errors.New("source table not found")
	ErrNotFound          = errors.New("vectorizer not found")
	ErrNoSchedule        = errors.New("vectorizer has no schedule")
)

// ConfigError describes a single invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidConfig).
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
