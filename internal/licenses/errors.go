package licenses

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("license not found")
	ErrDuplicateKey           = errors.New("license key already exists")
	ErrLimitExceeded          = errors.New("activation limit exceeded")
	ErrDeviceAlreadyActivated = errors.New("device already activated")
	ErrTransient              = errors.New("license store unavailable")
)

// ValidationError reports bad admin input. It maps to a client error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// transient marks an unexpected store failure so callers can decide on retry.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
