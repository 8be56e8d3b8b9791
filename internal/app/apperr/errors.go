package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrLimitExceeded = errors.New("limit exceeded")
	ErrNotFound      = errors.New("not found")
	ErrUnavailable   = errors.New("unavailable")
)

// Invalid reports a validation failure that never reached the store.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Unavailable wraps a store or transport failure. Callers may retry the same call.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
