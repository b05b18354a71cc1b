// Package apperr defines the error taxonomy shared by every service
// package. Callers classify failures with errors.Is and translate them
// into transport-level responses.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidToken covers absent, expired, and wrong-purpose tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPermission signals a failed role or ownership check.
	ErrPermission = errors.New("permission denied")
	// ErrStateConflict signals an operation invalid for the current
	// status, such as confirming after the deadline or joining a full
	// team.
	ErrStateConflict = errors.New("state conflict")
	// ErrValidation signals malformed input.
	ErrValidation = errors.New("validation failed")
)

// NotFound wraps ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidToken(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidToken, fmt.Sprintf(format, args...))
}

func Permission(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

func StateConflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
