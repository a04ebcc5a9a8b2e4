package services

import (
	"errors"
	"fmt"

	"luckydraw/internal/store"
)

var (
	// ErrPoolExhausted means every number in the configured pool is taken.
	ErrPoolExhausted = errors.New("no numbers left in the pool")
	// ErrContentionExceeded means the retry budget ran out under concurrent writes.
	// The whole call may be retried.
	ErrContentionExceeded = errors.New("too much concurrent activity, please retry")
	// ErrInconsistentState means a winner-eligible number resolved to no
	// participant. It points at data corruption and must not be retried blindly.
	ErrInconsistentState = errors.New("inconsistent lottery state")
)

// ValidationError rejects caller input before any store access.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRetriable reports whether the caller may repeat the whole operation.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrContentionExceeded) || errors.Is(err, store.ErrUnavailable)
}
