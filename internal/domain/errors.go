package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDomains is wrapped by the ValidationError returned when a
	// calculation has no domain with a non-blank name.
	ErrNoDomains = errors.New("at least one named domain is required")

	// ErrInvalidDate is wrapped when a date is not formatted yyyy-MM-dd.
	ErrInvalidDate = errors.New("date must be formatted yyyy-MM-dd")

	ErrRegionNotFound = errors.New("region not found")
	ErrRecordNotFound = errors.New("record not found")
)

// ValidationError describes an input rejected before any state is changed.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
