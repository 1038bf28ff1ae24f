package models

import (
	"errors"
	"fmt"
)

// ErrCatalogUnavailable is returned when a referenced inventory catalog cannot be opened.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

// ErrNoPlacements is returned when no placement ids survive the full catalog merge.
// No line item may be created without inventory targeting.
var ErrNoPlacements = errors.New("no placements resolved for targeting")

// ErrNoCreative is returned when a size has no asset, script payload or video URL.
// It is an *InputError.
var ErrNoCreative error = &InputError{Field: "creative", Reason: "no creative detected"}

// ErrLocationNotFound is returned by geo lookups for unknown location names.
var ErrLocationNotFound = errors.New("location not found")

// ErrNameExhausted is returned when every naming attempt was rejected as a collision.
var ErrNameExhausted = errors.New("line item name collisions exhausted")

// InputError reports a caller-supplied value that can never succeed.
// Input errors are fatal and never retried.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewInputError builds an InputError for the given field.
func NewInputError(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
