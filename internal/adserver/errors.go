package adserver

import (
	"errors"
	"fmt"
)

// CollisionError reports that the ad server rejected an object because its
// name is already in use.
type CollisionError struct {
	Name   string
	Reason string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("name collision for %q: %s", e.Name, e.Reason)
}

// TransientError wraps a failure that may succeed on retry: connection
// errors, timeouts, throttling and 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsCollision reports whether err is or wraps a *CollisionError.
func IsCollision(err error) bool {
	var ce *CollisionError
	return errors.As(err, &ce)
}

// IsTransient reports whether err is or wraps a *TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
