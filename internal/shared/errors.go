package shared

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a referenced entity does not exist in storage.
var ErrNotFound = errors.New("not found")

// InvalidStateError reports a transition attempted from a state that does not
// permit it. It always carries the entity identifier and the attempted
// operation so callers can render an actionable message.
type InvalidStateError struct {
	Entity string
	ID     int64
	State  string
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s while %s", e.Entity, e.ID, e.Op, e.State)
}

// NewInvalidState builds an InvalidStateError.
func NewInvalidState(entity string, id int64, state, op string) error {
	return &InvalidStateError{Entity: entity, ID: id, State: state, Op: op}
}

// ValidationError reports unmet preconditions on input data. It is returned
// before any state mutation occurs.
type ValidationError struct {
	Entity string
	ID     int64
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s %d: %s", e.Entity, e.ID, e.Reason)
}

// NewValidation builds a ValidationError.
func NewValidation(entity string, id int64, reason string) error {
	return &ValidationError{Entity: entity, ID: id, Reason: reason}
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var ise *InvalidStateError
	return errors.As(err, &ise)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
