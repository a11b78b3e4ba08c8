package ledger

import (
	"errors"
	"fmt"
)

// Ledger errors. All are local and non-retryable; callers decide how to report them.
var (
	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when no deposit has the requested id
	ErrNotFound = errors.New("deposit not found")

	// ErrAlreadyWithdrawn is returned when a withdrawn deposit is withdrawn again
	ErrAlreadyWithdrawn = errors.New("deposit already withdrawn")

	// ErrLockNotExpired is returned when a withdrawal is attempted before the unlock time
	ErrLockNotExpired = errors.New("deposit is still locked")
)

// ValidationError reports malformed input to a ledger operation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Reason returns a short machine-readable tag for a ledger error
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyWithdrawn):
		return "already_withdrawn"
	case errors.Is(err, ErrLockNotExpired):
		return "lock_not_expired"
	default:
		return "internal"
	}
}
