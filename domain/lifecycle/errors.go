// Package lifecycle provides a generic state machine and the typed errors
// shared by every lifecycle-governed entity.
package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition indicates the requested state is not reachable
	// from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict indicates the entity has been modified by another actor.
	ErrConflict = errors.New("entity has been modified by another actor")

	// ErrDanglingState indicates a transition target that is not registered
	// as a source state.
	ErrDanglingState = errors.New("transition target is not a registered state")

	// ErrDuplicateTransition indicates a successor listed twice for one state.
	ErrDuplicateTransition = errors.New("duplicate transition")

	// ErrEmptyState indicates an empty state label in the configuration.
	ErrEmptyState = errors.New("state label must not be empty")
)

// InvalidTransitionError reports a rejected transition with both endpoints.
type InvalidTransitionError struct {
	From string
	To   string
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %q to %q", e.From, e.To)
}

// Is reports whether target is ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConflictError reports a version mismatch detected by an optimistic
// concurrency check. Actual is zero when the backend cannot report it.
type ConflictError struct {
	Entity   string
	ID       string
	Expected int
	Actual   int
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Actual == 0 {
		return fmt.Sprintf("%s %q has been modified by another actor (expected version %d)",
			e.Entity, e.ID, e.Expected)
	}
	return fmt.Sprintf("%s %q has been modified by another actor (expected version %d, current %d)",
		e.Entity, e.ID, e.Expected, e.Actual)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidTransition reports whether err is a rejected transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
