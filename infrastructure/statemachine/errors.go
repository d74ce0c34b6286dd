package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokenChain indicates an entry whose previous state does not match
	// the state reached by the entries before it.
	ErrBrokenChain = errors.New("audit trail does not chain")

	// ErrIllegalStep indicates an entry recording a transition the
	// lifecycle does not allow.
	ErrIllegalStep = errors.New("audit trail contains an illegal transition")

	// ErrStatusMismatch indicates the replayed state differs from the
	// stored status.
	ErrStatusMismatch = errors.New("replayed state does not match stored status")

	// ErrInvalidStart indicates a trail that does not begin at a creation
	// status.
	ErrInvalidStart = errors.New("audit trail does not start at a creation status")
)

// ReplayError reports the first entry that failed verification. Index is
// -1 when the failure concerns the trail as a whole.
type ReplayError struct {
	Index   int
	EntryID int64
	Err     error
}

// Error implements the error interface.
func (e *ReplayError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("entry %d (id %d): %v", e.Index, e.EntryID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReplayError) Unwrap() error {
	return e.Err
}
