package idea

import "errors"

var (
	// ErrInvalidIdea indicates the idea payload is invalid.
	ErrInvalidIdea = errors.New("invalid idea")

	// ErrInvalidID indicates an empty or malformed idea ID.
	ErrInvalidID = errors.New("invalid idea id")

	// ErrMissingVersion indicates a mutating request without an expected version.
	ErrMissingVersion = errors.New("expected version is required")

	// ErrUnknownStatus indicates a status outside the idea lifecycle.
	ErrUnknownStatus = errors.New("unknown idea status")
)
