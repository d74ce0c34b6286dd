package audit

import "errors"

var (
	// ErrInvalidEntry indicates an audit entry is missing required fields.
	ErrInvalidEntry = errors.New("invalid audit entry")

	// ErrInvalidEntityType indicates an entity type outside the closed set.
	ErrInvalidEntityType = errors.New("invalid audit entity type")

	// ErrLogClosed indicates the log has been closed.
	ErrLogClosed = errors.New("audit log closed")

	// ErrQueryUnsupported indicates the log cannot be queried.
	ErrQueryUnsupported = errors.New("audit log does not support queries")
)
