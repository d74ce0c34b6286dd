// Package audit provides the append-only record of accepted lifecycle
// transitions.
package audit

import (
	"context"
	"fmt"
	"time"
)

// AnonymousUser attributes transitions requested without an actor.
const AnonymousUser = "anonymous"

// EntityType tags which kind of lifecycle entity an entry describes.
type EntityType string

const (
	// EntityIdea tags idea transitions.
	EntityIdea EntityType = "idea"

	// EntityExperiment tags experiment transitions.
	EntityExperiment EntityType = "experiment"
)

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return t == EntityIdea || t == EntityExperiment
}

// Entry records one accepted state transition. Entries are never mutated
// or deleted once recorded.
type Entry struct {
	ID            int64      `json:"id"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	PreviousState string     `json:"previous_state"`
	NewState      string     `json:"new_state"`
	UserID        string     `json:"user_id"`
	Goal          string     `json:"goal"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Normalize validates e and fills the permissive defaults: an anonymous
// user and the given record time. The ID is left to the log.
func Normalize(e Entry, now time.Time) (Entry, error) {
	if !e.EntityType.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidEntityType, e.EntityType)
	}
	if e.EntityID == "" {
		return Entry{}, fmt.Errorf("%w: entity id is required", ErrInvalidEntry)
	}
	if e.UserID == "" {
		e.UserID = AnonymousUser
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	return e, nil
}

// Log is an append-only audit log.
type Log interface {
	// Record appends an entry, assigning its ID and defaults, and returns
	// the stored entry.
	Record(ctx context.Context, entry Entry) (Entry, error)

	// Query returns entries matching the filter in ascending ID order.
	Query(ctx context.Context, filter Filter) ([]Entry, error)

	// Close releases resources.
	Close() error
}

// Filter specifies criteria for querying entries.
type Filter struct {
	EntityType EntityType
	EntityID   string
	UserID     string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// Matches reports whether e satisfies the filter.
func (f Filter) Matches(e Entry) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && e.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}
