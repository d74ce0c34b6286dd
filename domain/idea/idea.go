package idea

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
)

// EntityName identifies ideas in errors and audit entries.
const EntityName = "idea"

// Idea is a lifecycle-governed record guarded by a version counter.
type Idea struct {
	// ID is the opaque unique identifier, assigned on insert.
	ID string `json:"id" bson:"_id" dynamodbav:"id"`

	// Title is the short name of the idea.
	Title string `json:"title" bson:"title" dynamodbav:"title"`

	// Description is the free-form body.
	Description string `json:"description,omitempty" bson:"description" dynamodbav:"description"`

	// Tags are free-form labels.
	Tags []string `json:"tags,omitempty" bson:"tags" dynamodbav:"tags,omitempty"`

	// Owner is the user who created the idea.
	Owner string `json:"owner,omitempty" bson:"owner" dynamodbav:"owner"`

	// Status is the current lifecycle stage.
	Status Status `json:"status" bson:"status" dynamodbav:"status"`

	// Version starts at 1 and increases by exactly 1 on every accepted mutation.
	Version int `json:"version" bson:"version" dynamodbav:"version"`

	// CreatedAt is when the idea was inserted.
	CreatedAt time.Time `json:"created_at" bson:"created_at" dynamodbav:"created_at"`

	// UpdatedAt is when the idea was last mutated.
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" dynamodbav:"updated_at"`
}

// Draft is the payload used to create an idea.
type Draft struct {
	Title       string
	Description string
	Tags        []string
	Owner       string
}

// Validate checks the draft payload.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidIdea)
	}
	return nil
}

// New builds an unsaved idea in the given initial status.
// The store assigns ID and version on insert.
func New(d Draft, status Status) (*Idea, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if _, ok := ParseStatus(string(status)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return &Idea{
		Title:       strings.TrimSpace(d.Title),
		Description: d.Description,
		Tags:        slices.Clone(d.Tags),
		Owner:       d.Owner,
		Status:      status,
	}, nil
}

// Content is a partial update of an idea's payload fields.
// Nil fields are left unchanged.
type Content struct {
	Title       *string
	Description *string
	Tags        []string
	Owner       *string
}

// IsEmpty reports whether the patch changes nothing.
func (c Content) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Tags == nil && c.Owner == nil
}

// Apply writes the patch onto i. It never touches status or version.
func (c Content) Apply(i *Idea) error {
	if c.Title != nil {
		title := strings.TrimSpace(*c.Title)
		if title == "" {
			return fmt.Errorf("%w: title must not be empty", ErrInvalidIdea)
		}
		i.Title = title
	}
	if c.Description != nil {
		i.Description = *c.Description
	}
	if c.Tags != nil {
		i.Tags = slices.Clone(c.Tags)
	}
	if c.Owner != nil {
		i.Owner = *c.Owner
	}
	return nil
}

// Clone returns a deep copy of the idea.
func (i *Idea) Clone() *Idea {
	if i == nil {
		return nil
	}
	c := *i
	c.Tags = slices.Clone(i.Tags)
	return &c
}

// Mutator computes new field values on a working copy of an idea.
// Returning an error aborts the mutation with no effect.
type Mutator func(*Idea) error

// Apply performs the optimistic concurrency step shared by every store:
// it rejects a stale expected version, runs mutate on a copy of current,
// and stamps the next version and update time. current is not modified.
func Apply(current *Idea, expected int, mutate Mutator, now time.Time) (*Idea, error) {
	if current.Version != expected {
		return nil, &lifecycle.ConflictError{
			Entity:   EntityName,
			ID:       current.ID,
			Expected: expected,
			Actual:   current.Version,
		}
	}

	next := current.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}

	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = expected + 1
	next.UpdatedAt = now
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Microsecond)
	}
	return next, nil
}

// NotFound returns the typed not-found error for an idea ID.
func NotFound(id string) error {
	return &lifecycle.NotFoundError{Entity: EntityName, ID: id}
}

// Conflict returns the typed conflict error for an idea ID when the
// current version is not known.
func Conflict(id string, expected int) error {
	return &lifecycle.ConflictError{Entity: EntityName, ID: id, Expected: expected}
}
