package idea

import (
	"context"
	"slices"
	"sort"
	"time"
)

// Store persists ideas and guards every mutation with an optimistic
// concurrency check on Version.
//
// Implementations must make the check-then-act sequence of
// ApplyIfVersionMatches atomic for a given ID: when two callers race with
// the same expected version, exactly one succeeds and the other receives a
// *lifecycle.ConflictError.
type Store interface {
	// Get retrieves an idea by ID. It returns a *lifecycle.NotFoundError
	// if the idea does not exist.
	Get(ctx context.Context, id string) (*Idea, error)

	// Insert assigns a fresh ID and version 1, then stores the idea.
	Insert(ctx context.Context, idea *Idea) (*Idea, error)

	// ApplyIfVersionMatches runs mutate on a copy of the stored idea if its
	// version equals expected, then stores it with version expected+1 and a
	// refreshed UpdatedAt. Errors returned by mutate abort with no effect.
	ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate Mutator) (*Idea, error)

	// Remove deletes the idea and reports whether it existed.
	Remove(ctx context.Context, id string) (bool, error)

	// List returns ideas matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Idea, error)
}

// ListFilter filters idea queries.
type ListFilter struct {
	// Status filters by lifecycle status.
	Status []Status

	// Owner filters by owner.
	Owner string

	// Limit is the maximum number of results.
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// OrderBy specifies the ordering.
	OrderBy OrderBy

	// Descending reverses the order.
	Descending bool
}

// OrderBy specifies how to order idea results.
type OrderBy string

const (
	// OrderByCreatedAt orders by creation time.
	OrderByCreatedAt OrderBy = "created_at"

	// OrderByUpdatedAt orders by last update time.
	OrderByUpdatedAt OrderBy = "updated_at"

	// OrderByTitle orders by title.
	OrderByTitle OrderBy = "title"
)

// Matches reports whether i satisfies the status and owner criteria.
func (f ListFilter) Matches(i *Idea) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, i.Status) {
		return false
	}
	if f.Owner != "" && i.Owner != f.Owner {
		return false
	}
	return true
}

// Select filters, orders, and paginates ideas in memory. Backends without
// server-side querying share it.
func Select(ideas []*Idea, f ListFilter) []*Idea {
	out := make([]*Idea, 0, len(ideas))
	for _, i := range ideas {
		if f.Matches(i) {
			out = append(out, i)
		}
	}

	sortIdeas(out, f.OrderBy, f.Descending)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Idea{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortIdeas(ideas []*Idea, orderBy OrderBy, descending bool) {
	var less func(a, b *Idea) bool
	switch orderBy {
	case OrderByUpdatedAt:
		less = func(a, b *Idea) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	case OrderByTitle:
		less = func(a, b *Idea) bool { return a.Title < b.Title }
	default:
		less = func(a, b *Idea) bool { return createdBefore(a, b) }
	}

	sort.SliceStable(ideas, func(i, j int) bool {
		if descending {
			return less(ideas[j], ideas[i])
		}
		return less(ideas[i], ideas[j])
	})
}

func createdBefore(a, b *Idea) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// Prepare stamps a new idea for insertion: version 1 and both timestamps.
// It returns a copy carrying the given ID.
func Prepare(i *Idea, id string, now time.Time) *Idea {
	next := i.Clone()
	next.ID = id
	next.Version = 1
	if next.Status == "" {
		next.Status = StatusDraft
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = next.CreatedAt
	}
	return next
}
