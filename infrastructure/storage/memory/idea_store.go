// Package memory provides in-memory storage implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// IdeaStore is an in-memory implementation of idea.Store.
//
// A single store-wide lock serializes writers, which makes the version
// check and the commit in ApplyIfVersionMatches one atomic step.
type IdeaStore struct {
	mu    sync.RWMutex
	ideas map[string]*idea.Idea
	now   func() time.Time
	newID func() string
}

// IdeaStoreOption configures the memory idea store.
type IdeaStoreOption func(*IdeaStore)

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) IdeaStoreOption {
	return func(s *IdeaStore) {
		s.now = now
	}
}

// WithIDGenerator sets the ID generator used on insert.
func WithIDGenerator(gen func() string) IdeaStoreOption {
	return func(s *IdeaStore) {
		s.newID = gen
	}
}

// NewIdeaStore creates a new in-memory idea store.
func NewIdeaStore(opts ...IdeaStoreOption) *IdeaStore {
	s := &IdeaStore{
		ideas: make(map[string]*idea.Idea),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.ideas[id]
	if !ok {
		return nil, idea.NotFound(id)
	}
	return i.Clone(), nil
}

// Insert assigns a fresh ID and version 1, then stores a copy of the idea.
func (s *IdeaStore) Insert(ctx context.Context, i *idea.Idea) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i == nil {
		return nil, idea.ErrInvalidIdea
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.ideas[id]; exists {
		return nil, idea.ErrInvalidID
	}

	stored := idea.Prepare(i, id, s.now().UTC())
	s.ideas[id] = stored
	return stored.Clone(), nil
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.ideas[id]
	if !ok {
		return nil, idea.NotFound(id)
	}

	next, err := idea.Apply(current, expected, mutate, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.ideas[id] = next
	return next.Clone(), nil
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ideas[id]; !ok {
		return false, nil
	}
	delete(s.ideas, id)
	return true, nil
}

// List returns ideas matching the filter.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	all := make([]*idea.Idea, 0, len(s.ideas))
	for _, i := range s.ideas {
		all = append(all, i.Clone())
	}
	s.mu.RUnlock()

	return idea.Select(all, filter), nil
}

// Len returns the number of stored ideas.
func (s *IdeaStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ideas)
}

var _ idea.Store = (*IdeaStore)(nil)
