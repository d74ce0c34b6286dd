// Package storetest provides a conformance suite for idea.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) idea.Store

// RunIdeaStore runs the idea.Store contract against stores built by newStore.
func RunIdeaStore(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertAssignsIDAndVersion", func(t *testing.T) { testInsert(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("ApplyIncrementsVersion", func(t *testing.T) { testApply(t, newStore(t)) })
	t.Run("ApplyStaleVersion", func(t *testing.T) { testApplyStale(t, newStore(t)) })
	t.Run("ApplyMissing", func(t *testing.T) { testApplyMissing(t, newStore(t)) })
	t.Run("ApplyMutatorError", func(t *testing.T) { testApplyMutatorError(t, newStore(t)) })
	t.Run("ConcurrentApply", func(t *testing.T) { testConcurrentApply(t, newStore(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, newStore(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newStore(t)) })
}

func insert(t *testing.T, s idea.Store, title string, status idea.Status) *idea.Idea {
	t.Helper()
	i, err := idea.New(idea.Draft{Title: title, Owner: "ann", Tags: []string{"t1"}}, status)
	if err != nil {
		t.Fatalf("idea.New() error = %v", err)
	}
	stored, err := s.Insert(context.Background(), i)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return stored
}

func testInsert(t *testing.T, s idea.Store) {
	ctx := context.Background()
	a := insert(t, s, "first", idea.StatusDraft)
	b := insert(t, s, "second", idea.StatusProposed)

	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Fatalf("Insert() IDs = %q, %q; want distinct non-empty", a.ID, b.ID)
	}
	if a.Version != 1 || b.Version != 1 {
		t.Errorf("Insert() versions = %d, %d; want 1", a.Version, b.Version)
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Error("Insert() did not stamp timestamps")
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "first" || got.Status != idea.StatusDraft || got.Version != 1 || got.Owner != "ann" {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "t1" {
		t.Errorf("Get().Tags = %v", got.Tags)
	}
}

func testGetMissing(t *testing.T, s idea.Store) {
	_, err := s.Get(context.Background(), "does-not-exist")
	var nf *lifecycle.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Get() error = %v, want *NotFoundError", err)
	}
	if nf.ID != "does-not-exist" {
		t.Errorf("NotFoundError.ID = %q", nf.ID)
	}
}

func testApply(t *testing.T, s idea.Store) {
	ctx := context.Background()
	created := insert(t, s, "apply", idea.StatusDraft)

	time.Sleep(2 * time.Millisecond)
	updated, err := s.ApplyIfVersionMatches(ctx, created.ID, 1, func(i *idea.Idea) error {
		i.Status = idea.StatusProposed
		return nil
	})
	if err != nil {
		t.Fatalf("ApplyIfVersionMatches() error = %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if updated.Status != idea.StatusProposed {
		t.Errorf("Status = %s, want proposed", updated.Status)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", updated.UpdatedAt, created.UpdatedAt)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 2 || got.Status != idea.StatusProposed {
		t.Errorf("stored = %+v, want version 2 proposed", got)
	}
}

func testApplyStale(t *testing.T, s idea.Store) {
	ctx := context.Background()
	created := insert(t, s, "stale", idea.StatusDraft)

	called := false
	_, err := s.ApplyIfVersionMatches(ctx, created.ID, 7, func(i *idea.Idea) error {
		called = true
		i.Title = "clobbered"
		return nil
	})
	if !errors.Is(err, lifecycle.ErrConflict) {
		t.Fatalf("ApplyIfVersionMatches() error = %v, want ErrConflict", err)
	}
	if called {
		t.Error("mutator ran despite version mismatch")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 1 || got.Title != "stale" || !got.UpdatedAt.Equal(created.UpdatedAt) {
		t.Errorf("entity changed after conflict: %+v", got)
	}
}

func testApplyMissing(t *testing.T, s idea.Store) {
	_, err := s.ApplyIfVersionMatches(context.Background(), "missing", 1, nil)
	if !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("ApplyIfVersionMatches() error = %v, want ErrNotFound", err)
	}
}

func testApplyMutatorError(t *testing.T, s idea.Store) {
	ctx := context.Background()
	created := insert(t, s, "guarded", idea.StatusDraft)

	_, err := s.ApplyIfVersionMatches(ctx, created.ID, 1, func(i *idea.Idea) error {
		i.Title = "partial"
		_, err := idea.Lifecycle().Transition(i.Status, idea.StatusOutcome)
		return err
	})
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("ApplyIfVersionMatches() error = %v, want ErrInvalidTransition", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 1 || got.Title != "guarded" {
		t.Errorf("entity changed after mutator error: %+v", got)
	}
}

func testConcurrentApply(t *testing.T, s idea.Store) {
	ctx := context.Background()
	created := insert(t, s, "race", idea.StatusProposed)

	const racers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for r := 0; r < racers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.ApplyIfVersionMatches(ctx, created.ID, 1, func(i *idea.Idea) error {
				i.Status = idea.StatusExperiment
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, lifecycle.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(others) > 0 {
		t.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || conflicts != racers-1 {
		t.Errorf("successes = %d, conflicts = %d; want 1 and %d", successes, conflicts, racers-1)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("final version = %d, want 2", got.Version)
	}
}

func testRemove(t *testing.T, s idea.Store) {
	ctx := context.Background()
	created := insert(t, s, "doomed", idea.StatusDraft)

	removed, err := s.Remove(ctx, created.ID)
	if err != nil || !removed {
		t.Fatalf("Remove() = %v, %v; want true, nil", removed, err)
	}
	if _, err := s.Get(ctx, created.ID); !errors.Is(err, lifecycle.ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}

	removed, err = s.Remove(ctx, created.ID)
	if err != nil || removed {
		t.Errorf("second Remove() = %v, %v; want false, nil", removed, err)
	}
}

func testList(t *testing.T, s idea.Store) {
	ctx := context.Background()
	insert(t, s, "one", idea.StatusDraft)
	time.Sleep(2 * time.Millisecond)
	insert(t, s, "two", idea.StatusProposed)
	time.Sleep(2 * time.Millisecond)
	insert(t, s, "three", idea.StatusProposed)

	all, err := s.List(ctx, idea.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d ideas, want 3", len(all))
	}
	if all[0].Title != "one" || all[2].Title != "three" {
		t.Errorf("List() order = %s, %s, %s", all[0].Title, all[1].Title, all[2].Title)
	}

	proposed, err := s.List(ctx, idea.ListFilter{Status: []idea.Status{idea.StatusProposed}})
	if err != nil {
		t.Fatalf("List(status) error = %v", err)
	}
	if len(proposed) != 2 {
		t.Errorf("List(status=proposed) returned %d ideas, want 2", len(proposed))
	}

	page, err := s.List(ctx, idea.ListFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List(page) error = %v", err)
	}
	if len(page) != 1 || page[0].Title != "two" {
		t.Errorf("List(limit 1, offset 1) = %v", page)
	}
}
