package badger_test

import (
	"context"
	"testing"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/badger"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/storetest"
)

func newTestStore(t *testing.T) *badger.IdeaStore {
	t.Helper()
	store, err := badger.NewIdeaStore(badger.Config{InMemory: true, KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("NewIdeaStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIdeaStore_Contract(t *testing.T) {
	storetest.RunIdeaStore(t, func(t *testing.T) idea.Store {
		return newTestStore(t)
	})
}

func TestIdeaStore_PersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := badger.NewIdeaStore(badger.DefaultConfig(), badger.WithDir(dir), badger.WithGCInterval(0))
	if err != nil {
		t.Fatalf("NewIdeaStore failed: %v", err)
	}
	created, err := store.Insert(ctx, &idea.Idea{Title: "on disk", Tags: []string{"x"}})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := badger.NewIdeaStore(badger.DefaultConfig(), badger.WithDir(dir), badger.WithGCInterval(0))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "on disk" || got.Version != 1 || len(got.Tags) != 1 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestIdeaStore_KeyPrefixIsolation(t *testing.T) {
	first := newTestStore(t)
	ctx := context.Background()

	if _, err := first.Insert(ctx, &idea.Idea{Title: "tenant a"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	other := badger.NewIdeaStoreFromDB(first.DB(), "other:")
	ideas, err := other.List(ctx, idea.ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ideas) != 0 {
		t.Errorf("List() under other prefix returned %d ideas, want 0", len(ideas))
	}
}

func TestIdeaStore_CloseIsIdempotent(t *testing.T) {
	store, err := badger.NewIdeaStore(badger.Config{InMemory: true})
	if err != nil {
		t.Fatalf("NewIdeaStore failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
