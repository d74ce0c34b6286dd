package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// IdeaStore is a BadgerDB-backed implementation of idea.Store.
//
// Badger's serializable transactions provide the version check: when two
// read-modify-write transactions touch the same key, the later commit
// fails with badger.ErrConflict.
type IdeaStore struct {
	db        *badger.DB
	keyPrefix string
	now       func() time.Time
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

// NewIdeaStore opens a BadgerDB idea store with the given configuration.
func NewIdeaStore(cfg Config, opts ...Option) (*IdeaStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := NewIdeaStoreFromDB(db, cfg.KeyPrefix)

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// NewIdeaStoreFromDB creates an idea store from an existing BadgerDB database.
func NewIdeaStoreFromDB(db *badger.DB, keyPrefix string) *IdeaStore {
	return &IdeaStore{
		db:        db,
		keyPrefix: keyPrefix,
		now:       time.Now,
		gcStop:    make(chan struct{}),
	}
}

// startGC starts the value log garbage collection goroutine.
func (s *IdeaStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				for s.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

// Key format: prefix + "idea:" + id
func (s *IdeaStore) ideaPrefix() []byte {
	return []byte(s.keyPrefix + "idea:")
}

func (s *IdeaStore) ideaKey(id string) []byte {
	return append(s.ideaPrefix(), id...)
}

func readIdea(item *badger.Item) (*idea.Idea, error) {
	var i idea.Idea
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &i)
	})
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result *idea.Idea
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.ideaKey(id))
		if err != nil {
			return err
		}
		result, err = readIdea(item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, idea.NotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Insert assigns a fresh ID and version 1, then stores the idea.
func (s *IdeaStore) Insert(ctx context.Context, i *idea.Idea) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i == nil {
		return nil, idea.ErrInvalidIdea
	}

	stored := idea.Prepare(i, uuid.NewString(), s.now().UTC())
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := s.ideaKey(stored.ID)
		if _, err := txn.Get(key); err == nil {
			return idea.ErrInvalidID
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var next *idea.Idea
	err := s.db.Update(func(txn *badger.Txn) error {
		key := s.ideaKey(id)
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		current, err := readIdea(item)
		if err != nil {
			return err
		}

		next, err = idea.Apply(current, expected, mutate, s.now().UTC())
		if err != nil {
			return err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, idea.NotFound(id)
	case errors.Is(err, badger.ErrConflict):
		return nil, idea.Conflict(id, expected)
	default:
		return nil, err
	}
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		key := s.ideaKey(id)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		existed = true
		return txn.Delete(key)
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// List returns ideas matching the filter.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ideas []*idea.Idea
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.ideaPrefix()
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			i, err := readIdea(it.Item())
			if err != nil {
				return err
			}
			ideas = append(ideas, i)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return idea.Select(ideas, filter), nil
}

// Close stops background GC and closes the database.
func (s *IdeaStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB returns the underlying BadgerDB database.
func (s *IdeaStore) DB() *badger.DB {
	return s.db
}

var _ idea.Store = (*IdeaStore)(nil)
