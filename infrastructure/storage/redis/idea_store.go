package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// IdeaStore is a Redis-backed implementation of idea.Store.
//
// Each idea is a JSON string under "<prefix>idea:<id>". A sorted set scored
// by creation time indexes all IDs. Version checks use WATCH/MULTI, so a
// concurrent write to the same key aborts the transaction.
type IdeaStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewIdeaStore creates an idea store from an existing Redis client.
func NewIdeaStore(client *redis.Client, keyPrefix string) *IdeaStore {
	return &IdeaStore{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (s *IdeaStore) ideaKey(id string) string {
	return s.keyPrefix + "idea:" + id
}

func (s *IdeaStore) indexKey() string {
	return s.keyPrefix + "ideas"
}

func decodeIdea(data []byte) (*idea.Idea, error) {
	var i idea.Idea
	if err := json.Unmarshal(data, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.ideaKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, idea.NotFound(id)
		}
		return nil, s.wrapError(err)
	}
	return decodeIdea(data)
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

	var created *redis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		created = pipe.SetNX(ctx, s.ideaKey(stored.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(stored.CreatedAt.UnixNano()),
			Member: stored.ID,
		})
		return nil
	})
	if err != nil {
		return nil, s.wrapError(err)
	}
	if !created.Val() {
		return nil, idea.ErrInvalidID
	}

	return stored, nil
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := s.ideaKey(id)
	var (
		next     *idea.Idea
		applyErr error
	)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				applyErr = idea.NotFound(id)
				return applyErr
			}
			return err
		}

		current, err := decodeIdea(data)
		if err != nil {
			return err
		}

		next, applyErr = idea.Apply(current, expected, mutate, s.now().UTC())
		if applyErr != nil {
			return applyErr
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return next, nil
	case applyErr != nil:
		return nil, applyErr
	case errors.Is(err, redis.TxFailedErr):
		return nil, idea.Conflict(id, expected)
	default:
		return nil, s.wrapError(err)
	}
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, s.ideaKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return false, s.wrapError(err)
	}
	return deleted.Val() > 0, nil
}

// List returns ideas matching the filter. Filtering and ordering happen
// client-side over the index.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, s.wrapError(err)
	}
	if len(ids) == 0 {
		return []*idea.Idea{}, nil
	}

	keys := make([]string, len(ids))
	for n, id := range ids {
		keys[n] = s.ideaKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.wrapError(err)
	}

	ideas := make([]*idea.Idea, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // removed between ZRANGE and MGET
		}
		i, err := decodeIdea([]byte(str))
		if err != nil {
			return nil, err
		}
		ideas = append(ideas, i)
	}

	return idea.Select(ideas, filter), nil
}

// wrapError converts Redis errors to package errors.
func (s *IdeaStore) wrapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return errors.Join(ErrConnectionFailed, err)
}

var _ idea.Store = (*IdeaStore)(nil)
