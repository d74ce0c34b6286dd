package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// IdeaStore is a MongoDB-backed implementation of idea.Store.
//
// Writes replace the document with a filter on both _id and version, so a
// concurrent writer that already bumped the version makes the replace
// match nothing.
type IdeaStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
	now          func() time.Time
}

// NewIdeaStore creates a new MongoDB idea store.
func NewIdeaStore(client *Client) *IdeaStore {
	name := client.config.Collection
	if name == "" {
		name = "ideas"
	}
	return newIdeaStore(client.Collection(name), client.config.QueryTimeout)
}

func newIdeaStore(collection *mongo.Collection, queryTimeout time.Duration) *IdeaStore {
	if queryTimeout <= 0 {
		queryTimeout = DefaultConfig().QueryTimeout
	}
	return &IdeaStore{
		collection:   collection,
		queryTimeout: queryTimeout,
		now:          time.Now,
	}
}

// timestamp returns the current time at BSON's millisecond precision.
func (s *IdeaStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	return s.find(ctx, id)
}

func (s *IdeaStore) find(ctx context.Context, id string) (*idea.Idea, error) {
	var doc idea.Idea
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, idea.NotFound(id)
		}
		return nil, s.wrapError(err)
	}
	normalizeTimes(&doc)
	return &doc, nil
}

// Insert assigns a fresh ID and version 1, then stores the idea.
func (s *IdeaStore) Insert(ctx context.Context, i *idea.Idea) (*idea.Idea, error) {
	if i == nil {
		return nil, idea.ErrInvalidIdea
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stored := idea.Prepare(i, uuid.NewString(), s.timestamp())
	normalizeTimes(stored)

	if _, err := s.collection.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, idea.ErrInvalidID
		}
		return nil, s.wrapError(err)
	}

	return stored, nil
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := idea.Apply(current, expected, mutate, s.timestamp())
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = next.UpdatedAt.Truncate(time.Millisecond)
	if !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt.Add(time.Millisecond)
	}

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": id, "version": expected}, next)
	if err != nil {
		return nil, s.wrapError(err)
	}
	if result.MatchedCount == 0 {
		if _, err := s.find(ctx, id); err != nil {
			return nil, err
		}
		return nil, idea.Conflict(id, expected)
	}

	return next, nil
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, s.wrapError(err)
	}
	return result.DeletedCount > 0, nil
}

// List returns ideas matching the filter.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	cursor, err := s.collection.Find(ctx, buildFilter(filter), buildFindOptions(filter))
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	ideas := make([]*idea.Idea, 0)
	for cursor.Next(ctx) {
		var doc idea.Idea
		if err := cursor.Decode(&doc); err != nil {
			return nil, s.wrapError(err)
		}
		normalizeTimes(&doc)
		ideas = append(ideas, &doc)
	}

	if err := cursor.Err(); err != nil {
		return nil, s.wrapError(err)
	}
	return ideas, nil
}

// buildFilter constructs a MongoDB filter from the domain filter.
func buildFilter(filter idea.ListFilter) bson.M {
	mongoFilter := bson.M{}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		mongoFilter["status"] = bson.M{"$in": statuses}
	}

	if filter.Owner != "" {
		mongoFilter["owner"] = filter.Owner
	}

	return mongoFilter
}

// buildFindOptions constructs MongoDB find options from the domain filter.
func buildFindOptions(filter idea.ListFilter) *options.FindOptions {
	opts := options.Find()

	sortField := "created_at"
	switch filter.OrderBy {
	case idea.OrderByUpdatedAt:
		sortField = "updated_at"
	case idea.OrderByTitle:
		sortField = "title"
	}

	sortDir := 1
	if filter.Descending {
		sortDir = -1
	}
	opts.SetSort(bson.D{{Key: sortField, Value: sortDir}, {Key: "_id", Value: sortDir}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	return opts
}

func normalizeTimes(i *idea.Idea) {
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
}

// wrapError passes context errors through and tags the rest.
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
