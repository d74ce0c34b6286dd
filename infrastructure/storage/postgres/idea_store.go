package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// IdeaStore is a PostgreSQL-backed implementation of idea.Store.
//
// ApplyIfVersionMatches locks the row with SELECT ... FOR UPDATE, so racing
// writers queue on the lock and see the committed version.
type IdeaStore struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
}

// NewIdeaStore creates a new PostgreSQL idea store.
func NewIdeaStore(pool *pgxpool.Pool, schema string) *IdeaStore {
	if schema == "" {
		schema = "public"
	}
	return &IdeaStore{
		pool:   pool,
		schema: schema,
		now:    time.Now,
	}
}

// tableName returns the fully qualified table name.
func (s *IdeaStore) tableName() string {
	return fmt.Sprintf("%s.ideas", s.schema)
}

// timestamp returns the current time at the column's microsecond precision.
func (s *IdeaStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

const ideaColumns = "id, title, description, tags, owner, status, version, created_at, updated_at"

func scanIdea(row pgx.Row) (*idea.Idea, error) {
	var (
		i      idea.Idea
		tags   []byte
		status string
	)
	if err := row.Scan(&i.ID, &i.Title, &i.Description, &tags, &i.Owner, &status, &i.Version, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &i.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	i.Status = idea.Status(status)
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	return &i, nil
}

func encodeTags(tags []string) ([]byte, error) {
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(tags)
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", ideaColumns, s.tableName())

	i, err := scanIdea(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idea.NotFound(id)
		}
		return nil, wrapError(err)
	}
	return i, nil
}

// Insert assigns a fresh ID and version 1, then stores the idea.
func (s *IdeaStore) Insert(ctx context.Context, i *idea.Idea) (*idea.Idea, error) {
	if i == nil {
		return nil, idea.ErrInvalidIdea
	}

	stored := idea.Prepare(i, uuid.NewString(), s.timestamp())
	tags, err := encodeTags(stored.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.tableName(), ideaColumns)

	_, err = s.pool.Exec(ctx, query,
		stored.ID,
		stored.Title,
		stored.Description,
		tags,
		stored.Owner,
		string(stored.Status),
		stored.Version,
		stored.CreatedAt,
		stored.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, idea.ErrInvalidID
		}
		return nil, wrapError(err)
	}

	return stored, nil
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, wrapError(err)
	}
	defer tx.Rollback(ctx)

	selectQuery := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1 FOR UPDATE", ideaColumns, s.tableName())
	current, err := scanIdea(tx.QueryRow(ctx, selectQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, idea.NotFound(id)
		}
		return nil, wrapError(err)
	}

	next, err := idea.Apply(current, expected, mutate, s.timestamp())
	if err != nil {
		return nil, err
	}

	tags, err := encodeTags(next.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	updateQuery := fmt.Sprintf(`
		UPDATE %s SET
			title = $1, description = $2, tags = $3, owner = $4, status = $5,
			version = $6, updated_at = $7
		WHERE id = $8 AND version = $9
	`, s.tableName())

	tag, err := tx.Exec(ctx, updateQuery,
		next.Title,
		next.Description,
		tags,
		next.Owner,
		string(next.Status),
		next.Version,
		next.UpdatedAt,
		id,
		expected,
	)
	if err != nil {
		return nil, wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, idea.Conflict(id, expected)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapError(err)
	}

	return next, nil
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName())

	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, wrapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns ideas matching the filter.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	ideas := make([]*idea.Idea, 0)
	for rows.Next() {
		i, err := scanIdea(rows)
		if err != nil {
			return nil, wrapError(err)
		}
		ideas = append(ideas, i)
	}

	return ideas, wrapError(rows.Err())
}

// buildListQuery builds the SQL query for listing ideas.
func (s *IdeaStore) buildListQuery(filter idea.ListFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	argNum := 1

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argNum))
		args = append(args, statuses)
		argNum++
	}

	if filter.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("owner = $%d", argNum))
		args = append(args, filter.Owner)
		argNum++
	}

	query := fmt.Sprintf("SELECT %s FROM %s", ideaColumns, s.tableName())
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	orderBy := "created_at"
	switch filter.OrderBy {
	case idea.OrderByUpdatedAt:
		orderBy = "updated_at"
	case idea.OrderByTitle:
		orderBy = "title"
	}
	direction := ""
	if filter.Descending {
		direction = " DESC"
	}
	query += " ORDER BY " + orderBy + direction + ", id" + direction

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	return query, args
}

var _ idea.Store = (*IdeaStore)(nil)
