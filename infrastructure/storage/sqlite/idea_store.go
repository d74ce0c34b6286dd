package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// IdeaStore is a SQLite-backed implementation of idea.Store.
//
// Version checks are compare-and-swap updates: the row is read, the
// mutation is computed in Go, and a single UPDATE guarded by
// "version = ?" commits it. A zero row count means another writer won.
type IdeaStore struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// NewIdeaStore creates a new SQLite idea store with the given configuration.
func NewIdeaStore(cfg Config, opts ...Option) (*IdeaStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &IdeaStore{db: db, now: time.Now, newID: uuid.NewString}

	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return s, nil
}

// NewIdeaStoreFromDB creates an idea store from an existing database connection.
func NewIdeaStoreFromDB(db *sql.DB) (*IdeaStore, error) {
	s := &IdeaStore{db: db, now: time.Now, newID: uuid.NewString}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *IdeaStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ideas (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			owner TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ideas_status ON ideas(status);
		CREATE INDEX IF NOT EXISTS idx_ideas_owner ON ideas(owner);
		CREATE INDEX IF NOT EXISTS idx_ideas_created_at ON ideas(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

const ideaColumns = "id, title, description, tags, owner, status, version, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (*idea.Idea, error) {
	var (
		i                    idea.Idea
		tags, status         string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&i.ID, &i.Title, &i.Description, &tags, &i.Owner, &status, &i.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &i.Tags); err != nil {
		return nil, err
	}
	i.Status = idea.Status(status)
	i.CreatedAt = fromUnixNano(createdAt)
	i.UpdatedAt = fromUnixNano(updatedAt)
	return &i, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

// Get retrieves an idea by ID.
func (s *IdeaStore) Get(ctx context.Context, id string) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i, err := scanIdea(s.db.QueryRowContext(ctx,
		"SELECT "+ideaColumns+" FROM ideas WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, idea.NotFound(id)
	}
	return i, err
}

// Insert assigns a fresh ID and version 1, then stores the idea.
func (s *IdeaStore) Insert(ctx context.Context, i *idea.Idea) (*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i == nil {
		return nil, idea.ErrInvalidIdea
	}

	stored := idea.Prepare(i, s.newID(), s.now().UTC())
	tags, err := encodeTags(stored.Tags)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO ideas ("+ideaColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		stored.ID, stored.Title, stored.Description, tags, stored.Owner, string(stored.Status),
		stored.Version, toUnixNano(stored.CreatedAt), toUnixNano(stored.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, idea.ErrInvalidID
		}
		return nil, err
	}

	return stored, nil
}

// ApplyIfVersionMatches mutates the idea if its version equals expected.
func (s *IdeaStore) ApplyIfVersionMatches(ctx context.Context, id string, expected int, mutate idea.Mutator) (*idea.Idea, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := idea.Apply(current, expected, mutate, s.now().UTC())
	if err != nil {
		return nil, err
	}

	tags, err := encodeTags(next.Tags)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE ideas SET
			title = ?, description = ?, tags = ?, owner = ?, status = ?,
			version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		next.Title, next.Description, tags, next.Owner, string(next.Status),
		next.Version, toUnixNano(next.UpdatedAt), id, expected,
	)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, s.lostRace(ctx, id, expected)
	}

	return next, nil
}

// lostRace classifies a zero-row compare-and-swap: the row is either gone
// or carries a newer version.
func (s *IdeaStore) lostRace(ctx context.Context, id string, expected int) error {
	latest, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = idea.Apply(latest, expected, nil, s.now())
	if err == nil {
		return idea.Conflict(id, expected)
	}
	return err
}

// Remove deletes an idea and reports whether it existed.
func (s *IdeaStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM ideas WHERE id = ?", id)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// List returns ideas matching the filter.
func (s *IdeaStore) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, args := buildIdeaQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ideas := make([]*idea.Idea, 0)
	for rows.Next() {
		i, err := scanIdea(rows)
		if err != nil {
			return nil, err
		}
		ideas = append(ideas, i)
	}

	return ideas, rows.Err()
}

// buildIdeaQuery builds the SQL query for listing ideas.
func buildIdeaQuery(filter idea.ListFilter) (string, []any) {
	query := "SELECT " + ideaColumns + " FROM ideas"

	var (
		conditions []string
		args       []any
	)

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Owner != "" {
		conditions = append(conditions, "owner = ?")
		args = append(args, filter.Owner)
	}

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

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	return query, args
}

// Close closes the database connection.
func (s *IdeaStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *IdeaStore) DB() *sql.DB {
	return s.db
}

// isUniqueViolation checks if the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ idea.Store = (*IdeaStore)(nil)
