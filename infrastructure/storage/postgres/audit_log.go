package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
)

// AuditLog is a PostgreSQL-backed append-only audit log. IDs come from a
// BIGSERIAL column.
type AuditLog struct {
	pool   *pgxpool.Pool
	schema string
	now    func() time.Time
	closed atomic.Bool
}

// NewAuditLog creates a new PostgreSQL audit log. The pool stays owned by
// the caller.
func NewAuditLog(pool *pgxpool.Pool, schema string) *AuditLog {
	if schema == "" {
		schema = "public"
	}
	return &AuditLog{pool: pool, schema: schema, now: time.Now}
}

func (l *AuditLog) tableName() string {
	return fmt.Sprintf("%s.audit_log", l.schema)
}

// Record appends an entry.
func (l *AuditLog) Record(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	if l.closed.Load() {
		return audit.Entry{}, audit.ErrLogClosed
	}

	e, err := audit.Normalize(entry, l.now().UTC())
	if err != nil {
		return audit.Entry{}, err
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)

	query := fmt.Sprintf(`
		INSERT INTO %s (entity_type, entity_id, previous_state, new_state, user_id, goal, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, l.tableName())

	err = l.pool.QueryRow(ctx, query,
		string(e.EntityType),
		e.EntityID,
		e.PreviousState,
		e.NewState,
		e.UserID,
		e.Goal,
		e.Timestamp,
	).Scan(&e.ID)
	if err != nil {
		return audit.Entry{}, wrapError(err)
	}

	return e, nil
}

// Query returns entries matching the filter in ascending ID order.
func (l *AuditLog) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query, args := l.buildQuery(filter)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e          audit.Entry
			entityType string
		)
		if err := rows.Scan(&e.ID, &entityType, &e.EntityID, &e.PreviousState, &e.NewState, &e.UserID, &e.Goal, &e.Timestamp); err != nil {
			return nil, wrapError(err)
		}
		e.EntityType = audit.EntityType(entityType)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}

	return entries, wrapError(rows.Err())
}

func (l *AuditLog) buildQuery(filter audit.Filter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.EntityType != "" {
		add("entity_type = $%d", string(filter.EntityType))
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if !filter.StartTime.IsZero() {
		add("timestamp >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("timestamp <= $%d", filter.EndTime)
	}

	query := fmt.Sprintf("SELECT id, entity_type, entity_id, previous_state, new_state, user_id, goal, timestamp FROM %s", l.tableName())
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return query, args
}

// Close marks the log closed.
func (l *AuditLog) Close() error {
	l.closed.Store(true)
	return nil
}

var _ audit.Log = (*AuditLog)(nil)
