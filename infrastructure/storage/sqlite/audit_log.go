package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
)

// AuditLog is a SQLite-backed append-only audit log. Entry IDs come from
// an AUTOINCREMENT key, so they stay monotonic across restarts.
type AuditLog struct {
	db     *sql.DB
	owned  bool
	now    func() time.Time
	closed atomic.Bool
}

// NewAuditLog creates a new SQLite audit log with the given configuration.
func NewAuditLog(cfg Config, opts ...Option) (*AuditLog, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	l := &AuditLog{db: db, owned: true, now: time.Now}

	if cfg.AutoMigrate {
		if err := l.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return l, nil
}

// NewAuditLogFromDB creates an audit log sharing an existing connection,
// typically the one owned by an IdeaStore.
func NewAuditLogFromDB(db *sql.DB) (*AuditLog, error) {
	l := &AuditLog{db: db, now: time.Now}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *AuditLog) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			previous_state TEXT NOT NULL,
			new_state TEXT NOT NULL,
			user_id TEXT NOT NULL,
			goal TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
		CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
	`

	if _, err := l.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Record appends an entry.
func (l *AuditLog) Record(ctx context.Context, entry audit.Entry) (audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return audit.Entry{}, err
	}
	if l.closed.Load() {
		return audit.Entry{}, audit.ErrLogClosed
	}

	e, err := audit.Normalize(entry, l.now().UTC())
	if err != nil {
		return audit.Entry{}, err
	}

	result, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (entity_type, entity_id, previous_state, new_state, user_id, goal, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.EntityType), e.EntityID, e.PreviousState, e.NewState, e.UserID, e.Goal, toUnixNano(e.Timestamp),
	)
	if err != nil {
		return audit.Entry{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return audit.Entry{}, err
	}
	e.ID = id
	e.Timestamp = e.Timestamp.UTC()
	return e, nil
}

// Query returns entries matching the filter in ascending ID order.
func (l *AuditLog) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		conditions []string
		args       []any
	)
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.StartTime.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, toUnixNano(filter.StartTime))
	}
	if !filter.EndTime.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, toUnixNano(filter.EndTime))
	}

	query := "SELECT id, entity_type, entity_id, previous_state, new_state, user_id, goal, timestamp FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e          audit.Entry
			entityType string
			ts         int64
		)
		if err := rows.Scan(&e.ID, &entityType, &e.EntityID, &e.PreviousState, &e.NewState, &e.UserID, &e.Goal, &ts); err != nil {
			return nil, err
		}
		e.EntityType = audit.EntityType(entityType)
		e.Timestamp = fromUnixNano(ts)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close marks the log closed. A log built from a shared connection leaves
// the connection to its owner.
func (l *AuditLog) Close() error {
	if l.closed.Swap(true) || !l.owned {
		return nil
	}
	return l.db.Close()
}

var _ audit.Log = (*AuditLog)(nil)
