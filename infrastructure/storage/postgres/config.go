// Package postgres provides PostgreSQL-backed implementations of the idea
// store and the audit log.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// Host is the database server hostname.
	Host string `yaml:"host"`

	// Port is the database server port.
	Port int `yaml:"port"`

	// Database is the database name.
	Database string `yaml:"database"`

	// User is the database username.
	User string `yaml:"user"`

	// Password is the database password.
	Password string `yaml:"password"`

	// SSLMode configures SSL (disable, require, verify-ca, verify-full).
	SSLMode string `yaml:"ssl_mode"`

	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `yaml:"max_conns"`

	// MinConns is the minimum number of connections in the pool.
	MinConns int32 `yaml:"min_conns"`

	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`

	// MaxConnIdleTime is the maximum idle time for a connection.
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Schema is the schema to use for tables (defaults to "public").
	Schema string `yaml:"schema"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "ideaflow",
		User:            "postgres",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		Schema:          "public",
	}
}

// ConnectionString returns a keyword/value connection string. Values that
// are empty or contain spaces, quotes or backslashes are single-quoted.
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		quoteValue(c.Host), c.Port, quoteValue(c.Database), quoteValue(c.User),
		quoteValue(c.Password), quoteValue(c.SSLMode),
	)
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// ConfigOption configures the PostgreSQL connection.
type ConfigOption func(*Config)

// WithHost sets the database host.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithPort sets the database port.
func WithPort(port int) ConfigOption {
	return func(c *Config) {
		c.Port = port
	}
}

// WithDatabase sets the database name.
func WithDatabase(db string) ConfigOption {
	return func(c *Config) {
		c.Database = db
	}
}

// WithCredentials sets the database credentials.
func WithCredentials(user, password string) ConfigOption {
	return func(c *Config) {
		c.User = user
		c.Password = password
	}
}

// WithSSLMode sets the SSL mode.
func WithSSLMode(mode string) ConfigOption {
	return func(c *Config) {
		c.SSLMode = mode
	}
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(min, max int32) ConfigOption {
	return func(c *Config) {
		c.MinConns = min
		c.MaxConns = max
	}
}

// WithSchema sets the schema to use.
func WithSchema(schema string) ConfigOption {
	return func(c *Config) {
		c.Schema = schema
	}
}

// Errors
var (
	ErrConnectionFailed = errors.New("postgres: connection failed")
	ErrOperationTimeout = errors.New("postgres: operation timed out")
	ErrMigrationFailed  = errors.New("postgres: migration failed")
)

// NewPool creates a new connection pool with the given configuration.
func NewPool(ctx context.Context, cfg Config, opts ...ConfigOption) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	return pool, nil
}

func poolConfig(cfg Config, opts ...ConfigOption) (*pgxpool.Config, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "ideaflow"
	return poolCfg, nil
}

// Migrate creates the ideas and audit_log tables in schema if they do not
// exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if schema == "" {
		schema = "public"
	}

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.ideas (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				tags JSONB NOT NULL DEFAULT '[]',
				owner TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				version INTEGER NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_ideas_status ON %s.ideas(status)`, schema),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.audit_log (
				id BIGSERIAL PRIMARY KEY,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				previous_state TEXT NOT NULL,
				new_state TEXT NOT NULL,
				user_id TEXT NOT NULL,
				goal TEXT NOT NULL DEFAULT '',
				timestamp TIMESTAMPTZ NOT NULL
			)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_audit_entity ON %s.audit_log(entity_type, entity_id)`, schema),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Join(ErrMigrationFailed, err)
		}
	}
	return nil
}

// wrapError wraps driver errors with package errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrOperationTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}
