// Package config provides the configuration model for ideaflow.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBadger   = "badger"
	BackendMongoDB  = "mongodb"
	BackendDynamoDB = "dynamodb"
)

// Audit backends.
const (
	AuditMemory   = "memory"
	AuditJSONL    = "jsonl"
	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Name is a human-readable name for this deployment.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	// Storage selects and configures the idea store.
	Storage StorageConfig `json:"storage" yaml:"storage"`
	// Audit selects and configures the audit log.
	Audit AuditConfig `json:"audit" yaml:"audit"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures tracing and metrics.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *AppConfig {
	return &AppConfig{
		Name:    "ideaflow",
		Version: "1.0",
		Storage: StorageConfig{Backend: BackendMemory},
		Audit:   AuditConfig{Backend: AuditMemory},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{Exporter: "noop", SampleRate: 1.0},
		},
	}
}

// StorageConfig selects the idea store backend. Only the section matching
// Backend is read.
type StorageConfig struct {
	Backend  string         `json:"backend" yaml:"backend"`
	SQLite   SQLiteConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
	Redis    RedisConfig    `json:"redis,omitempty" yaml:"redis,omitempty"`
	Badger   BadgerConfig   `json:"badger,omitempty" yaml:"badger,omitempty"`
	MongoDB  MongoDBConfig  `json:"mongodb,omitempty" yaml:"mongodb,omitempty"`
	DynamoDB DynamoDBConfig `json:"dynamodb,omitempty" yaml:"dynamodb,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// DSN is the database file or URI.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// JournalMode is the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string `json:"journal_mode,omitempty" yaml:"journal_mode,omitempty"`
	// BusyTimeout is how long a writer waits for a lock.
	BusyTimeout Duration `json:"busy_timeout,omitempty" yaml:"busy_timeout,omitempty"`
}

// PostgresConfig configures the PostgreSQL backend.
type PostgresConfig struct {
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	SSLMode  string `json:"ssl_mode,omitempty" yaml:"ssl_mode,omitempty"`
	Schema   string `json:"schema,omitempty" yaml:"schema,omitempty"`
	MaxConns int    `json:"max_conns,omitempty" yaml:"max_conns,omitempty"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Address   string `json:"address,omitempty" yaml:"address,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// BadgerConfig configures the Badger backend.
type BadgerConfig struct {
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"`
	InMemory   bool   `json:"in_memory,omitempty" yaml:"in_memory,omitempty"`
	SyncWrites bool   `json:"sync_writes,omitempty" yaml:"sync_writes,omitempty"`
	KeyPrefix  string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// MongoDBConfig configures the MongoDB backend.
type MongoDBConfig struct {
	URI        string `json:"uri,omitempty" yaml:"uri,omitempty"`
	Database   string `json:"database,omitempty" yaml:"database,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Table    string `json:"table,omitempty" yaml:"table,omitempty"`
	// CreateTable creates the table on startup if it does not exist.
	CreateTable bool `json:"create_table,omitempty" yaml:"create_table,omitempty"`
	// AccessKeyID and SecretAccessKey select static credentials; both or neither.
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
}

// AuditConfig selects the audit log backend. The sqlite and postgres
// backends share the connection settings of the storage section.
type AuditConfig struct {
	Backend string `json:"backend" yaml:"backend"`
	// Path is the JSON lines file for the jsonl backend.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Resilience guards persistent audit backends.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
}

// ResilienceConfig configures the circuit breaker and timeout around audit
// writes. Writes run once; MaxAttempts bounds history queries.
type ResilienceConfig struct {
	Enabled          bool     `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	FailureThreshold int      `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	OpenTimeout      Duration `json:"open_timeout,omitempty" yaml:"open_timeout,omitempty"`
	MaxAttempts      int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialDelay     Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	Tracing TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Exporter is stdout, otlp, or noop.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP collector address.
	Endpoint string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure bool     `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Exporter is stdout, otlp, or noop.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP collector address.
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure   bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// Duration is a time.Duration written as a string such as "5s" in both
// JSON and YAML.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
