package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the dotted path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Paths returns the path of every error, in order.
func (e ValidationErrors) Paths() []string {
	paths := make([]string, len(e))
	for i, err := range e {
		paths[i] = err.Path
	}
	return paths
}

var (
	storageBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRedis, BackendBadger, BackendMongoDB, BackendDynamoDB}
	auditBackends   = []string{AuditMemory, AuditJSONL, AuditSQLite, AuditPostgres}
	logLevels       = []string{"", "trace", "debug", "info", "warn", "warning", "error"}
	logFormats      = []string{"", "json", "console"}
	exporters       = []string{"", "stdout", "otlp", "noop"}
	journalModes    = []string{"", "DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}
)

// Validator validates application configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *AppConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateStorage(config.Storage)
	v.validateAudit(config)
	v.validateLogging(config.Logging)
	v.validateTelemetry(config.Telemetry)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) oneOf(path, value string, allowed []string) bool {
	if slices.Contains(allowed, value) {
		return true
	}
	v.addError(path, fmt.Sprintf("invalid value %q", value))
	return false
}

func (v *Validator) validateRequired(config *AppConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateStorage(s StorageConfig) {
	if s.Backend == "" {
		v.addError("storage.backend", "backend is required")
		return
	}
	if !v.oneOf("storage.backend", s.Backend, storageBackends) {
		return
	}

	switch s.Backend {
	case BackendSQLite:
		if !slices.Contains(journalModes, strings.ToUpper(s.SQLite.JournalMode)) {
			v.addError("storage.sqlite.journal_mode", fmt.Sprintf("invalid value %q", s.SQLite.JournalMode))
		}
		if s.SQLite.BusyTimeout < 0 {
			v.addError("storage.sqlite.busy_timeout", "busy_timeout must be non-negative")
		}
	case BackendPostgres:
		if s.Postgres.Port < 0 || s.Postgres.Port > 65535 {
			v.addError("storage.postgres.port", "port must be between 0 and 65535")
		}
		if s.Postgres.MaxConns < 0 {
			v.addError("storage.postgres.max_conns", "max_conns must be non-negative")
		}
	case BackendRedis:
		if s.Redis.DB < 0 {
			v.addError("storage.redis.db", "db must be non-negative")
		}
	case BackendBadger:
		if !s.Badger.InMemory && s.Badger.Dir == "" {
			v.addError("storage.badger.dir", "dir is required unless in_memory is set")
		}
	case BackendMongoDB:
		if s.MongoDB.URI == "" {
			v.addError("storage.mongodb.uri", "uri is required")
		}
	case BackendDynamoDB:
		if s.DynamoDB.Region == "" && s.DynamoDB.Endpoint == "" {
			v.addError("storage.dynamodb.region", "region or endpoint is required")
		}
		if (s.DynamoDB.AccessKeyID == "") != (s.DynamoDB.SecretAccessKey == "") {
			v.addError("storage.dynamodb.access_key_id", "access_key_id and secret_access_key must be set together")
		}
	}
}

func (v *Validator) validateAudit(config *AppConfig) {
	a := config.Audit
	if a.Backend == "" {
		v.addError("audit.backend", "backend is required")
		return
	}
	if !v.oneOf("audit.backend", a.Backend, auditBackends) {
		return
	}

	switch a.Backend {
	case AuditJSONL:
		if a.Path == "" {
			v.addError("audit.path", "path is required for the jsonl backend")
		}
	case AuditSQLite, AuditPostgres:
		if config.Storage.Backend != a.Backend {
			v.addError("audit.backend", fmt.Sprintf("%s audit log requires the %s storage backend", a.Backend, a.Backend))
		}
	}

	r := a.Resilience
	if r.FailureThreshold < 0 {
		v.addError("audit.resilience.failure_threshold", "failure_threshold must be non-negative")
	}
	if r.MaxAttempts < 0 {
		v.addError("audit.resilience.max_attempts", "max_attempts must be non-negative")
	}
	if r.OpenTimeout < 0 || r.InitialDelay < 0 || r.Timeout < 0 {
		v.addError("audit.resilience", "durations must be non-negative")
	}
}

func (v *Validator) validateLogging(l LoggingConfig) {
	v.oneOf("logging.level", strings.ToLower(l.Level), logLevels)
	v.oneOf("logging.format", l.Format, logFormats)
}

func (v *Validator) validateTelemetry(t TelemetryConfig) {
	tr := t.Tracing
	v.oneOf("telemetry.tracing.exporter", tr.Exporter, exporters)
	if tr.SampleRate < 0 || tr.SampleRate > 1 {
		v.addError("telemetry.tracing.sample_rate", "sample_rate must be between 0 and 1")
	}
	if tr.Enabled && tr.Exporter == "otlp" && tr.Endpoint == "" {
		v.addError("telemetry.tracing.endpoint", "endpoint is required for the otlp exporter")
	}

	m := t.Metrics
	v.oneOf("telemetry.metrics.exporter", m.Exporter, exporters)
	if m.Interval < 0 {
		v.addError("telemetry.metrics.interval", "interval must be non-negative")
	}
	if m.Enabled && m.Exporter == "otlp" && m.Endpoint == "" {
		v.addError("telemetry.metrics.endpoint", "endpoint is required for the otlp exporter")
	}
}
