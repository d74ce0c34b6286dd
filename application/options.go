package application

import (
	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/infrastructure/telemetry"
)

// Option configures the idea service.
type Option func(*ServiceConfig)

// ServiceConfig contains the collaborators of an IdeaService.
type ServiceConfig struct {
	AuditLog audit.Log
	Logger   *bolt.Logger
	Metrics  telemetry.Metrics
	Tracer   trace.Tracer
}

// WithAuditLog sets the audit log that receives accepted transitions.
// If not set, the service keeps an in-memory log.
func WithAuditLog(l audit.Log) Option {
	return func(c *ServiceConfig) {
		c.AuditLog = l
	}
}

// WithLogger sets the logger. If not set, the package default is used.
func WithLogger(l *bolt.Logger) Option {
	return func(c *ServiceConfig) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(c *ServiceConfig) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer used for operation spans. If not set, the
// global tracer provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(c *ServiceConfig) {
		c.Tracer = t
	}
}
