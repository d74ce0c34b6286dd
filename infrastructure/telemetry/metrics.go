// Package telemetry provides OpenTelemetry metrics and tracing for the
// idea lifecycle.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics defines the interface for lifecycle metrics recording.
type Metrics interface {
	RecordCreated(ctx context.Context, status string)
	RecordTransition(ctx context.Context, fromState, toState string)
	RecordRejectedTransition(ctx context.Context, fromState, toState string)
	RecordConflict(ctx context.Context, operation string)
	RecordAuditFailure(ctx context.Context, reason string)
	RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration)
}

// MetricsProvider records lifecycle metrics through an OpenTelemetry meter.
type MetricsProvider struct {
	meter metric.Meter

	created             metric.Int64Counter
	transitions         metric.Int64Counter
	rejectedTransitions metric.Int64Counter
	conflicts           metric.Int64Counter
	auditFailures       metric.Int64Counter
	operationDuration   metric.Float64Histogram

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// MeterProvider overrides the global meter provider.
	MeterProvider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/ideaflow",
		MeterVersion: "1.0.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		config.MeterName = DefaultMetricsConfig().MeterName
	}
	provider := config.MeterProvider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(config.MeterName, metric.WithInstrumentationVersion(config.MeterVersion)),
	}
	mp.initErr = mp.initInstruments()
	return mp
}

func (mp *MetricsProvider) initInstruments() error {
	var errs [6]error

	mp.created, errs[0] = mp.meter.Int64Counter(
		"ideaflow.idea.created",
		metric.WithDescription("Number of ideas created"),
		metric.WithUnit("{idea}"),
	)
	mp.transitions, errs[1] = mp.meter.Int64Counter(
		"ideaflow.idea.transitions",
		metric.WithDescription("Number of accepted lifecycle transitions"),
		metric.WithUnit("{transition}"),
	)
	mp.rejectedTransitions, errs[2] = mp.meter.Int64Counter(
		"ideaflow.idea.transitions.rejected",
		metric.WithDescription("Number of transitions rejected by the state machine"),
		metric.WithUnit("{transition}"),
	)
	mp.conflicts, errs[3] = mp.meter.Int64Counter(
		"ideaflow.idea.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)
	mp.auditFailures, errs[4] = mp.meter.Int64Counter(
		"ideaflow.audit.failures",
		metric.WithDescription("Number of audit entries that could not be recorded"),
		metric.WithUnit("{entry}"),
	)
	mp.operationDuration, errs[5] = mp.meter.Float64Histogram(
		"ideaflow.operation.duration",
		metric.WithDescription("Duration of lifecycle service operations"),
		metric.WithUnit("ms"),
	)

	return errors.Join(errs[:]...)
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// RecordCreated records an idea creation.
func (mp *MetricsProvider) RecordCreated(ctx context.Context, status string) {
	mp.created.Add(ctx, 1, metric.WithAttributes(attribute.String("idea.status", status)))
}

// RecordTransition records an accepted transition.
func (mp *MetricsProvider) RecordTransition(ctx context.Context, fromState, toState string) {
	mp.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state.from", fromState),
		attribute.String("state.to", toState),
	))
}

// RecordRejectedTransition records a transition the state machine refused.
func (mp *MetricsProvider) RecordRejectedTransition(ctx context.Context, fromState, toState string) {
	mp.rejectedTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state.from", fromState),
		attribute.String("state.to", toState),
	))
}

// RecordConflict records a version conflict.
func (mp *MetricsProvider) RecordConflict(ctx context.Context, operation string) {
	mp.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordAuditFailure records an audit entry that was lost.
func (mp *MetricsProvider) RecordAuditFailure(ctx context.Context, reason string) {
	mp.auditFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("error.type", reason)))
}

// RecordOperation records the duration and outcome of a service operation.
func (mp *MetricsProvider) RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	mp.operationDuration.Record(ctx, float64(duration.Microseconds())/1000.0, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// NoopMetricsProvider is a no-op metrics provider for testing or when metrics are disabled.
type NoopMetricsProvider struct{}

// RecordCreated is a no-op.
func (NoopMetricsProvider) RecordCreated(context.Context, string) {}

// RecordTransition is a no-op.
func (NoopMetricsProvider) RecordTransition(context.Context, string, string) {}

// RecordRejectedTransition is a no-op.
func (NoopMetricsProvider) RecordRejectedTransition(context.Context, string, string) {}

// RecordConflict is a no-op.
func (NoopMetricsProvider) RecordConflict(context.Context, string) {}

// RecordAuditFailure is a no-op.
func (NoopMetricsProvider) RecordAuditFailure(context.Context, string) {}

// RecordOperation is a no-op.
func (NoopMetricsProvider) RecordOperation(context.Context, string, string, time.Duration) {}

var (
	_ Metrics = (*MetricsProvider)(nil)
	_ Metrics = NoopMetricsProvider{}
)
