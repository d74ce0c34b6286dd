package audit

import (
	"context"

	domainaudit "github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/infrastructure/resilience"
)

// ResilientLog guards a persistent audit log with a timeout, a bulkhead,
// and a circuit breaker, so a failing sink fails fast instead of stalling
// every transition.
//
// Appends run exactly once: a sink can commit an entry and still report an
// error, and a retry would then store the transition twice. Only queries
// are retried.
type ResilientLog struct {
	next    domainaudit.Log
	appends *resilience.Executor[domainaudit.Entry]
	queries *resilience.Executor[[]domainaudit.Entry]
}

// NewResilientLog wraps next.
func NewResilientLog(next domainaudit.Log, config resilience.Config, opts ...resilience.Option) *ResilientLog {
	for _, opt := range opts {
		opt(&config)
	}
	once := config
	once.MaxAttempts = 1
	return &ResilientLog{
		next:    next,
		appends: resilience.NewExecutor[domainaudit.Entry](once),
		queries: resilience.NewExecutor[[]domainaudit.Entry](config),
	}
}

// Record appends the entry through the resilience chain without retrying.
// Entries that fail validation are rejected before reaching the sink and do
// not count as sink failures.
func (l *ResilientLog) Record(ctx context.Context, entry domainaudit.Entry) (domainaudit.Entry, error) {
	if _, err := domainaudit.Normalize(entry, entry.Timestamp); err != nil {
		return domainaudit.Entry{}, err
	}
	return l.appends.Execute(ctx, func(ctx context.Context) (domainaudit.Entry, error) {
		return l.next.Record(ctx, entry)
	})
}

// Query reads from the wrapped log, retrying transient failures.
func (l *ResilientLog) Query(ctx context.Context, filter domainaudit.Filter) ([]domainaudit.Entry, error) {
	return l.queries.Execute(ctx, func(ctx context.Context) ([]domainaudit.Entry, error) {
		return l.next.Query(ctx, filter)
	})
}

// CircuitState returns the append breaker's state label ("closed", "open", ...).
func (l *ResilientLog) CircuitState() string {
	return l.appends.CircuitBreakerState().String()
}

// Close closes the wrapped log.
func (l *ResilientLog) Close() error {
	return l.next.Close()
}

var _ domainaudit.Log = (*ResilientLog)(nil)
