// Package application provides the idea lifecycle service.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
	infraaudit "github.com/felixgeelhaar/ideaflow/infrastructure/audit"
	"github.com/felixgeelhaar/ideaflow/infrastructure/logging"
	"github.com/felixgeelhaar/ideaflow/infrastructure/statemachine"
	"github.com/felixgeelhaar/ideaflow/infrastructure/telemetry"
)

const tracerName = "github.com/felixgeelhaar/ideaflow/application"

// TransitionRequest asks to move an idea to Target.
type TransitionRequest struct {
	ID              string
	ExpectedVersion int
	Target          idea.Status
	Actor           string
	Reason          string
}

// IdeaService combines the idea lifecycle, the versioned store, and the
// audit log. Every mutation is guarded by the caller's expected version;
// the service never retries.
type IdeaService struct {
	store     idea.Store
	audit     audit.Log
	lifecycle *lifecycle.StateMachine[idea.Status]
	replayer  *statemachine.Replayer
	logger    *bolt.Logger
	metrics   telemetry.Metrics
	tracer    trace.Tracer
}

// NewIdeaService creates a service over store.
func NewIdeaService(store idea.Store, opts ...Option) (*IdeaService, error) {
	if store == nil {
		return nil, errors.New("idea store is required")
	}

	config := ServiceConfig{}
	for _, opt := range opts {
		opt(&config)
	}

	replayer, err := statemachine.NewReplayer()
	if err != nil {
		return nil, err
	}

	s := &IdeaService{
		store:     store,
		audit:     config.AuditLog,
		lifecycle: idea.Lifecycle(),
		replayer:  replayer,
		logger:    config.Logger,
		metrics:   config.Metrics,
		tracer:    config.Tracer,
	}

	if s.audit == nil {
		s.audit = infraaudit.NewMemoryLog()
	}
	if s.logger == nil {
		s.logger = logging.Get()
	}
	if s.metrics == nil {
		s.metrics = telemetry.NoopMetricsProvider{}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}

	return s, nil
}

// AuditLog returns the audit log transitions are recorded to.
func (s *IdeaService) AuditLog() audit.Log {
	return s.audit
}

// CreateDraft inserts a new idea in draft.
func (s *IdeaService) CreateDraft(ctx context.Context, d idea.Draft) (*idea.Idea, error) {
	return s.create(ctx, "create_draft", d, idea.StatusDraft)
}

// CreatePublished inserts a new idea directly in proposed.
func (s *IdeaService) CreatePublished(ctx context.Context, d idea.Draft) (*idea.Idea, error) {
	return s.create(ctx, "create_published", d, idea.StatusProposed)
}

func (s *IdeaService) create(ctx context.Context, op string, d idea.Draft, status idea.Status) (result *idea.Idea, err error) {
	ctx, span := s.startSpan(ctx, op, attribute.String("idea.status", string(status)))
	defer func(start time.Time) { s.finish(ctx, span, op, start, err) }(time.Now())

	i, err := idea.New(d, status)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Insert(ctx, i)
	if err != nil {
		return nil, fmt.Errorf("insert idea: %w", err)
	}

	span.SetAttributes(attribute.String("idea.id", created.ID))
	s.metrics.RecordCreated(ctx, string(created.Status))
	s.event(s.logger.Debug()).
		Add(logging.Operation(op), logging.IdeaID(created.ID), logging.Status(string(created.Status))).
		Msg("idea created")

	return created, nil
}

// UpdateContent patches the payload fields of an idea. It does not change
// the status and records no audit entry.
func (s *IdeaService) UpdateContent(ctx context.Context, id string, expectedVersion int, patch idea.Content) (result *idea.Idea, err error) {
	const op = "update_content"
	ctx, span := s.startSpan(ctx, op, attribute.String("idea.id", id))
	defer func(start time.Time) { s.finish(ctx, span, op, start, err) }(time.Now())

	if err := validateRef(id, expectedVersion); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", idea.ErrInvalidIdea)
	}

	updated, err := s.store.ApplyIfVersionMatches(ctx, id, expectedVersion, patch.Apply)
	if err != nil {
		s.logRejection(ctx, op, id, expectedVersion, err)
		return nil, err
	}

	s.event(s.logger.Debug()).
		Add(logging.Operation(op), logging.IdeaID(id), logging.Version(updated.Version)).
		Msg("idea content updated")

	return updated, nil
}

// TransitionState moves an idea to req.Target if the expected version is
// current and the lifecycle allows the step. An accepted transition is
// recorded in the audit log; a recording failure is logged and counted but
// does not undo the transition.
func (s *IdeaService) TransitionState(ctx context.Context, req TransitionRequest) (result *idea.Idea, err error) {
	const op = "transition"
	ctx, span := s.startSpan(ctx, op,
		attribute.String("idea.id", req.ID),
		attribute.String("idea.target", string(req.Target)),
		attribute.Int("idea.expected_version", req.ExpectedVersion),
	)
	defer func(start time.Time) { s.finish(ctx, span, op, start, err) }(time.Now())

	if err := validateRef(req.ID, req.ExpectedVersion); err != nil {
		return nil, err
	}

	var from idea.Status
	updated, err := s.store.ApplyIfVersionMatches(ctx, req.ID, req.ExpectedVersion, func(i *idea.Idea) error {
		from = i.Status
		next, err := s.lifecycle.Transition(i.Status, req.Target)
		if err != nil {
			return err
		}
		i.Status = next
		return nil
	})
	if err != nil {
		if lifecycle.IsInvalidTransition(err) {
			s.metrics.RecordRejectedTransition(ctx, string(from), string(req.Target))
		}
		s.logRejection(ctx, op, req.ID, req.ExpectedVersion, err)
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(from), string(updated.Status))
	s.event(s.logger.Info()).
		Add(
			logging.IdeaID(req.ID),
			logging.FromState(string(from)),
			logging.ToState(string(updated.Status)),
			logging.Version(updated.Version),
			logging.Actor(req.Actor),
		).
		Msg("idea transitioned")

	s.recordAudit(ctx, audit.Entry{
		EntityType:    audit.EntityIdea,
		EntityID:      req.ID,
		PreviousState: string(from),
		NewState:      string(updated.Status),
		UserID:        req.Actor,
		Goal:          req.Reason,
	})

	return updated, nil
}

// Publish moves a draft to proposed.
func (s *IdeaService) Publish(ctx context.Context, id string, expectedVersion int, actor string) (*idea.Idea, error) {
	return s.TransitionState(ctx, TransitionRequest{
		ID:              id,
		ExpectedVersion: expectedVersion,
		Target:          idea.StatusProposed,
		Actor:           actor,
	})
}

// Get retrieves an idea by ID.
func (s *IdeaService) Get(ctx context.Context, id string) (*idea.Idea, error) {
	if id == "" {
		return nil, idea.ErrInvalidID
	}
	return s.store.Get(ctx, id)
}

// Delete removes an idea. Its audit history is kept.
func (s *IdeaService) Delete(ctx context.Context, id string) (err error) {
	const op = "delete"
	ctx, span := s.startSpan(ctx, op, attribute.String("idea.id", id))
	defer func(start time.Time) { s.finish(ctx, span, op, start, err) }(time.Now())

	if id == "" {
		return idea.ErrInvalidID
	}

	removed, err := s.store.Remove(ctx, id)
	if err != nil {
		return fmt.Errorf("remove idea: %w", err)
	}
	if !removed {
		return idea.NotFound(id)
	}

	s.event(s.logger.Debug()).
		Add(logging.Operation(op), logging.IdeaID(id)).
		Msg("idea deleted")
	return nil
}

// List returns ideas matching the filter.
func (s *IdeaService) List(ctx context.Context, filter idea.ListFilter) ([]*idea.Idea, error) {
	for _, st := range filter.Status {
		if _, ok := idea.ParseStatus(string(st)); !ok {
			return nil, fmt.Errorf("%w: %q", idea.ErrUnknownStatus, st)
		}
	}
	return s.store.List(ctx, filter)
}

// History returns the audit entries of an idea in the order they were
// recorded.
func (s *IdeaService) History(ctx context.Context, id string) ([]audit.Entry, error) {
	if id == "" {
		return nil, idea.ErrInvalidID
	}
	return s.audit.Query(ctx, audit.Filter{
		EntityType: audit.EntityIdea,
		EntityID:   id,
	})
}

// AllowedTransitions returns the statuses the idea can move to next.
func (s *IdeaService) AllowedTransitions(ctx context.Context, id string) ([]idea.Status, error) {
	i, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.AllowedTransitions(i.Status), nil
}

// VerifyHistory replays the audit trail of an idea through the statechart
// and checks it ends at the stored status. The report is returned even when
// verification fails.
func (s *IdeaService) VerifyHistory(ctx context.Context, id string) (*statemachine.Report, error) {
	i, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	report, err := s.replayer.Verify(id, entries, i.Status)
	if err != nil {
		s.event(s.logger.Warn()).
			Add(logging.IdeaID(id), logging.Status(string(i.Status)), logging.ErrorField(err)).
			Msg("idea history failed verification")
	}
	return report, err
}

// recordAudit appends an entry. Failures are reported and swallowed.
func (s *IdeaService) recordAudit(ctx context.Context, entry audit.Entry) {
	recorded, err := s.audit.Record(ctx, entry)
	if err != nil {
		s.metrics.RecordAuditFailure(ctx, auditFailureReason(err))
		trace.SpanFromContext(ctx).AddEvent("audit record failed",
			trace.WithAttributes(attribute.String("error", err.Error())))
		s.event(s.logger.Error()).
			Add(
				logging.IdeaID(entry.EntityID),
				logging.FromState(entry.PreviousState),
				logging.ToState(entry.NewState),
				logging.ErrorField(err),
			).
			Msg("failed to record audit entry")
		return
	}

	s.event(s.logger.Debug()).
		Add(logging.IdeaID(entry.EntityID), logging.AuditID(recorded.ID)).
		Msg("audit entry recorded")
}

func auditFailureReason(err error) string {
	switch {
	case errors.Is(err, audit.ErrLogClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "error"
	}
}

func (s *IdeaService) logRejection(ctx context.Context, op, id string, expected int, err error) {
	switch {
	case lifecycle.IsConflict(err):
		s.metrics.RecordConflict(ctx, op)
		s.event(s.logger.Warn()).
			Add(logging.Operation(op), logging.IdeaID(id), logging.ExpectedVersion(expected), logging.ErrorField(err)).
			Msg("version conflict")
	case lifecycle.IsInvalidTransition(err):
		s.event(s.logger.Warn()).
			Add(logging.Operation(op), logging.IdeaID(id), logging.ErrorField(err)).
			Msg("transition rejected")
	}
}

func (s *IdeaService) event(e *bolt.Event) *logging.LogEvent {
	return logging.NewEvent(e).Add(logging.Component("idea_service"))
}

func (s *IdeaService) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "IdeaService."+op, trace.WithAttributes(attrs...))
}

func (s *IdeaService) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := Outcome(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
	s.metrics.RecordOperation(ctx, op, outcome, time.Since(start))
}

// Outcome classifies err for metrics and spans.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case lifecycle.IsConflict(err):
		return "conflict"
	case lifecycle.IsNotFound(err):
		return "not_found"
	case lifecycle.IsInvalidTransition(err):
		return "invalid_transition"
	case errors.Is(err, idea.ErrInvalidIdea), errors.Is(err, idea.ErrInvalidID),
		errors.Is(err, idea.ErrMissingVersion), errors.Is(err, idea.ErrUnknownStatus):
		return "invalid"
	default:
		return "error"
	}
}

func validateRef(id string, expectedVersion int) error {
	if id == "" {
		return idea.ErrInvalidID
	}
	if expectedVersion < 1 {
		return idea.ErrMissingVersion
	}
	return nil
}
