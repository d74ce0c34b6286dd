// Package api provides the public API for the ideaflow library.
package api

import (
	"github.com/felixgeelhaar/ideaflow/application"
	"github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
	"github.com/felixgeelhaar/ideaflow/infrastructure/statemachine"
	"github.com/felixgeelhaar/ideaflow/infrastructure/storage/memory"
)

// Re-export domain types.
type (
	// Idea is a lifecycle-governed record guarded by a version counter.
	Idea = idea.Idea
	// Draft is the payload used to create an idea.
	Draft = idea.Draft
	// Content is a partial update of an idea's payload fields.
	Content = idea.Content
	// Status is an idea lifecycle stage.
	Status = idea.Status
	// ListFilter selects ideas in List.
	ListFilter = idea.ListFilter
	// Store persists ideas with optimistic concurrency.
	Store = idea.Store
	// AuditEntry is one recorded transition.
	AuditEntry = audit.Entry
	// AuditLog records transitions.
	AuditLog = audit.Log

	// IdeaService runs the idea lifecycle.
	IdeaService = application.IdeaService
	// TransitionRequest asks the service to move an idea.
	TransitionRequest = application.TransitionRequest
	// ServiceOption configures an IdeaService.
	ServiceOption = application.Option
	// VerifyReport is the result of replaying an audit trail.
	VerifyReport = statemachine.Report

	// InvalidTransitionError reports a rejected transition.
	InvalidTransitionError = lifecycle.InvalidTransitionError
	// NotFoundError reports a missing idea.
	NotFoundError = lifecycle.NotFoundError
	// ConflictError reports a version mismatch.
	ConflictError = lifecycle.ConflictError
)

// Lifecycle statuses.
const (
	StatusDraft      = idea.StatusDraft
	StatusProposed   = idea.StatusProposed
	StatusExperiment = idea.StatusExperiment
	StatusOutcome    = idea.StatusOutcome
	StatusReflection = idea.StatusReflection
)

// Sentinel errors, matchable with errors.Is.
var (
	ErrNotFound          = lifecycle.ErrNotFound
	ErrConflict          = lifecycle.ErrConflict
	ErrInvalidTransition = lifecycle.ErrInvalidTransition
	ErrInvalidIdea       = idea.ErrInvalidIdea
	ErrMissingVersion    = idea.ErrMissingVersion
)

// Service options.
var (
	WithAuditLog = application.WithAuditLog
	WithLogger   = application.WithLogger
	WithMetrics  = application.WithMetrics
	WithTracer   = application.WithTracer
)

// NewIdeaService creates a lifecycle service over store.
func NewIdeaService(store Store, opts ...ServiceOption) (*IdeaService, error) {
	return application.NewIdeaService(store, opts...)
}

// NewMemoryService creates a service over an in-memory store and audit log.
func NewMemoryService(opts ...ServiceOption) (*IdeaService, error) {
	return application.NewIdeaService(memory.NewIdeaStore(), opts...)
}

// ParseStatus converts a label to a Status.
func ParseStatus(s string) (Status, bool) {
	return idea.ParseStatus(s)
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	return idea.Lifecycle().AllowedTransitions(s)
}
