// Package statemachine provides the statekit statechart for the idea lifecycle.
package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// MachineID identifies the idea statechart in snapshots.
const MachineID = "idea"

// Step is one transition taken by the interpreter.
type Step struct {
	From    idea.Status
	To      idea.Status
	Actor   string
	Reason  string
	AuditID int64
}

// Context carries idea state through the statechart.
type Context struct {
	IdeaID string
	Status idea.Status
	Steps  []Step
}

// NewContext creates a machine context positioned at draft.
func NewContext(ideaID string) *Context {
	return &Context{
		IdeaID: ideaID,
		Status: idea.StatusDraft,
	}
}

const (
	stateDraft      statekit.StateID = statekit.StateID(idea.StatusDraft)
	stateProposed   statekit.StateID = statekit.StateID(idea.StatusProposed)
	stateExperiment statekit.StateID = statekit.StateID(idea.StatusExperiment)
	stateOutcome    statekit.StateID = statekit.StateID(idea.StatusOutcome)
	stateReflection statekit.StateID = statekit.StateID(idea.StatusReflection)
)

// Event types accepted by the statechart.
const (
	EventPropose         statekit.EventType = "PROPOSE"
	EventStartExperiment statekit.EventType = "START_EXPERIMENT"
	EventRecordOutcome   statekit.EventType = "RECORD_OUTCOME"
	EventReflect         statekit.EventType = "REFLECT"
)

// NewIdeaMachine creates the idea statechart. Every edge is guarded by the
// domain lifecycle so the chart cannot drift from idea.Transitions.
func NewIdeaMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context](MachineID).
		WithInitial(stateDraft).
		WithContext(NewContext("")).
		WithAction("recordTransition", recordTransition).
		WithGuard("canTransition", guardCanTransition).
		State(stateDraft).
			On(EventPropose).Target(stateProposed).Guard("canTransition").Do("recordTransition").
			Done().
		State(stateProposed).
			On(EventStartExperiment).Target(stateExperiment).Guard("canTransition").Do("recordTransition").
			Done().
		State(stateExperiment).
			On(EventRecordOutcome).Target(stateOutcome).Guard("canTransition").Do("recordTransition").
			Done().
		State(stateOutcome).
			On(EventReflect).Target(stateReflection).Guard("canTransition").Do("recordTransition").
			Done().
		State(stateReflection).
			Final().
			Done().
		Build()
}

// EventForTransition returns the event that moves an idea into to.
func EventForTransition(to idea.Status) statekit.EventType {
	switch to {
	case idea.StatusProposed:
		return EventPropose
	case idea.StatusExperiment:
		return EventStartExperiment
	case idea.StatusOutcome:
		return EventRecordOutcome
	case idea.StatusReflection:
		return EventReflect
	default:
		return statekit.EventType(to)
	}
}

// stateFromEventType derives the target status from an event type.
func stateFromEventType(eventType statekit.EventType) idea.Status {
	switch eventType {
	case EventPropose:
		return idea.StatusProposed
	case EventStartExperiment:
		return idea.StatusExperiment
	case EventRecordOutcome:
		return idea.StatusOutcome
	case EventReflect:
		return idea.StatusReflection
	default:
		return idea.Status(eventType)
	}
}

// StateFromMachine converts a machine state ID to an idea status.
func StateFromMachine(stateID statekit.StateID) idea.Status {
	return idea.Status(stateID)
}

// payloadTarget reads the target status from the event.
func payloadTarget(event statekit.Event) (TransitionPayload, idea.Status) {
	if payload, ok := event.Payload.(TransitionPayload); ok && payload.ToState != "" {
		return payload, payload.ToState
	}
	return TransitionPayload{}, stateFromEventType(event.Type)
}

// guardCanTransition consults the domain lifecycle. statekit hands guards
// the context by value, which for *Context is the pointer itself.
func guardCanTransition(ctx *Context, event statekit.Event) bool {
	if ctx == nil {
		return false
	}
	_, to := payloadTarget(event)
	return idea.Lifecycle().CanTransition(ctx.Status, to)
}

// recordTransition appends the step and moves the context status.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}

	c := *ctx
	payload, to := payloadTarget(event)
	c.Steps = append(c.Steps, Step{
		From:    c.Status,
		To:      to,
		Actor:   payload.Actor,
		Reason:  payload.Reason,
		AuditID: payload.AuditID,
	})
	c.Status = to
}
