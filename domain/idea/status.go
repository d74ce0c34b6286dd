// Package idea provides the Idea entity, its lifecycle, and the versioned
// store contract.
package idea

import "github.com/felixgeelhaar/ideaflow/domain/lifecycle"

// Status represents the lifecycle stage of an idea.
type Status string

const (
	// StatusDraft is the initial state for unpublished ideas.
	StatusDraft Status = "draft"

	// StatusProposed indicates the idea has been published for discussion.
	StatusProposed Status = "proposed"

	// StatusExperiment indicates an experiment is running for the idea.
	StatusExperiment Status = "experiment"

	// StatusOutcome indicates the experiment produced an outcome.
	StatusOutcome Status = "outcome"

	// StatusReflection is the terminal state where learnings are captured.
	StatusReflection Status = "reflection"
)

// Transitions is the idea lifecycle: a linear chain with no branching,
// no cycles, and reflection as the only terminal state.
var Transitions = lifecycle.Rules[Status]{
	StatusDraft:      {StatusProposed},
	StatusProposed:   {StatusExperiment},
	StatusExperiment: {StatusOutcome},
	StatusOutcome:    {StatusReflection},
	StatusReflection: {},
}

var defaultLifecycle = lifecycle.MustStateMachine(Transitions)

// Lifecycle returns the shared idea state machine.
func Lifecycle() *lifecycle.StateMachine[Status] {
	return defaultLifecycle
}

// ParseStatus converts s into a known Status.
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, defaultLifecycle.IsRegistered(st)
}

// IsTerminal returns true if the status has no successors.
func (s Status) IsTerminal() bool {
	return defaultLifecycle.IsTerminal(s)
}

// String returns the status label.
func (s Status) String() string {
	return string(s)
}
