package lifecycle

import (
	"fmt"
	"slices"
)

// Rules maps each source state to its allowed successors, in the order
// they should be offered to callers.
//
// Every state that may be the source of a transition must appear as a key,
// terminal states included (with an empty list).
//
// Example:
//
//	rules := lifecycle.Rules[Status]{
//	    StatusDraft:    {StatusProposed},
//	    StatusProposed: {StatusExperiment},
//	    StatusDone:     {},
//	}
type Rules[S ~string] map[S][]S

// StateMachine validates transitions over a fixed graph of labeled states.
//
// Thread Safety: a StateMachine holds no mutable state after construction
// and is safe for concurrent use without synchronization.
type StateMachine[S ~string] struct {
	transitions map[S][]S
	states      []S
}

// NewStateMachine builds a state machine from rules.
//
// Construction fails if any successor is not itself registered as a key,
// if a successor is listed twice for the same state, or if any label is empty.
func NewStateMachine[S ~string](rules Rules[S]) (*StateMachine[S], error) {
	m := &StateMachine[S]{
		transitions: make(map[S][]S, len(rules)),
		states:      make([]S, 0, len(rules)),
	}

	for from, targets := range rules {
		if from == "" {
			return nil, ErrEmptyState
		}
		seen := make(map[S]bool, len(targets))
		for _, to := range targets {
			if to == "" {
				return nil, fmt.Errorf("%w: successor of %q", ErrEmptyState, from)
			}
			if seen[to] {
				return nil, fmt.Errorf("%w: %q -> %q", ErrDuplicateTransition, from, to)
			}
			seen[to] = true
			if _, ok := rules[to]; !ok {
				return nil, fmt.Errorf("%w: %q (reachable from %q)", ErrDanglingState, to, from)
			}
		}
		m.transitions[from] = slices.Clone(targets)
		m.states = append(m.states, from)
	}
	slices.Sort(m.states)

	return m, nil
}

// MustStateMachine is like NewStateMachine but panics on an invalid
// configuration. Use it for package-level static graphs.
func MustStateMachine[S ~string](rules Rules[S]) *StateMachine[S] {
	m, err := NewStateMachine(rules)
	if err != nil {
		panic(err)
	}
	return m
}

// AllowedTransitions returns the successors of current in configured order.
// The result is empty when current is terminal or not registered.
func (m *StateMachine[S]) AllowedTransitions(current S) []S {
	targets := m.transitions[current]
	if len(targets) == 0 {
		return []S{}
	}
	return slices.Clone(targets)
}

// CanTransition reports whether target is an allowed successor of current.
func (m *StateMachine[S]) CanTransition(current, target S) bool {
	return slices.Contains(m.transitions[current], target)
}

// Transition returns target if it is reachable from current in one step.
// Otherwise it returns an *InvalidTransitionError.
func (m *StateMachine[S]) Transition(current, target S) (S, error) {
	if !m.CanTransition(current, target) {
		var zero S
		return zero, &InvalidTransitionError{From: string(current), To: string(target)}
	}
	return target, nil
}

// IsRegistered reports whether s is configured as a source state.
func (m *StateMachine[S]) IsRegistered(s S) bool {
	_, ok := m.transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (m *StateMachine[S]) IsTerminal(s S) bool {
	return len(m.transitions[s]) == 0
}

// States returns every registered state in lexical order.
func (m *StateMachine[S]) States() []S {
	return slices.Clone(m.states)
}
