package statemachine

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/domain/idea"
)

// creationStatuses are the states an idea can be inserted in.
var creationStatuses = []idea.Status{idea.StatusDraft, idea.StatusProposed}

// Report summarizes a verified audit trail.
type Report struct {
	IdeaID string
	Start  idea.Status
	Final  idea.Status
	Steps  []Step
}

// Replayer runs audit trails through the idea statechart.
type Replayer struct {
	machine *statekit.MachineConfig[*Context]
}

// NewReplayer builds the statechart once for reuse across replays.
func NewReplayer() (*Replayer, error) {
	machine, err := NewIdeaMachine()
	if err != nil {
		return nil, fmt.Errorf("build idea statechart: %w", err)
	}
	return &Replayer{machine: machine}, nil
}

// Verify replays entries in chain order and checks that each one continues
// from the state the previous one reached, that each step is legal, and
// that the trail ends at stored. A trail with no entries is valid when
// stored is a creation status. The returned report covers the steps
// replayed before any failure. ReplayError.Index refers to the chain order.
func (r *Replayer) Verify(ideaID string, entries []audit.Entry, stored idea.Status) (*Report, error) {
	entries = chainOrder(entries)

	start := stored
	if len(entries) > 0 {
		start = idea.Status(entries[0].PreviousState)
	}

	report := &Report{IdeaID: ideaID, Start: start, Final: start}
	if !slices.Contains(creationStatuses, start) {
		return report, &ReplayError{Index: -1, Err: fmt.Errorf("%w: %q", ErrInvalidStart, start)}
	}

	ctx := NewContext(ideaID)
	interp := NewInterpreter(r.machine, ctx)
	interp.Start()
	defer interp.Stop()

	if start != idea.StatusDraft {
		if err := interp.ResumeFrom(start); err != nil {
			return report, &ReplayError{Index: -1, Err: err}
		}
	}

	for n, e := range entries {
		if current := interp.State(); idea.Status(e.PreviousState) != current {
			report.Final, report.Steps = current, ctx.Steps
			return report, &ReplayError{
				Index:   n,
				EntryID: e.ID,
				Err:     fmt.Errorf("%w: expected %q, entry has %q", ErrBrokenChain, current, e.PreviousState),
			}
		}

		err := interp.Transition(TransitionPayload{
			ToState: idea.Status(e.NewState),
			Actor:   e.UserID,
			Reason:  e.Goal,
			AuditID: e.ID,
		})
		if err != nil {
			report.Final, report.Steps = interp.State(), ctx.Steps
			return report, &ReplayError{
				Index:   n,
				EntryID: e.ID,
				Err:     fmt.Errorf("%w: %w", ErrIllegalStep, err),
			}
		}
	}

	report.Final, report.Steps = interp.State(), ctx.Steps
	if report.Final != stored {
		return report, &ReplayError{
			Index: -1,
			Err:   fmt.Errorf("%w: replayed %q, stored %q", ErrStatusMismatch, report.Final, stored),
		}
	}
	return report, nil
}

// chainOrder arranges entries so each continues from the state its
// predecessor reached. Audit entries are appended after the store commit,
// so a later transition can receive the lower ID. The chain starts at the
// entry whose previous state no entry leads to, preferring creation
// statuses. Ties go to the lower ID, and entries that do not fit the chain
// follow it in ID order so replay reports them.
func chainOrder(entries []audit.Entry) []audit.Entry {
	if len(entries) < 2 {
		return entries
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b audit.Entry) int {
		return cmp.Compare(a.ID, b.ID)
	})

	reached := make(map[string]bool, len(sorted))
	for _, e := range sorted {
		reached[e.NewState] = true
	}

	first := -1
	for n, e := range sorted {
		if reached[e.PreviousState] {
			continue
		}
		if first < 0 || (slices.Contains(creationStatuses, idea.Status(e.PreviousState)) &&
			!slices.Contains(creationStatuses, idea.Status(sorted[first].PreviousState))) {
			first = n
		}
	}
	if first < 0 {
		return sorted
	}

	used := make([]bool, len(sorted))
	ordered := make([]audit.Entry, 0, len(sorted))
	for next := first; next >= 0; {
		used[next] = true
		ordered = append(ordered, sorted[next])
		state := sorted[next].NewState
		next = -1
		for n, e := range sorted {
			if !used[n] && e.PreviousState == state {
				next = n
				break
			}
		}
	}
	for n, e := range sorted {
		if !used[n] {
			ordered = append(ordered, e)
		}
	}
	return ordered
}
