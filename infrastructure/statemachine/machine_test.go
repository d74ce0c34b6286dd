package statemachine

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/ideaflow/domain/audit"
	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
)

func newStartedInterpreter(t *testing.T, id string) *Interpreter {
	t.Helper()

	machine, err := NewIdeaMachine()
	if err != nil {
		t.Fatalf("NewIdeaMachine() error = %v", err)
	}
	interp := NewInterpreter(machine, NewContext(id))
	interp.Start()
	t.Cleanup(interp.Stop)
	return interp
}

func TestNewIdeaMachine(t *testing.T) {
	t.Parallel()

	machine, err := NewIdeaMachine()
	if err != nil {
		t.Fatalf("NewIdeaMachine() error = %v", err)
	}
	if machine == nil {
		t.Fatal("NewIdeaMachine() returned nil machine")
	}
}

func TestEventForTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   idea.Status
		expected statekit.EventType
	}{
		{idea.StatusProposed, EventPropose},
		{idea.StatusExperiment, EventStartExperiment},
		{idea.StatusOutcome, EventRecordOutcome},
		{idea.StatusReflection, EventReflect},
		{idea.Status("archived"), "archived"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			if got := EventForTransition(tt.status); got != tt.expected {
				t.Errorf("EventForTransition(%s) = %s, want %s", tt.status, got, tt.expected)
			}
			if got := stateFromEventType(tt.expected); got != tt.status {
				t.Errorf("stateFromEventType(%s) = %s, want %s", tt.expected, got, tt.status)
			}
		})
	}
}

func TestInterpreter_Start(t *testing.T) {
	t.Parallel()

	interp := newStartedInterpreter(t, "idea-1")

	if got := interp.State(); got != idea.StatusDraft {
		t.Errorf("State() = %s, want draft", got)
	}
	if !interp.Matches(idea.StatusDraft) {
		t.Error("Matches(draft) = false")
	}
	if interp.IsTerminal() {
		t.Error("IsTerminal() = true at draft")
	}
	if interp.Context().IdeaID != "idea-1" {
		t.Errorf("Context().IdeaID = %s", interp.Context().IdeaID)
	}
}

func TestInterpreter_FullLifecycle(t *testing.T) {
	t.Parallel()

	interp := newStartedInterpreter(t, "idea-1")
	path := []idea.Status{
		idea.StatusProposed,
		idea.StatusExperiment,
		idea.StatusOutcome,
		idea.StatusReflection,
	}

	for n, to := range path {
		if err := interp.Transition(TransitionPayload{ToState: to, Actor: "ann", AuditID: int64(n + 1)}); err != nil {
			t.Fatalf("Transition(%s) error = %v", to, err)
		}
		if got := interp.State(); got != to {
			t.Fatalf("State() = %s, want %s", got, to)
		}
	}

	if !interp.IsTerminal() {
		t.Error("IsTerminal() = false at reflection")
	}

	steps := interp.Context().Steps
	if len(steps) != len(path) {
		t.Fatalf("recorded %d steps, want %d", len(steps), len(path))
	}
	if steps[0].From != idea.StatusDraft || steps[0].To != idea.StatusProposed || steps[0].Actor != "ann" {
		t.Errorf("steps[0] = %+v", steps[0])
	}
	if steps[3].AuditID != 4 {
		t.Errorf("steps[3].AuditID = %d, want 4", steps[3].AuditID)
	}
}

func TestInterpreter_InvalidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		to   idea.Status
	}{
		{"skip ahead", idea.StatusExperiment},
		{"self", idea.StatusDraft},
		{"terminal jump", idea.StatusReflection},
		{"unknown", idea.Status("archived")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			interp := newStartedInterpreter(t, "idea-1")
			err := interp.Transition(TransitionPayload{ToState: tt.to})

			var ite *lifecycle.InvalidTransitionError
			if !errors.As(err, &ite) {
				t.Fatalf("Transition(%s) error = %v, want *InvalidTransitionError", tt.to, err)
			}
			if ite.From != "draft" || ite.To != string(tt.to) {
				t.Errorf("error endpoints = %s -> %s", ite.From, ite.To)
			}
			if got := interp.State(); got != idea.StatusDraft {
				t.Errorf("State() = %s after rejection, want draft", got)
			}
			if len(interp.Context().Steps) != 0 {
				t.Errorf("rejected transition recorded %d steps", len(interp.Context().Steps))
			}
		})
	}
}

func TestInterpreter_CanTransition(t *testing.T) {
	t.Parallel()

	interp := newStartedInterpreter(t, "idea-1")

	if !interp.CanTransition(idea.StatusProposed) {
		t.Error("CanTransition(proposed) = false from draft")
	}
	if interp.CanTransition(idea.StatusOutcome) {
		t.Error("CanTransition(outcome) = true from draft")
	}
}

func TestInterpreter_ResumeFrom(t *testing.T) {
	t.Parallel()

	interp := newStartedInterpreter(t, "idea-1")

	if err := interp.ResumeFrom(idea.StatusExperiment); err != nil {
		t.Fatalf("ResumeFrom() error = %v", err)
	}
	if got := interp.State(); got != idea.StatusExperiment {
		t.Fatalf("State() = %s, want experiment", got)
	}
	if err := interp.Transition(TransitionPayload{ToState: idea.StatusOutcome}); err != nil {
		t.Errorf("Transition(outcome) after resume error = %v", err)
	}

	if err := interp.ResumeFrom("archived"); !errors.Is(err, idea.ErrUnknownStatus) {
		t.Errorf("ResumeFrom(archived) error = %v, want ErrUnknownStatus", err)
	}
}

func TestGuardCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ctx   *Context
		event statekit.Event
		want  bool
	}{
		{"nil context", nil, statekit.Event{Type: EventPropose}, false},
		{"payload target", &Context{Status: idea.StatusDraft}, statekit.Event{Type: EventPropose, Payload: TransitionPayload{ToState: idea.StatusProposed}}, true},
		{"event type target", &Context{Status: idea.StatusOutcome}, statekit.Event{Type: EventReflect}, true},
		{"illegal", &Context{Status: idea.StatusDraft}, statekit.Event{Type: EventReflect}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := guardCanTransition(tt.ctx, tt.event); got != tt.want {
				t.Errorf("guardCanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordTransition_NilContext(t *testing.T) {
	t.Parallel()

	recordTransition(nil, statekit.Event{Type: EventPropose})
	var c *Context
	recordTransition(&c, statekit.Event{Type: EventPropose})
}

func entry(id int64, from, to idea.Status) audit.Entry {
	return audit.Entry{
		ID:            id,
		EntityType:    audit.EntityIdea,
		EntityID:      "idea-1",
		PreviousState: string(from),
		NewState:      string(to),
		UserID:        "ann",
	}
}

func TestReplayer_Verify(t *testing.T) {
	t.Parallel()

	full := []audit.Entry{
		entry(1, idea.StatusDraft, idea.StatusProposed),
		entry(2, idea.StatusProposed, idea.StatusExperiment),
		entry(3, idea.StatusExperiment, idea.StatusOutcome),
		entry(4, idea.StatusOutcome, idea.StatusReflection),
	}

	tests := []struct {
		name      string
		entries   []audit.Entry
		stored    idea.Status
		wantErr   error
		wantIndex int
		wantFinal idea.Status
		wantSteps int
	}{
		{"full path", full, idea.StatusReflection, nil, 0, idea.StatusReflection, 4},
		{"empty draft", nil, idea.StatusDraft, nil, 0, idea.StatusDraft, 0},
		{"empty published", nil, idea.StatusProposed, nil, 0, idea.StatusProposed, 0},
		{"published start", full[1:3], idea.StatusOutcome, nil, 0, idea.StatusOutcome, 2},
		{"empty but advanced", nil, idea.StatusOutcome, ErrInvalidStart, -1, idea.StatusOutcome, 0},
		{"starts mid chain", full[2:], idea.StatusReflection, ErrInvalidStart, -1, idea.StatusExperiment, 0},
		{"gap", []audit.Entry{full[0], full[2]}, idea.StatusOutcome, ErrBrokenChain, 1, idea.StatusProposed, 1},
		{"illegal skip", []audit.Entry{entry(1, idea.StatusDraft, idea.StatusOutcome)}, idea.StatusOutcome, ErrIllegalStep, 0, idea.StatusDraft, 0},
		{"stale status", full[:2], idea.StatusProposed, ErrStatusMismatch, -1, idea.StatusExperiment, 2},
		{"recorded out of order", []audit.Entry{entry(1, idea.StatusProposed, idea.StatusExperiment), entry(2, idea.StatusDraft, idea.StatusProposed)}, idea.StatusExperiment, nil, 0, idea.StatusExperiment, 2},
		{"shuffled full path", []audit.Entry{full[2], full[0], full[3], full[1]}, idea.StatusReflection, nil, 0, idea.StatusReflection, 4},
		{"duplicate step", []audit.Entry{full[0], full[1], entry(5, idea.StatusDraft, idea.StatusProposed)}, idea.StatusExperiment, ErrBrokenChain, 2, idea.StatusExperiment, 2},
	}

	replayer, err := NewReplayer()
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report, err := replayer.Verify("idea-1", tt.entries, tt.stored)
			if report == nil {
				t.Fatal("Verify() returned nil report")
			}
			if report.Final != tt.wantFinal {
				t.Errorf("Final = %s, want %s", report.Final, tt.wantFinal)
			}
			if len(report.Steps) != tt.wantSteps {
				t.Errorf("Steps = %d, want %d", len(report.Steps), tt.wantSteps)
			}

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Verify() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
			}
			var re *ReplayError
			if !errors.As(err, &re) {
				t.Fatalf("Verify() error = %T, want *ReplayError", err)
			}
			if re.Index != tt.wantIndex {
				t.Errorf("Index = %d, want %d", re.Index, tt.wantIndex)
			}
		})
	}
}

func TestReplayer_IllegalStepWrapsTransitionError(t *testing.T) {
	t.Parallel()

	replayer, err := NewReplayer()
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}

	_, err = replayer.Verify("idea-1", []audit.Entry{entry(7, idea.StatusDraft, idea.StatusReflection)}, idea.StatusReflection)
	if !lifecycle.IsInvalidTransition(err) {
		t.Errorf("Verify() error = %v, want invalid transition", err)
	}
	var re *ReplayError
	if errors.As(err, &re) && re.EntryID != 7 {
		t.Errorf("EntryID = %d, want 7", re.EntryID)
	}
}
