package statemachine

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/ideaflow/domain/idea"
	"github.com/felixgeelhaar/ideaflow/domain/lifecycle"
)

// TransitionPayload carries additional data with a transition event.
type TransitionPayload struct {
	ToState idea.Status
	Actor   string
	Reason  string
	AuditID int64
}

// Interpreter wraps the statekit interpreter for a single idea.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter over machine bound to ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{
		interp: interp,
		ctx:    ctx,
	}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Status = StateFromMachine(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current status.
func (i *Interpreter) State() idea.Status {
	return StateFromMachine(i.interp.State().Value)
}

// Transition moves the idea to the target status.
func (i *Interpreter) Transition(payload TransitionPayload) error {
	from := i.State()
	if !i.CanTransition(payload.ToState) {
		return &lifecycle.InvalidTransitionError{From: string(from), To: string(payload.ToState)}
	}

	i.interp.Send(statekit.Event{
		Type:    EventForTransition(payload.ToState),
		Payload: payload,
	})

	if got := i.State(); got != payload.ToState {
		return fmt.Errorf("statechart stayed in %s: %w", got,
			&lifecycle.InvalidTransitionError{From: string(from), To: string(payload.ToState)})
	}
	return nil
}

// CanTransition checks the lifecycle rules from the current state.
func (i *Interpreter) CanTransition(to idea.Status) bool {
	return idea.Lifecycle().CanTransition(i.State(), to)
}

// IsTerminal returns true once the idea reached reflection.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// Matches checks if the current state matches the given status.
func (i *Interpreter) Matches(status idea.Status) bool {
	return i.interp.Matches(statekit.StateID(status))
}

// ResumeFrom restores the interpreter to a stored status.
func (i *Interpreter) ResumeFrom(status idea.Status) error {
	if !idea.Lifecycle().IsRegistered(status) {
		return fmt.Errorf("%w: %q", idea.ErrUnknownStatus, status)
	}

	snapshot := statekit.Snapshot[*Context]{
		MachineID:    MachineID,
		CurrentState: statekit.StateID(status),
		Context:      i.ctx,
		CreatedAt:    time.Now(),
	}
	if err := i.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}

	i.ctx.Status = status
	return nil
}
