package command

import (
	"context"
	"fmt"

	"github.com/codefionn/discussd/internal/protocol"
)

// State is the lifecycle position of an Invocation.
type State int

const (
	StateCreated State = iota
	StateValidated
	StateExecuted
	StateUndone
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateValidated:
		return "validated"
	case StateExecuted:
		return "executed"
	case StateUndone:
		return "undone"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Invocation drives a Command through Created, Validated, Executed and
// Undone, rejecting out-of-order calls.
type Invocation struct {
	Action    string
	RequestID string

	cmd    Command
	state  State
	result Result
}

// NewInvocation wraps cmd in the Created state.
func NewInvocation(cc Context, cmd Command) *Invocation {
	return &Invocation{Action: cc.Action, RequestID: cc.RequestID, cmd: cmd}
}

// State returns the current lifecycle state.
func (i *Invocation) State() State { return i.state }

// Validate validates the command. A failed validation leaves the invocation
// in Created.
func (i *Invocation) Validate() error {
	if i.state != StateCreated {
		return fmt.Errorf("validate in state %s", i.state)
	}
	if err := i.cmd.Validate(); err != nil {
		return err
	}
	i.state = StateValidated
	return nil
}

// Execute runs the command. It fails with ErrNotValidated unless Validate
// succeeded and Execute has not run yet.
func (i *Invocation) Execute(ctx context.Context) (protocol.Response, error) {
	if i.state != StateValidated {
		return protocol.Response{}, ErrNotValidated
	}
	res, err := i.cmd.Execute(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	i.result = res
	i.state = StateExecuted
	return res.Response, nil
}

// CanUndo reports whether Undo would run a compensating action.
func (i *Invocation) CanUndo() bool {
	return i.state == StateExecuted && i.result.CanUndo()
}

// Undo reverses an executed command.
func (i *Invocation) Undo(ctx context.Context) error {
	if !i.CanUndo() {
		return ErrNothingToUndo
	}
	if err := i.result.Undo(ctx); err != nil {
		return fmt.Errorf("undo %s: %w", i.Action, err)
	}
	i.state = StateUndone
	return nil
}
