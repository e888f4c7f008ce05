// Package command implements the action catalog, the command set and the
// dispatcher that runs one parsed request through validate and execute.
package command

import (
	"context"
	"errors"

	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/protocol"
)

var (
	// ErrUnknownAction is matched by the error returned for an action that is
	// not in the catalog.
	ErrUnknownAction = errors.New("unknown action")

	// ErrWrongParamCount marks a request with the wrong number of parameters.
	ErrWrongParamCount = errors.New("wrong parameter count")
	// ErrInvalidFormat marks a parameter that does not match its grammar.
	ErrInvalidFormat = errors.New("invalid parameter format")
	// ErrUnauthenticated marks a request that needs a peer or a signed-in user.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotValidated is returned by Execute when Validate has not succeeded.
	ErrNotValidated = errors.New("command not validated")
	// ErrNothingToUndo is returned by Undo before execution, after a previous
	// undo, or for commands without a compensating action.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// ValidationError is a rejected request. Its message is sent to the client
// as is.
type ValidationError struct {
	Kind    error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Kind }

func wrongParamCount(msg string) error {
	return &ValidationError{Kind: ErrWrongParamCount, Message: msg}
}

func invalidFormat(msg string) error {
	return &ValidationError{Kind: ErrInvalidFormat, Message: msg}
}

func unauthenticated(msg string) error {
	return &ValidationError{Kind: ErrUnauthenticated, Message: msg}
}

// UnknownActionError reports an action missing from the catalog.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string { return "Unknown action: " + e.Action }

func (e *UnknownActionError) Is(target error) bool { return target == ErrUnknownAction }

// Registry is the part of the identity registry commands use.
type Registry interface {
	Set(peerID, userID string)
	Delete(peerID string) (string, bool)
	GetUserID(peerID string) (string, bool)
}

// Deps are the collaborators a command may reference. Identity commands only
// use Sessions; discussion commands also use Discussions.
type Deps struct {
	Sessions    Registry
	Discussions discussion.Store
}

// Context is bound to exactly one command execution.
type Context struct {
	RequestID string
	Action    string
	Params    []string
	// PeerID is empty when the invocation has no transport peer.
	PeerID string
}

// Result is what a successful execution produced. Undo, when set, reverses
// the effect using state captured during execution.
type Result struct {
	Response protocol.Response
	Undo     func(ctx context.Context) error
}

// CanUndo reports whether the result carries a compensating action.
func (r Result) CanUndo() bool { return r.Undo != nil }

// Command is one bound invocation of an action.
type Command interface {
	// Validate checks the parameters without mutating any state.
	Validate() error
	// Execute performs the action.
	Execute(ctx context.Context) (Result, error)
}
