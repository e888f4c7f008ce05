package command

import (
	"context"

	"github.com/codefionn/discussd/internal/protocol"
)

// Identity actions.
const (
	ActionSignIn  = "SIGN_IN"
	ActionSignOut = "SIGN_OUT"
	ActionWhoAmI  = "WHOAMI"
)

type signIn struct {
	cc       Context
	sessions Registry
}

func newSignIn(cc Context, deps Deps) Command {
	return &signIn{cc: cc, sessions: deps.Sessions}
}

func (c *signIn) Validate() error {
	if len(c.cc.Params) != 1 {
		return wrongParamCount("SIGN_IN action requires exactly one parameter")
	}
	if !protocol.ValidAlphanumeric(c.cc.Params[0]) {
		return invalidFormat("user_id must be alphanumeric")
	}
	if c.cc.PeerID == "" {
		return unauthenticated("peer_id is required")
	}
	return nil
}

func (c *signIn) Execute(context.Context) (Result, error) {
	peer := c.cc.PeerID
	c.sessions.Set(peer, c.cc.Params[0])
	return Result{
		Response: protocol.NewResponse(c.cc.RequestID),
		Undo: func(context.Context) error {
			c.sessions.Delete(peer)
			return nil
		},
	}, nil
}

type signOut struct {
	cc       Context
	sessions Registry
}

func newSignOut(cc Context, deps Deps) Command {
	return &signOut{cc: cc, sessions: deps.Sessions}
}

func (c *signOut) Validate() error {
	if c.cc.PeerID == "" {
		return unauthenticated("peer_id is required")
	}
	return nil
}

func (c *signOut) Execute(context.Context) (Result, error) {
	peer := c.cc.PeerID
	res := Result{Response: protocol.NewResponse(c.cc.RequestID)}

	prev, ok := c.sessions.Delete(peer)
	if ok {
		res.Undo = func(context.Context) error {
			c.sessions.Set(peer, prev)
			return nil
		}
	}
	return res, nil
}

type whoAmI struct {
	cc       Context
	sessions Registry
}

func newWhoAmI(cc Context, deps Deps) Command {
	return &whoAmI{cc: cc, sessions: deps.Sessions}
}

func (c *whoAmI) Validate() error { return nil }

func (c *whoAmI) Execute(context.Context) (Result, error) {
	if c.cc.PeerID != "" {
		if user, ok := c.sessions.GetUserID(c.cc.PeerID); ok {
			return Result{Response: protocol.NewResponse(c.cc.RequestID, user)}, nil
		}
	}
	return Result{Response: protocol.NewResponse(c.cc.RequestID)}, nil
}
