package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/protocol"
)

// Discussion actions.
const (
	ActionCreateDiscussion = "CREATE_DISCUSSION"
	ActionCreateReply      = "CREATE_REPLY"
	ActionGetDiscussion    = "GET_DISCUSSION"
	ActionListDiscussions  = "LIST_DISCUSSIONS"
)

// signedInUser resolves the user of the invoking peer.
func signedInUser(cc Context, sessions Registry) (string, error) {
	if cc.PeerID == "" {
		return "", unauthenticated("peer_id is required")
	}
	user, ok := sessions.GetUserID(cc.PeerID)
	if !ok {
		return "", unauthenticated("SIGN_IN required")
	}
	return user, nil
}

func notFound(discussionID string, err error) error {
	if errors.Is(err, discussion.ErrNotFound) {
		return fmt.Errorf("%w: %s", discussion.ErrNotFound, discussionID)
	}
	return err
}

type createDiscussion struct {
	cc   Context
	deps Deps
}

func newCreateDiscussion(cc Context, deps Deps) Command {
	return &createDiscussion{cc: cc, deps: deps}
}

func (c *createDiscussion) Validate() error {
	if len(c.cc.Params) != 2 {
		return wrongParamCount("CREATE_DISCUSSION action requires two parameters")
	}
	if !protocol.ValidReference(c.cc.Params[0]) {
		return invalidFormat("reference must be period-delimited alphanumeric")
	}
	_, err := signedInUser(c.cc, c.deps.Sessions)
	return err
}

func (c *createDiscussion) Execute(ctx context.Context) (Result, error) {
	user, err := signedInUser(c.cc, c.deps.Sessions)
	if err != nil {
		return Result{}, err
	}
	id, err := c.deps.Discussions.CreateDiscussion(ctx, c.cc.Params[0], c.cc.Params[1], user)
	if err != nil {
		return Result{}, fmt.Errorf("create discussion: %w", err)
	}
	return Result{Response: protocol.NewResponse(c.cc.RequestID, id)}, nil
}

type createReply struct {
	cc   Context
	deps Deps
}

func newCreateReply(cc Context, deps Deps) Command {
	return &createReply{cc: cc, deps: deps}
}

func (c *createReply) Validate() error {
	if len(c.cc.Params) != 2 {
		return wrongParamCount("CREATE_REPLY action requires two parameters")
	}
	_, err := signedInUser(c.cc, c.deps.Sessions)
	return err
}

func (c *createReply) Execute(ctx context.Context) (Result, error) {
	user, err := signedInUser(c.cc, c.deps.Sessions)
	if err != nil {
		return Result{}, err
	}
	id := c.cc.Params[0]
	if err := c.deps.Discussions.AddReply(ctx, id, c.cc.Params[1], user); err != nil {
		return Result{}, notFound(id, err)
	}
	return Result{Response: protocol.NewResponse(c.cc.RequestID)}, nil
}

type getDiscussion struct {
	cc   Context
	deps Deps
}

func newGetDiscussion(cc Context, deps Deps) Command {
	return &getDiscussion{cc: cc, deps: deps}
}

func (c *getDiscussion) Validate() error {
	if len(c.cc.Params) != 1 {
		return wrongParamCount("GET_DISCUSSION action requires one parameter")
	}
	return nil
}

func (c *getDiscussion) Execute(ctx context.Context) (Result, error) {
	id := c.cc.Params[0]
	d, err := c.deps.Discussions.GetDiscussion(ctx, id)
	if err != nil {
		return Result{}, notFound(id, err)
	}
	return Result{Response: protocol.DiscussionResponse(c.cc.RequestID, d)}, nil
}

type listDiscussions struct {
	cc   Context
	deps Deps
}

func newListDiscussions(cc Context, deps Deps) Command {
	return &listDiscussions{cc: cc, deps: deps}
}

func (c *listDiscussions) Validate() error {
	if len(c.cc.Params) > 1 {
		return wrongParamCount("LIST_DISCUSSIONS action requires at most one parameter")
	}
	if len(c.cc.Params) == 1 && !protocol.ValidAlphanumeric(c.cc.Params[0]) {
		return invalidFormat("reference prefix must be alphanumeric")
	}
	return nil
}

func (c *listDiscussions) Execute(ctx context.Context) (Result, error) {
	var prefix string
	if len(c.cc.Params) == 1 {
		prefix = c.cc.Params[0]
	}
	ds, err := c.deps.Discussions.ListDiscussions(ctx, prefix)
	if err != nil {
		return Result{}, fmt.Errorf("list discussions: %w", err)
	}
	return Result{Response: protocol.DiscussionListResponse(c.cc.RequestID, ds)}, nil
}
