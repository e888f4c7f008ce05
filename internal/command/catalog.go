package command

import (
	"sort"

	"github.com/codefionn/discussd/internal/protocol"
)

// Factory constructs a command for one invocation.
type Factory func(cc Context, deps Deps) Command

// Entry describes one action.
type Entry struct {
	Action string
	// TextParams, when positive, splits the parameters into at most that many
	// fields so the last one keeps literal delimiters.
	TextParams int
	New        Factory
}

// Catalog maps action names to factories.
type Catalog struct {
	entries map[string]Entry
}

// NewCatalog builds a catalog. Later entries replace earlier ones with the
// same action.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		c.entries[e.Action] = e
	}
	return c
}

// DefaultCatalog returns the catalog of every built-in action.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Entry{Action: ActionSignIn, New: newSignIn},
		Entry{Action: ActionSignOut, New: newSignOut},
		Entry{Action: ActionWhoAmI, New: newWhoAmI},
		Entry{Action: ActionCreateDiscussion, TextParams: 2, New: newCreateDiscussion},
		Entry{Action: ActionCreateReply, TextParams: 2, New: newCreateReply},
		Entry{Action: ActionGetDiscussion, New: newGetDiscussion},
		Entry{Action: ActionListDiscussions, New: newListDiscussions},
	)
}

// Create binds req to the command registered for its action.
func (c *Catalog) Create(req *protocol.Request, peerID string, deps Deps) (Command, error) {
	e, ok := c.entries[req.Action]
	if !ok {
		return nil, &UnknownActionError{Action: req.Action}
	}
	cc := Context{
		RequestID: req.ID,
		Action:    req.Action,
		Params:    req.TextParams(e.TextParams),
		PeerID:    peerID,
	}
	return e.New(cc, deps), nil
}

// Actions returns the registered action names in sorted order.
func (c *Catalog) Actions() []string {
	out := make([]string, 0, len(c.entries))
	for a := range c.entries {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
