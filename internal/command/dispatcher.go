package command

import (
	"context"
	"strings"

	"github.com/codefionn/discussd/internal/logger"
	"github.com/codefionn/discussd/internal/protocol"
)

// Dispatcher resolves requests through a Catalog and runs them.
type Dispatcher struct {
	catalog *Catalog
	deps    Deps
	log     *logger.Logger
}

// NewDispatcher creates a dispatcher. A nil catalog means DefaultCatalog.
func NewDispatcher(catalog *Catalog, deps Deps) *Dispatcher {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Dispatcher{
		catalog: catalog,
		deps:    deps,
		log:     logger.Global().WithPrefix("dispatch"),
	}
}

// Dispatch creates, validates and executes the command for req on behalf of
// peerID. Executed invocations are recorded in hist when it is non-nil.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request, peerID string, hist *History) (protocol.Response, error) {
	cmd, err := d.catalog.Create(req, peerID, d.deps)
	if err != nil {
		return protocol.Response{}, err
	}

	inv := NewInvocation(Context{RequestID: req.ID, Action: req.Action}, cmd)
	if err := inv.Validate(); err != nil {
		return protocol.Response{}, err
	}
	resp, err := inv.Execute(ctx)
	if err != nil {
		return protocol.Response{}, err
	}

	if hist != nil {
		hist.Push(inv)
	}
	return resp, nil
}

// HandleLine parses and dispatches one protocol line and returns the line to
// write back: the serialized response, or the failure message. Blank lines
// produce no output and ok is false.
func (d *Dispatcher) HandleLine(ctx context.Context, line, peerID string, hist *History) (out string, ok bool) {
	if strings.TrimSpace(line) == "" {
		return "", false
	}

	req, err := protocol.Parse(line)
	if err != nil {
		d.log.Info("%s: %v", peerID, err)
		return protocol.ErrorLine(err), true
	}

	resp, err := d.Dispatch(ctx, req, peerID, hist)
	if err != nil {
		d.log.Info("%s: %s %s failed: %v", peerID, req.ID, req.Action, err)
		return protocol.ErrorLine(err), true
	}
	d.log.Debug("%s: %s %s ok", peerID, req.ID, req.Action)
	return resp.String(), true
}

// UndoLast undoes the most recent undoable invocation in hist.
func (d *Dispatcher) UndoLast(ctx context.Context, hist *History) (*Invocation, error) {
	if hist == nil {
		return nil, ErrNothingToUndo
	}
	inv := hist.popUndoable()
	if inv == nil {
		return nil, ErrNothingToUndo
	}
	if err := inv.Undo(ctx); err != nil {
		return inv, err
	}
	d.log.Debug("undid %s %s", inv.RequestID, inv.Action)
	return inv, nil
}
