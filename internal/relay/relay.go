// Package relay forwards change stream events to the live peer of their
// recipient.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/logger"
	"github.com/codefionn/discussd/internal/protocol"
)

// ErrStreamClosed is returned by Run when the change stream ends.
var ErrStreamClosed = discussion.ErrStreamClosed

// Resolver finds the live peer of a user.
type Resolver interface {
	GetPeerID(userID string) (string, bool)
}

// Pusher queues an unsolicited line for a peer without blocking. It reports
// whether the line was queued.
type Pusher interface {
	Push(peerID, line string) bool
}

// Relay consumes one change stream for the lifetime of the process.
type Relay struct {
	stream   discussion.Stream
	sessions Resolver
	peers    Pusher
	log      *logger.Logger
}

// New creates a relay.
func New(stream discussion.Stream, sessions Resolver, peers Pusher) *Relay {
	return &Relay{
		stream:   stream,
		sessions: sessions,
		peers:    peers,
		log:      logger.Global().WithPrefix("relay"),
	}
}

// Run delivers events until ctx is cancelled, which returns nil, or the
// stream fails, which returns the stream error. A failure handling a single
// event is logged and skipped.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started")
	defer r.stream.Close()

	for {
		ev, err := r.stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("relay stopped")
				return nil
			}
			r.log.Error("change stream failed: %v", err)
			if errors.Is(err, ErrStreamClosed) {
				return ErrStreamClosed
			}
			return fmt.Errorf("change stream: %w", err)
		}

		if err := r.handle(ev); err != nil {
			r.log.Warn("event for %s on %s: %v", ev.RecipientID, ev.DiscussionID, err)
		}
	}
}

func (r *Relay) handle(ev discussion.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if ev.RecipientID == "" || ev.DiscussionID == "" {
		return fmt.Errorf("incomplete event %+v", ev)
	}

	peer, ok := r.sessions.GetPeerID(ev.RecipientID)
	if !ok {
		r.log.Debug("%s is offline, dropping update of %s", ev.RecipientID, ev.DiscussionID)
		return nil
	}
	if !r.peers.Push(peer, protocol.Notification(ev.DiscussionID)) {
		r.log.Info("peer %s of %s did not take update of %s", peer, ev.RecipientID, ev.DiscussionID)
		return nil
	}
	r.log.Debug("notified %s at %s about %s", ev.RecipientID, peer, ev.DiscussionID)
	return nil
}
