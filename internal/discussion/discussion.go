// Package discussion holds the discussion data model and the collaborator
// interfaces the gateway core consumes: the discussion store and the change
// stream of notification events it produces.
package discussion

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/codefionn/discussd/internal/consts"
)

var (
	// ErrNotFound is returned when a discussion id is unknown to the store.
	ErrNotFound = errors.New("discussion not found")
	// ErrStreamClosed is returned by Stream.Next once the stream or its store
	// has been closed.
	ErrStreamClosed = errors.New("change stream closed")
	// ErrStreamOpen is returned by Watch when the store already has a stream.
	ErrStreamOpen = errors.New("change stream already open")
)

// Reply is one comment attached to a discussion. Replies are immutable.
type Reply struct {
	AuthorID  string
	Comment   string
	CreatedAt time.Time
}

// Discussion is a thread about an external subject identified by Reference.
// Replies are kept in insertion order, which is also display order.
type Discussion struct {
	ID        string
	Reference string
	OwnerID   string
	Replies   []Reply
	CreatedAt time.Time
}

// Prefix returns the reference prefix of the discussion.
func (d *Discussion) Prefix() string {
	return ReferencePrefix(d.Reference)
}

// Participants returns the owner followed by every distinct reply author,
// in first-appearance order.
func (d *Discussion) Participants() []string {
	seen := map[string]bool{d.OwnerID: true}
	out := []string{d.OwnerID}
	for _, r := range d.Replies {
		if !seen[r.AuthorID] {
			seen[r.AuthorID] = true
			out = append(out, r.AuthorID)
		}
	}
	return out
}

// Event is a notification that a discussion changed, addressed to one user.
type Event struct {
	RecipientID  string
	DiscussionID string
}

// Store is the persistence collaborator for discussions.
type Store interface {
	// CreateDiscussion creates a discussion whose first reply is comment by
	// authorID, and returns the generated discussion id.
	CreateDiscussion(ctx context.Context, reference, comment, authorID string) (string, error)
	// AddReply appends a reply and emits one Event per other participant.
	// It returns ErrNotFound when the discussion does not exist.
	AddReply(ctx context.Context, discussionID, comment, authorID string) error
	// GetDiscussion returns the discussion with its ordered replies.
	GetDiscussion(ctx context.Context, discussionID string) (*Discussion, error)
	// ListDiscussions returns discussions in creation order. A non-empty
	// referencePrefix keeps only discussions whose reference prefix equals it.
	ListDiscussions(ctx context.Context, referencePrefix string) ([]*Discussion, error)
}

// Stream is a lazy, non-restartable sequence of notification insert events.
type Stream interface {
	// Next blocks until the next event is available, ctx is done, or the
	// stream fails.
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Watcher opens the change stream of a store. Only events inserted after the
// stream is opened are observed.
type Watcher interface {
	Watch(ctx context.Context) (Stream, error)
}

// ReferencePrefix returns the first dot-delimited segment of reference.
func ReferencePrefix(reference string) string {
	prefix, _, _ := strings.Cut(reference, ".")
	return prefix
}

// Recipients returns who must be notified when author replies to d:
// every participant except the author.
func Recipients(d *Discussion, authorID string) []string {
	var out []string
	for _, p := range d.Participants() {
		if p != authorID {
			out = append(out, p)
		}
	}
	return out
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz"

// NewID returns a random id of consts.RequestIDLength lowercase letters.
func NewID() (string, error) {
	var b strings.Builder
	b.Grow(consts.RequestIDLength)
	letters := big.NewInt(int64(len(idAlphabet)))
	for i := 0; i < consts.RequestIDLength; i++ {
		n, err := rand.Int(rand.Reader, letters)
		if err != nil {
			return "", err
		}
		b.WriteByte(idAlphabet[n.Int64()])
	}
	return b.String(), nil
}
