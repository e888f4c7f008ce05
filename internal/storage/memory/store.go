// Package memory is an in-process discussion store with its change stream.
// Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/discussd/internal/consts"
	"github.com/codefionn/discussd/internal/discussion"
)

// Store keeps discussions in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	byID   map[string]*discussion.Discussion
	order  []string
	stream *stream
	closed bool

	newID func() (string, error)
	now   func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:  make(map[string]*discussion.Discussion),
		newID: discussion.NewID,
		now:   time.Now,
	}
}

// CreateDiscussion implements discussion.Store.
func (s *Store) CreateDiscussion(_ context.Context, reference, comment, authorID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.freshID()
	if err != nil {
		return "", err
	}
	now := s.now()
	s.byID[id] = &discussion.Discussion{
		ID:        id,
		Reference: reference,
		OwnerID:   authorID,
		Replies:   []discussion.Reply{{AuthorID: authorID, Comment: comment, CreatedAt: now}},
		CreatedAt: now,
	}
	s.order = append(s.order, id)
	return id, nil
}

func (s *Store) freshID() (string, error) {
	for i := 0; i < consts.MaxIDAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("generate discussion id: %w", err)
		}
		if _, taken := s.byID[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free discussion id after %d attempts", consts.MaxIDAttempts)
}

// AddReply implements discussion.Store. The reply and its notification
// events become visible together.
func (s *Store) AddReply(_ context.Context, discussionID, comment, authorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byID[discussionID]
	if !ok {
		return discussion.ErrNotFound
	}
	recipients := discussion.Recipients(d, authorID)
	d.Replies = append(d.Replies, discussion.Reply{AuthorID: authorID, Comment: comment, CreatedAt: s.now()})

	if s.stream != nil {
		for _, r := range recipients {
			s.stream.push(discussion.Event{RecipientID: r, DiscussionID: discussionID})
		}
	}
	return nil
}

// GetDiscussion implements discussion.Store.
func (s *Store) GetDiscussion(_ context.Context, discussionID string) (*discussion.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.byID[discussionID]
	if !ok {
		return nil, discussion.ErrNotFound
	}
	return clone(d), nil
}

// ListDiscussions implements discussion.Store.
func (s *Store) ListDiscussions(_ context.Context, referencePrefix string) ([]*discussion.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*discussion.Discussion
	for _, id := range s.order {
		d := s.byID[id]
		if referencePrefix != "" && d.Prefix() != referencePrefix {
			continue
		}
		out = append(out, clone(d))
	}
	return out, nil
}

// Watch implements discussion.Watcher. A store has at most one stream.
func (s *Store) Watch(context.Context) (discussion.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, discussion.ErrStreamClosed
	}
	if s.stream != nil {
		return nil, discussion.ErrStreamOpen
	}
	s.stream = newStream()
	return s.stream, nil
}

// Close closes the store and its stream.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.stream != nil {
		s.stream.Close()
	}
	return nil
}

func clone(d *discussion.Discussion) *discussion.Discussion {
	c := *d
	c.Replies = append([]discussion.Reply(nil), d.Replies...)
	return &c
}
