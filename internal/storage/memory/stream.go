package memory

import (
	"context"
	"sync"

	"github.com/codefionn/discussd/internal/discussion"
)

// stream queues events without bound so that AddReply never waits on the
// consumer.
type stream struct {
	mu     sync.Mutex
	queue  []discussion.Event
	wake   chan struct{}
	closed bool
}

func newStream() *stream {
	return &stream{wake: make(chan struct{}, 1)}
}

func (s *stream) push(ev discussion.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next implements discussion.Stream.
func (s *stream) Next(ctx context.Context) (discussion.Event, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return discussion.Event{}, discussion.ErrStreamClosed
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = discussion.Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return discussion.Event{}, ctx.Err()
		case <-s.wake:
		}
	}
}

// Close implements discussion.Stream.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.queue = nil
		close(s.wake)
	}
	return nil
}
