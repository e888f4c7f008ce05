package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codefionn/discussd/internal/consts"
	"github.com/codefionn/discussd/internal/discussion"
)

// Watch implements discussion.Watcher. The stream starts after the newest
// notification present when it is opened. Inserts are noticed through an
// in-process commit signal, filesystem events on the database directory and
// a poll ticker. A store has at most one stream.
func (s *Store) Watch(ctx context.Context) (discussion.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, discussion.ErrStreamClosed
	}
	if s.stream != nil {
		return nil, discussion.ErrStreamOpen
	}

	var lastID int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM notifications`).Scan(&lastID); err != nil {
		return nil, fmt.Errorf("failed to read notification cursor: %w", err)
	}

	st := &stream{
		store:  s,
		lastID: lastID,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ticker: time.NewTicker(s.opts.PollInterval),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("failed to create file watcher, polling only: %v", err)
	} else if err := watcher.Add(filepath.Dir(s.dbPath)); err != nil {
		s.log.Warn("failed to watch %s, polling only: %v", filepath.Dir(s.dbPath), err)
		watcher.Close()
	} else {
		st.watcher = watcher
		go st.watchFiles(filepath.Base(s.dbPath))
	}

	s.stream = st
	return st, nil
}

type stream struct {
	store  *Store
	lastID int64
	buf    []discussion.Event

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	ticker    *time.Ticker
	watcher   *fsnotify.Watcher
}

func (st *stream) notify() {
	select {
	case st.wake <- struct{}{}:
	default:
	}
}

// watchFiles turns writes to the database or its WAL into wake-ups.
func (st *stream) watchFiles(base string) {
	for {
		select {
		case <-st.done:
			return
		case event, ok := <-st.watcher.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(filepath.Base(event.Name), base) && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				st.notify()
			}
		case err, ok := <-st.watcher.Errors:
			if !ok {
				return
			}
			st.store.log.Error("database watcher error: %v", err)
		}
	}
}

// Next implements discussion.Stream.
func (st *stream) Next(ctx context.Context) (discussion.Event, error) {
	for {
		if len(st.buf) > 0 {
			ev := st.buf[0]
			st.buf = st.buf[1:]
			return ev, nil
		}

		select {
		case <-st.done:
			return discussion.Event{}, discussion.ErrStreamClosed
		default:
		}

		if err := st.fetch(ctx); err != nil {
			return discussion.Event{}, err
		}
		if len(st.buf) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return discussion.Event{}, ctx.Err()
		case <-st.done:
			return discussion.Event{}, discussion.ErrStreamClosed
		case <-st.wake:
		case <-st.ticker.C:
		}
	}
}

func (st *stream) fetch(ctx context.Context) error {
	rows, err := st.store.db.QueryContext(ctx,
		`SELECT id, recipient_id, discussion_id FROM notifications WHERE id > ? ORDER BY id LIMIT ?`,
		st.lastID, consts.StreamBatchSize)
	if err != nil {
		return fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var ev discussion.Event
		if err := rows.Scan(&id, &ev.RecipientID, &ev.DiscussionID); err != nil {
			return fmt.Errorf("failed to scan notification: %w", err)
		}
		st.lastID = id
		st.buf = append(st.buf, ev)
	}
	return rows.Err()
}

// Close implements discussion.Stream.
func (st *stream) Close() error {
	var err error
	st.closeOnce.Do(func() {
		close(st.done)
		st.ticker.Stop()
		if st.watcher != nil {
			err = st.watcher.Close()
		}

		st.store.mu.Lock()
		if st.store.stream == st {
			st.store.stream = nil
		}
		st.store.mu.Unlock()
	})
	return err
}
