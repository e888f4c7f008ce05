// Package sqlite is the durable discussion store. Replies and the
// notification events they cause are written in one transaction; the
// notifications table doubles as the change stream source.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/codefionn/discussd/internal/consts"
	"github.com/codefionn/discussd/internal/discussion"
	"github.com/codefionn/discussd/internal/logger"
)

// Options tune a Store.
type Options struct {
	// PollInterval bounds how long the change stream may miss an insert made
	// by another process when no filesystem event arrives.
	PollInterval time.Duration
}

// Store is a discussion.Store backed by a SQLite database file.
type Store struct {
	db     *sql.DB
	dbPath string
	opts   Options
	log    *logger.Logger

	mu     sync.Mutex
	stream *stream
	closed bool

	newID func() (string, error)
}

// Open opens or creates the database at dbPath and migrates its schema.
func Open(dbPath string, opts Options) (*Store, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = consts.DefaultPollInterval
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		opts:   opts,
		log:    logger.Global().WithPrefix("store"),
		newID:  discussion.NewID,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS discussions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		reference TEXT NOT NULL,
		reference_prefix TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_discussions_prefix ON discussions(reference_prefix);

	CREATE TABLE IF NOT EXISTS replies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		discussion_id TEXT NOT NULL REFERENCES discussions(id),
		author_id TEXT NOT NULL,
		comment TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_replies_discussion ON replies(discussion_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recipient_id TEXT NOT NULL,
		discussion_id TEXT NOT NULL REFERENCES discussions(id),
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the change stream, if any, and the database.
func (s *Store) Close() error {
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.closed = true
	s.mu.Unlock()

	if st != nil {
		st.Close()
	}
	return s.db.Close()
}

// CreateDiscussion implements discussion.Store.
func (s *Store) CreateDiscussion(ctx context.Context, reference, comment, authorID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	id, err := s.insertDiscussion(ctx, tx, reference, authorID, now)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO replies (discussion_id, author_id, comment, created_at) VALUES (?, ?, ?, ?)`,
		id, authorID, comment, now); err != nil {
		return "", fmt.Errorf("failed to insert reply: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit discussion: %w", err)
	}
	return id, nil
}

func (s *Store) insertDiscussion(ctx context.Context, tx *sql.Tx, reference, ownerID string, now int64) (string, error) {
	for i := 0; i < consts.MaxIDAttempts; i++ {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("generate discussion id: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO discussions (id, reference, reference_prefix, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, reference, discussion.ReferencePrefix(reference), ownerID, now)
		if err == nil {
			return id, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("failed to insert discussion: %w", err)
		}
		s.log.Debug("discussion id %s taken, retrying", id)
	}
	return "", fmt.Errorf("no free discussion id after %d attempts", consts.MaxIDAttempts)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// AddReply implements discussion.Store.
func (s *Store) AddReply(ctx context.Context, discussionID, comment, authorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d := &discussion.Discussion{ID: discussionID}
	err = tx.QueryRowContext(ctx, `SELECT owner_id FROM discussions WHERE id = ?`, discussionID).Scan(&d.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return discussion.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load discussion: %w", err)
	}
	if d.Replies, err = loadReplies(ctx, tx, discussionID); err != nil {
		return err
	}

	now := time.Now().UnixNano()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO replies (discussion_id, author_id, comment, created_at) VALUES (?, ?, ?, ?)`,
		discussionID, authorID, comment, now); err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}
	for _, recipient := range discussion.Recipients(d, authorID) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notifications (recipient_id, discussion_id, created_at) VALUES (?, ?, ?)`,
			recipient, discussionID, now); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reply: %w", err)
	}

	s.signal()
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadReplies(ctx context.Context, q querier, discussionID string) ([]discussion.Reply, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT author_id, comment, created_at FROM replies WHERE discussion_id = ? ORDER BY id`, discussionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer rows.Close()

	var replies []discussion.Reply
	for rows.Next() {
		var r discussion.Reply
		var created int64
		if err := rows.Scan(&r.AuthorID, &r.Comment, &created); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		replies = append(replies, r)
	}
	return replies, rows.Err()
}

// GetDiscussion implements discussion.Store.
func (s *Store) GetDiscussion(ctx context.Context, discussionID string) (*discussion.Discussion, error) {
	d := &discussion.Discussion{ID: discussionID}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT reference, owner_id, created_at FROM discussions WHERE id = ?`, discussionID).
		Scan(&d.Reference, &d.OwnerID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, discussion.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load discussion: %w", err)
	}
	d.CreatedAt = time.Unix(0, created)

	if d.Replies, err = loadReplies(ctx, s.db, discussionID); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDiscussions implements discussion.Store.
func (s *Store) ListDiscussions(ctx context.Context, referencePrefix string) ([]*discussion.Discussion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.reference, d.owner_id, d.created_at, r.author_id, r.comment, r.created_at
		FROM discussions d
		LEFT JOIN replies r ON r.discussion_id = d.id
		WHERE ? = '' OR d.reference_prefix = ?
		ORDER BY d.seq, r.id`, referencePrefix, referencePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query discussions: %w", err)
	}
	defer rows.Close()

	var out []*discussion.Discussion
	var cur *discussion.Discussion
	for rows.Next() {
		var (
			id, reference, owner string
			created              int64
			author, comment      sql.NullString
			replyCreated         sql.NullInt64
		)
		if err := rows.Scan(&id, &reference, &owner, &created, &author, &comment, &replyCreated); err != nil {
			return nil, fmt.Errorf("failed to scan discussion: %w", err)
		}
		if cur == nil || cur.ID != id {
			cur = &discussion.Discussion{ID: id, Reference: reference, OwnerID: owner, CreatedAt: time.Unix(0, created)}
			out = append(out, cur)
		}
		if author.Valid {
			cur.Replies = append(cur.Replies, discussion.Reply{
				AuthorID:  author.String,
				Comment:   comment.String,
				CreatedAt: time.Unix(0, replyCreated.Int64),
			})
		}
	}
	return out, rows.Err()
}

// signal wakes the stream after an in-process commit.
func (s *Store) signal() {
	s.mu.Lock()
	st := s.stream
	s.mu.Unlock()
	if st != nil {
		st.notify()
	}
}
