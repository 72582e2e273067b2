// Package eventstore is an append-only, per-conversation event log on
// SQLite. Every event gets a dense sequence number within its
// conversation, and message events are materialized into a messages
// table for rendering and full-text search.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/ashare/pkg/errs"
)

// Event types with materialization side effects.
const (
	TypeMessageCreated  = "message.created"
	TypeMessageEdited   = "message.edited"
	TypeMessageRecalled = "message.recalled"
	TypeReadUpdated     = "read.updated"
)

const (
	DefaultUser = "local"

	RoleOwner  = "owner"
	RoleMember = "member"

	maxAttempts = 10
	baseBackoff = 10 * time.Millisecond
)

var ErrConversationNotFound = errors.New("conversation not found")

// writeMu serializes writers across every Store in the process. SQLite
// allows one writer per file and the seq read/insert/bump must not
// interleave.
var writeMu sync.Mutex

type Options struct {
	// User is the actor for events appended without one.
	User     string
	Location *time.Location
	Logger   *slog.Logger
	Now      func() time.Time
}

type Store struct {
	db   *sql.DB
	fts  bool
	user string
	loc  *time.Location
	now  func() time.Time
	log  *slog.Logger
}

// Open opens (or creates) the database at path in WAL mode.
func Open(path string, opt Options) (*Store, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "10000")
	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventstore: schema: %w", err)
	}

	s := &Store{
		db:   db,
		user: opt.User,
		loc:  opt.Location,
		now:  opt.Now,
		log:  opt.Logger,
	}
	if s.user == "" {
		s.user = DefaultUser
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if _, err := db.Exec(ftsSchema); err != nil {
		s.log.Info("full-text search disabled", "err", err)
	} else {
		s.fts = true
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// FTS reports whether full-text search is available.
func (s *Store) FTS() bool {
	return s.fts
}

func (s *Store) stamp() string {
	return s.now().In(s.loc).Format(time.RFC3339Nano)
}

func (s *Store) actor(id string) string {
	if id == "" {
		return s.user
	}
	return id
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// write runs fn in a transaction under the process write lock, retrying
// with exponential backoff while the database is locked.
func (s *Store) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	var err error
	for attempt := range maxAttempts {
		err = s.tx(ctx, fn)
		if !isBusy(err) {
			return err
		}
		s.log.Debug("database busy, retrying", "op", op, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(baseBackoff << attempt):
		}
	}
	return errs.Busy(op, err)
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// EnsureConversation creates the conversation if missing (title defaults
// to the id, type to "chat") and touches updated_at otherwise.
func (s *Store) EnsureConversation(ctx context.Context, id, title, typ string) error {
	return s.write(ctx, "ensure_conversation", func(tx *sql.Tx) error {
		return s.ensureConversation(ctx, tx, id, title, typ)
	})
}

// ensureConversation creates the conversation or touches its updated_at.
func (s *Store) ensureConversation(ctx context.Context, tx *sql.Tx, id, title, typ string) error {
	created, err := s.createConversation(ctx, tx, id, title, typ)
	if err != nil || created {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, s.stamp(), id)
	return err
}

// createConversation inserts the conversation if it is missing and
// reports whether it did.
func (s *Store) createConversation(ctx context.Context, tx *sql.Tx, id, title, typ string) (bool, error) {
	if id == "" {
		return false, errs.BadData("ensure_conversation", "empty conversation id")
	}
	if title == "" {
		title = id
	}
	if typ == "" {
		typ = "chat"
	}
	now := s.stamp()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, type, title, created_at, updated_at, last_seq)
		VALUES (?, ?, ?, ?, ?, 0)`,
		id, typ, title, now, now,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// EnsureParticipant adds user to the conversation with role if absent.
// An empty user means the store's default user.
func (s *Store) EnsureParticipant(ctx context.Context, convID, user, role string) error {
	return s.write(ctx, "ensure_participant", func(tx *sql.Tx) error {
		return s.ensureParticipant(ctx, tx, convID, user, role)
	})
}

func (s *Store) ensureParticipant(ctx context.Context, tx *sql.Tx, convID, user, role string) error {
	if role == "" {
		role = RoleOwner
	}
	now := s.stamp()
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO participants
		(conversation_id, user_id, role, joined_at, last_read_seq, last_read_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		convID, s.actor(user), role, now, now,
	)
	return err
}

// UpdateRead moves the user's read cursor forward. It never moves back.
func (s *Store) UpdateRead(ctx context.Context, convID, user string, lastReadSeq int64) error {
	return s.write(ctx, "update_read", func(tx *sql.Tx) error {
		if err := s.ensureParticipant(ctx, tx, convID, user, RoleOwner); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE participants SET last_read_seq = max(last_read_seq, ?), last_read_at = ?
			WHERE conversation_id = ? AND user_id = ?`,
			lastReadSeq, s.stamp(), convID, s.actor(user),
		)
		return err
	})
}
