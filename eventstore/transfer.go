package eventstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rustyeddy/ashare/pkg/errs"
)

type Participant struct {
	UserID      string  `json:"user_id"`
	Role        string  `json:"role"`
	JoinedAt    string  `json:"joined_at,omitempty"`
	PinnedAt    *string `json:"pinned_at,omitempty"`
	ArchivedAt  *string `json:"archived_at,omitempty"`
	MuteUntil   *string `json:"mute_until,omitempty"`
	LastReadSeq int64   `json:"last_read_seq"`
	LastReadAt  *string `json:"last_read_at,omitempty"`
}

// Export is the portable form of one conversation.
type Export struct {
	Conversation Conversation  `json:"conversation"`
	Participants []Participant `json:"participants"`
	Events       []Event       `json:"events"`
}

func (s *Store) Participants(ctx context.Context, convID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role, joined_at, pinned_at, archived_at, mute_until, last_read_seq, last_read_at
		FROM participants WHERE conversation_id = ? ORDER BY user_id`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Participant{}
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserID, &p.Role, &p.JoinedAt, &p.PinnedAt, &p.ArchivedAt,
			&p.MuteUntil, &p.LastReadSeq, &p.LastReadAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Export(ctx context.Context, convID string) (*Export, error) {
	conv, err := s.Meta(ctx, convID)
	if err != nil {
		return nil, err
	}
	parts, err := s.Participants(ctx, convID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events WHERE conversation_id = ? ORDER BY seq ASC`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	x := &Export{Conversation: conv, Participants: parts, Events: []Event{}}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		x.Events = append(x.Events, ev)
	}
	return x, rows.Err()
}

// Import restores an export. Events are re-appended in seq order, so
// importing the same export twice changes nothing.
func (s *Store) Import(ctx context.Context, x *Export) error {
	cid := x.Conversation.ID
	if cid == "" {
		return errs.BadData("import_conversation", "missing conversation.id")
	}
	if err := s.EnsureConversation(ctx, cid, x.Conversation.Title, x.Conversation.Type); err != nil {
		return err
	}

	for _, p := range x.Participants {
		role := p.Role
		if role == "" {
			role = RoleMember
		}
		err := s.write(ctx, "import_participant", func(tx *sql.Tx) error {
			if err := s.ensureParticipant(ctx, tx, cid, p.UserID, role); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE participants
				SET pinned_at = ?, archived_at = ?, mute_until = ?,
				    last_read_seq = max(last_read_seq, ?), last_read_at = COALESCE(?, last_read_at)
				WHERE conversation_id = ? AND user_id = ?`,
				p.PinnedAt, p.ArchivedAt, p.MuteUntil, p.LastReadSeq, p.LastReadAt, cid, s.actor(p.UserID),
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("import participant %s: %w", p.UserID, err)
		}
	}

	for i, ev := range x.Events {
		id := ev.ID
		if id == "" {
			id = fmt.Sprintf("import-%s-%d", cid, i)
		}
		typ := ev.Type
		if typ == "" {
			typ = "unknown"
		}
		if _, err := s.Append(ctx, NewEvent{
			ConversationID: cid,
			ID:             id,
			Type:           typ,
			Data:           ev.Data,
			ActorID:        ev.ActorID,
		}); err != nil {
			return fmt.Errorf("import event %s: %w", id, err)
		}
	}
	return nil
}

// Delete removes a conversation and everything hanging off it.
func (s *Store) Delete(ctx context.Context, convID string) error {
	return s.write(ctx, "delete_conversation", func(tx *sql.Tx) error {
		if s.fts {
			if _, err := tx.ExecContext(ctx, `DELETE FROM conv_messages_fts WHERE conversation_id = ?`, convID); err != nil {
				return err
			}
		}
		for _, q := range []string{
			`DELETE FROM events WHERE conversation_id = ?`,
			`DELETE FROM conv_messages WHERE conversation_id = ?`,
			`DELETE FROM participants WHERE conversation_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, convID); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, convID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

const (
	CleanupAll        = "all"
	CleanupEventsOnly = "events_only"
)

// Cleanup wipes the store. CleanupEventsOnly keeps conversations and
// participants but resets their seq and read cursors.
func (s *Store) Cleanup(ctx context.Context, mode string) error {
	var stmts []string
	switch mode {
	case CleanupAll, "":
		stmts = []string{
			`DELETE FROM events`,
			`DELETE FROM conv_messages`,
			`DELETE FROM participants`,
			`DELETE FROM conversations`,
		}
	case CleanupEventsOnly:
		stmts = []string{
			`DELETE FROM events`,
			`DELETE FROM conv_messages`,
			`UPDATE conversations SET last_seq = 0`,
			`UPDATE participants SET last_read_seq = 0`,
		}
	default:
		return errs.BadData("cleanup", "unknown mode %q (want %s or %s)", mode, CleanupAll, CleanupEventsOnly)
	}
	if s.fts {
		stmts = append(stmts, `DELETE FROM conv_messages_fts`)
	}
	return s.write(ctx, "cleanup", func(tx *sql.Tx) error {
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return err
			}
		}
		return nil
	})
}
