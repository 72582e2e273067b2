package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/rustyeddy/ashare/pkg/errs"
)

// titleRunes bounds the title derived from the first message.
const titleRunes = 24

// Event is one entry of a conversation log.
type Event struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Seq            int64          `json:"seq"`
	Type           string         `json:"type"`
	ActorID        string         `json:"actor_id"`
	CreatedAt      string         `json:"created_at"`
	Data           map[string]any `json:"data"`
}

// NewEvent is what a client appends. ID is client generated and makes
// the append idempotent.
type NewEvent struct {
	ConversationID string         `json:"conversation_id"`
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Data           map[string]any `json:"data"`
	ActorID        string         `json:"actor_id,omitempty"`
}

// Append assigns the next seq to ev and materializes message events. If
// an event with the same id already exists it is returned unchanged.
func (s *Store) Append(ctx context.Context, ev NewEvent) (Event, error) {
	if ev.ConversationID == "" || ev.ID == "" || ev.Type == "" {
		return Event{}, errs.BadData("append_event", "conversation_id, id and type are required")
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return Event{}, errs.BadData("append_event", "data: %v", err)
	}

	var out Event
	err = s.write(ctx, "append_event", func(tx *sql.Tx) error {
		// a replayed id leaves the conversation untouched
		existing, err := getEvent(ctx, tx, ev.ID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if _, err := s.createConversation(ctx, tx, ev.ConversationID, "", ""); err != nil {
			return err
		}
		if err := s.ensureParticipant(ctx, tx, ev.ConversationID, ev.ActorID, RoleOwner); err != nil {
			return err
		}
		out, err = s.insert(ctx, tx, ev, string(data))
		if err != nil {
			return err
		}
		return s.materialize(ctx, tx, out)
	})
	return out, err
}

// insert places ev at last_seq+1. A seq collision means last_seq is
// stale, so the next attempt starts after the highest stored seq.
func (s *Store) insert(ctx context.Context, tx *sql.Tx, ev NewEvent, data string) (Event, error) {
	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT last_seq FROM conversations WHERE id = ?`, ev.ConversationID,
	).Scan(&last); err != nil {
		return Event{}, err
	}

	out := Event{
		ID:             ev.ID,
		ConversationID: ev.ConversationID,
		Type:           ev.Type,
		ActorID:        s.actor(ev.ActorID),
		CreatedAt:      s.stamp(),
		Data:           ev.Data,
	}
	for range maxAttempts {
		out.Seq = last + 1
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO events (id, conversation_id, seq, type, actor_id, created_at, data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			out.ID, out.ConversationID, out.Seq, out.Type, out.ActorID, out.CreatedAt, data,
		)
		if err != nil {
			return Event{}, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			_, err = tx.ExecContext(ctx,
				`UPDATE conversations SET last_seq = ?, updated_at = ? WHERE id = ?`,
				out.Seq, out.CreatedAt, out.ConversationID,
			)
			return out, err
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM events WHERE conversation_id = ?`, ev.ConversationID,
		).Scan(&last); err != nil {
			return Event{}, err
		}
	}
	return Event{}, errs.Busy("append_event", fmt.Errorf("no free seq for %s after %d attempts", ev.ConversationID, maxAttempts))
}

func (s *Store) materialize(ctx context.Context, tx *sql.Tx, ev Event) error {
	switch ev.Type {
	case TypeMessageCreated:
		return s.messageCreated(ctx, tx, ev)
	case TypeMessageEdited:
		return s.messageEdited(ctx, tx, ev)
	case TypeMessageRecalled:
		return s.messageRecalled(ctx, tx, ev)
	}
	return nil
}

func messageID(ev Event) string {
	for _, k := range []string{"message_id", "id"} {
		if v, ok := ev.Data[k]; ok && v != nil && fmt.Sprint(v) != "" {
			return fmt.Sprint(v)
		}
	}
	return ""
}

func str(data map[string]any, key string) (string, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// payloadText is nil when the event carries no payload.
func payloadText(data map[string]any) (*string, error) {
	v, ok := data["payload"]
	if !ok || v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	p := string(b)
	return &p, nil
}

func (s *Store) messageCreated(ctx context.Context, tx *sql.Tx, ev Event) error {
	mid := messageID(ev)
	if mid == "" {
		mid = fmt.Sprintf("mid-%d", ev.Seq)
	}
	kind, _ := str(ev.Data, "kind")
	if kind == "" {
		kind = "text"
	}
	content, _ := str(ev.Data, "content")
	var replyTo *string
	if r, ok := str(ev.Data, "reply_to"); ok && r != "" {
		replyTo = &r
	}
	payload, err := payloadText(ev.Data)
	if err != nil {
		return err
	}

	// a second create for a known message id keeps the first one, edits
	// and recall included
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO conv_messages
		(id, conversation_id, seq_created, author, kind, content, reply_to, edited_at, deleted_at, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)`,
		mid, ev.ConversationID, ev.Seq, ev.ActorID, kind, content, replyTo, payload, ev.CreatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	var title string
	if err := tx.QueryRowContext(ctx,
		`SELECT title FROM conversations WHERE id = ?`, ev.ConversationID,
	).Scan(&title); err != nil {
		return err
	}
	if t := snippet(content); t != "" && (title == "" || title == ev.ConversationID) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET title = ? WHERE id = ?`, t, ev.ConversationID,
		); err != nil {
			return err
		}
	}
	return s.ftsUpsert(ctx, tx, mid, ev.ConversationID, ev.Seq, content, payload)
}

func snippet(content string) string {
	b := []byte(content)
	for n := 0; n < titleRunes && len(b) > 0; n++ {
		_, size := utf8.DecodeRune(b)
		b = b[size:]
	}
	return content[:len(content)-len(b)]
}

// messageEdited is a no-op when the target message does not exist.
func (s *Store) messageEdited(ctx context.Context, tx *sql.Tx, ev Event) error {
	mid := messageID(ev)
	if mid == "" {
		return nil
	}
	var content *string
	if c, ok := str(ev.Data, "content"); ok {
		content = &c
	}
	payload, err := payloadText(ev.Data)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE conv_messages
		SET content = COALESCE(?, content), payload = COALESCE(?, payload), edited_at = ?
		WHERE id = ?`,
		content, payload, ev.CreatedAt, mid,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	var (
		convID  string
		seq     int64
		text    string
		current sql.NullString
	)
	if err := tx.QueryRowContext(ctx,
		`SELECT conversation_id, seq_created, content, payload FROM conv_messages WHERE id = ?`, mid,
	).Scan(&convID, &seq, &text, &current); err != nil {
		return err
	}
	var p *string
	if current.Valid {
		p = &current.String
	}
	return s.ftsUpsert(ctx, tx, mid, convID, seq, text, p)
}

// messageRecalled marks the message deleted and drops it from search.
func (s *Store) messageRecalled(ctx context.Context, tx *sql.Tx, ev Event) error {
	mid := messageID(ev)
	if mid == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conv_messages SET deleted_at = ? WHERE id = ?`, ev.CreatedAt, mid,
	); err != nil {
		return err
	}
	if !s.fts {
		return nil
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM conv_messages_fts WHERE id = ?`, mid)
	return err
}

func (s *Store) ftsUpsert(ctx context.Context, tx *sql.Tx, mid, convID string, seq int64, content string, payload *string) error {
	if !s.fts {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conv_messages_fts WHERE id = ?`, mid); err != nil {
		return err
	}
	p := ""
	if payload != nil {
		p = *payload
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conv_messages_fts (id, conversation_id, seq_created, content_text, payload_text)
		VALUES (?, ?, ?, ?, ?)`,
		mid, convID, seq, content, p,
	)
	return err
}
