package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const eventColumns = `id, conversation_id, seq, type, actor_id, created_at, data`

func scanEvent(r scanner) (Event, error) {
	var (
		ev   Event
		data string
	)
	if err := r.Scan(&ev.ID, &ev.ConversationID, &ev.Seq, &ev.Type, &ev.ActorID, &ev.CreatedAt, &data); err != nil {
		return Event{}, err
	}
	ev.Data = map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &ev.Data); err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

func getEvent(ctx context.Context, q queryer, id string) (Event, error) {
	return scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	}
	return limit
}

// ListAfter pages forward: events with seq > afterSeq in seq order.
func (s *Store) ListAfter(ctx context.Context, convID string, afterSeq int64, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE conversation_id = ? AND seq > ?
		ORDER BY seq ASC LIMIT ?`,
		convID, afterSeq, clampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListAround returns up to limit events starting half a page before
// center.
func (s *Store) ListAround(ctx context.Context, convID string, center int64, limit int) ([]Event, error) {
	limit = clampLimit(limit)
	half := max(1, int64(limit/2))
	start := max(1, center-half)
	return s.ListAfter(ctx, convID, start-1, limit)
}

type Conversation struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	LastSeq   int64  `json:"last_seq"`
}

// Meta returns the conversation row, or ErrConversationNotFound.
func (s *Store) Meta(ctx context.Context, convID string) (Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, title, created_at, updated_at, last_seq
		FROM conversations WHERE id = ?`, convID,
	).Scan(&c.ID, &c.Type, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.LastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrConversationNotFound
	}
	return c, err
}

// ListConversations orders by last_seq, most active first.
func (s *Store) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, title, created_at, updated_at, last_seq
		FROM conversations ORDER BY last_seq DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Type, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.LastSeq); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SeqCreated     int64   `json:"seq_created"`
	Author         string  `json:"author"`
	Kind           string  `json:"kind"`
	Content        string  `json:"content"`
	ReplyTo        *string `json:"reply_to,omitempty"`
	EditedAt       *string `json:"edited_at,omitempty"`
	DeletedAt      *string `json:"deleted_at,omitempty"`
	Payload        *string `json:"payload,omitempty"`
}

// Messages lists the materialized messages of a conversation, recalled
// ones included.
func (s *Store) Messages(ctx context.Context, convID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, seq_created, author, kind, content, reply_to, edited_at, deleted_at, payload
		FROM conv_messages WHERE conversation_id = ? ORDER BY seq_created ASC`, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SeqCreated, &m.Author, &m.Kind,
			&m.Content, &m.ReplyTo, &m.EditedAt, &m.DeletedAt, &m.Payload); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type Hit struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
}

// Search runs a full-text query over message content and payload. It
// returns an empty result when full-text search is unavailable or the
// query does not parse.
func (s *Store) Search(ctx context.Context, q, convID string, limit int) ([]Hit, error) {
	out := []Hit{}
	if !s.fts || q == "" {
		return out, nil
	}
	query := `SELECT id, conversation_id, seq_created FROM conv_messages_fts WHERE conv_messages_fts MATCH ?`
	args := []any{q}
	if convID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, convID)
	}
	query += ` LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.log.Debug("search failed", "q", q, "err", err)
		return out, nil
	}
	defer rows.Close()
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.MessageID, &h.ConversationID, &h.Seq); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
