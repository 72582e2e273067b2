package eventstore

import (
	"context"
	"strconv"
)

// deltaLimit caps the events returned per conversation in one sync.
const deltaLimit = 200

// SyncRequest carries a client's unsent events and, per conversation,
// the last seq it has seen.
type SyncRequest struct {
	Outbox  []NewEvent       `json:"outbox_events"`
	Cursors map[string]int64 `json:"conv_cursors"`
}

type SyncResponse struct {
	// Ack maps each outbox event id to "accepted:<seq>" or "error:<msg>".
	Ack           map[string]string  `json:"ack"`
	Deltas        map[string][]Event `json:"deltas"`
	Conversations []Conversation     `json:"conversations_delta"`
}

// Sync appends the outbox and returns what each cursor has not seen.
// Appended events are returned too, so a client learns its own seqs.
// A read.updated event also moves the actor's read cursor.
func (s *Store) Sync(ctx context.Context, req SyncRequest) (*SyncResponse, []Event, error) {
	resp := &SyncResponse{
		Ack:    make(map[string]string, len(req.Outbox)),
		Deltas: make(map[string][]Event, len(req.Cursors)),
	}

	var appended []Event
	for _, ne := range req.Outbox {
		ev, err := s.Append(ctx, ne)
		if err != nil {
			if ctx.Err() != nil {
				return nil, appended, ctx.Err()
			}
			resp.Ack[ne.ID] = "error:" + err.Error()
			continue
		}
		appended = append(appended, ev)
		resp.Ack[ne.ID] = "accepted:" + strconv.FormatInt(ev.Seq, 10)

		if ne.Type == TypeReadUpdated {
			if seq := readSeq(ne.Data); seq > 0 {
				if err := s.UpdateRead(ctx, ne.ConversationID, ne.ActorID, seq); err != nil {
					s.log.Warn("update read cursor", "conversation", ne.ConversationID, "err", err)
				}
			}
		}
	}

	for cid, after := range req.Cursors {
		evs, err := s.ListAfter(ctx, cid, after, deltaLimit)
		if err != nil {
			return nil, appended, err
		}
		resp.Deltas[cid] = evs
	}

	convs, err := s.ListConversations(ctx)
	if err != nil {
		return nil, appended, err
	}
	resp.Conversations = convs
	return resp, appended, nil
}

func readSeq(data map[string]any) int64 {
	switch v := data["last_read_seq"].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
