package eventstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/ashare/pkg/errs"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	clock := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s, err := Open(filepath.Join(t.TempDir(), "session.db"), Options{
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func created(conv, id, content string) NewEvent {
	return NewEvent{
		ConversationID: conv,
		ID:             id,
		Type:           TypeMessageCreated,
		Data:           map[string]any{"message_id": id, "content": content},
	}
}

func TestAppendIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	first, err := s.Append(ctx, created("c", "e1", "x"))
	require.NoError(t, err)
	second, err := s.Append(ctx, created("c", "e1", "x"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(1), second.Seq)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	msgs, err := s.Messages(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	meta, err := s.Meta(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.LastSeq)

	if s.FTS() {
		hits, err := s.Search(ctx, "x", "", 10)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	}
}

func TestDuplicateAppendLeavesConversationAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Append(ctx, created("c", "e1", "x"))
	require.NoError(t, err)
	before, err := s.Meta(ctx, "c")
	require.NoError(t, err)

	_, err = s.Append(ctx, created("c", "e1", "x"))
	require.NoError(t, err)
	after, err := s.Meta(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, before.LastSeq, after.LastSeq)
}

func TestRecreatedMessageKeepsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Append(ctx, created("c", "m1", "x"))
	require.NoError(t, err)
	_, err = s.Append(ctx, NewEvent{
		ConversationID: "c", ID: "e2", Type: TypeMessageEdited,
		Data: map[string]any{"message_id": "m1", "content": "edited"},
	})
	require.NoError(t, err)
	_, err = s.Append(ctx, NewEvent{
		ConversationID: "c", ID: "e3", Type: TypeMessageRecalled,
		Data: map[string]any{"message_id": "m1"},
	})
	require.NoError(t, err)

	// new event id, same message id
	ev, err := s.Append(ctx, NewEvent{
		ConversationID: "c", ID: "e4", Type: TypeMessageCreated,
		Data: map[string]any{"message_id": "m1", "content": "again"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev.Seq)

	msgs, err := s.Messages(ctx, "c")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "edited", msgs[0].Content)
	assert.Equal(t, int64(1), msgs[0].SeqCreated)
	assert.NotNil(t, msgs[0].EditedAt)
	assert.NotNil(t, msgs[0].DeletedAt)

	if s.FTS() {
		hits, err := s.Search(ctx, "again", "c", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	}
}

func TestSeqDenseUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	const n = 20
	var wg sync.WaitGroup
	seqs := make([]int64, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev, err := s.Append(ctx, created("c", fmt.Sprintf("e%02d", i), "m"))
			assert.NoError(t, err)
			seqs[i] = ev.Seq
		}(i)
	}
	wg.Wait()

	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		assert.Equal(t, int64(i+1), seq)
	}

	evs, err := s.ListAfter(ctx, "c", 0, 0)
	require.NoError(t, err)
	assert.Len(t, evs, n)
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()
	s := openStore(t)

	_, err := s.Append(context.Background(), NewEvent{ConversationID: "c", Type: TypeMessageCreated})
	assert.ErrorIs(t, err, errs.ErrBadData)
}

func TestMaterialization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Append(ctx, created("c", "m1", "今天大盘怎么看，主线是哪两个行业呢？请详细说明一下"))
	require.NoError(t, err)

	meta, err := s.Meta(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []rune("今天大盘怎么看，主线是哪两个行业呢？请详细说明一下")[:24], []rune(meta.Title))

	_, err = s.Append(ctx, NewEvent{
		ConversationID: "c", ID: "e2", Type: TypeMessageEdited,
		Data: map[string]any{"message_id": "m1", "content": "edited"},
	})
	require.NoError(t, err)

	// edit of an unknown message is ignored
	_, err = s.Append(ctx, NewEvent{
		ConversationID: "c", ID: "e3", Type: TypeMessageEdited,
		Data: map[string]any{"message_id": "nope", "content": "ghost"},
	})
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, "c")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "edited", msgs[0].Content)
	assert.NotNil(t, msgs[0].EditedAt)
	assert.Nil(t, msgs[0].DeletedAt)

	_, err = s.Append(ctx, NewEvent{
		ConversationID: "c", ID: "e4", Type: TypeMessageRecalled,
		Data: map[string]any{"message_id": "m1"},
	})
	require.NoError(t, err)

	msgs, err = s.Messages(ctx, "c")
	require.NoError(t, err)
	assert.NotNil(t, msgs[0].DeletedAt)

	if s.FTS() {
		hits, err := s.Search(ctx, "edited", "c", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	}
}

func TestExplicitTitleKept(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.EnsureConversation(ctx, "c", "watchlist", ""))
	_, err := s.Append(ctx, created("c", "m1", "hello"))
	require.NoError(t, err)

	meta, err := s.Meta(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "watchlist", meta.Title)
	assert.Equal(t, "chat", meta.Type)
}

func TestListAround(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	for i := 1; i <= 30; i++ {
		_, err := s.Append(ctx, NewEvent{ConversationID: "c", ID: fmt.Sprintf("e%d", i), Type: "note"})
		require.NoError(t, err)
	}

	evs, err := s.ListAround(ctx, "c", 15, 10)
	require.NoError(t, err)
	require.Len(t, evs, 10)
	assert.Equal(t, int64(10), evs[0].Seq)
	assert.Equal(t, int64(19), evs[9].Seq)

	evs, err = s.ListAround(ctx, "c", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), evs[0].Seq)

	evs, err = s.ListAfter(ctx, "c", 28, 10)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestUpdateReadMonotone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.EnsureConversation(ctx, "c", "", ""))
	require.NoError(t, s.UpdateRead(ctx, "c", "", 5))
	require.NoError(t, s.UpdateRead(ctx, "c", "", 3))

	parts, err := s.Participants(ctx, "c")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, DefaultUser, parts[0].UserID)
	assert.Equal(t, int64(5), parts[0].LastReadSeq)
}

func TestExportImportRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src := openStore(t)

	_, err := src.Append(ctx, created("c", "m1", "first"))
	require.NoError(t, err)
	_, err = src.Append(ctx, created("c", "m2", "second"))
	require.NoError(t, err)

	x, err := src.Export(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, x.Events, 2)
	assert.Len(t, x.Participants, 1)

	dst := openStore(t)
	require.NoError(t, dst.Import(ctx, x))
	require.NoError(t, dst.Import(ctx, x))

	got, err := dst.Export(ctx, "c")
	require.NoError(t, err)
	require.Len(t, got.Events, 2)
	assert.Equal(t, "m1", got.Events[0].ID)
	assert.Equal(t, int64(2), got.Events[1].Seq)
	assert.Equal(t, x.Conversation.Title, got.Conversation.Title)

	assert.ErrorIs(t, dst.Import(ctx, &Export{}), errs.ErrBadData)
}

func TestDeleteAndCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Append(ctx, created("a", "m1", "x"))
	require.NoError(t, err)
	_, err = s.Append(ctx, created("b", "m2", "y"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "a"))
	assert.ErrorIs(t, s.Delete(ctx, "a"), ErrConversationNotFound)
	_, err = s.Meta(ctx, "a")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	msgs, err := s.Messages(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, s.Cleanup(ctx, CleanupEventsOnly))
	meta, err := s.Meta(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(0), meta.LastSeq)
	evs, err := s.ListAfter(ctx, "b", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, evs)

	require.NoError(t, s.Cleanup(ctx, CleanupAll))
	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, convs)

	assert.ErrorIs(t, s.Cleanup(ctx, "bogus"), errs.ErrBadData)
}

func TestSync(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Append(ctx, created("c", "m1", "from another device"))
	require.NoError(t, err)

	resp, appended, err := s.Sync(ctx, SyncRequest{
		Outbox: []NewEvent{
			created("c", "m2", "hi"),
			{ConversationID: "c", ID: "r1", Type: TypeReadUpdated, Data: map[string]any{"last_read_seq": float64(2)}},
			{ConversationID: "c", Type: "broken"},
		},
		Cursors: map[string]int64{"c": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "accepted:2", resp.Ack["m2"])
	assert.Equal(t, "accepted:3", resp.Ack["r1"])
	assert.Contains(t, resp.Ack[""], "error:")
	assert.Len(t, appended, 2)
	require.Len(t, resp.Deltas["c"], 2)
	assert.Equal(t, int64(2), resp.Deltas["c"][0].Seq)
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, int64(3), resp.Conversations[0].LastSeq)

	parts, err := s.Participants(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), parts[0].LastReadSeq)
}

func TestListConversationsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)

	_, err := s.Append(ctx, created("quiet", "q1", "a"))
	require.NoError(t, err)
	for i := range 3 {
		_, err := s.Append(ctx, created("busy", fmt.Sprintf("b%d", i), "b"))
		require.NoError(t, err)
	}

	convs, err := s.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "busy", convs[0].ID)
	assert.Equal(t, int64(3), convs[0].LastSeq)
}
