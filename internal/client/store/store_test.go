package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/loop"
	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

func (r *recorder) JoinChat(chatID string) { r.calls = append(r.calls, "join_chat:"+chatID) }

func (r *recorder) AckDelivered(chatID, messageID string) {
	r.calls = append(r.calls, "ack_delivered:"+chatID+":"+messageID)
}

func (r *recorder) AckRead(chatID, messageID string) {
	r.calls = append(r.calls, "ack_read:"+chatID+":"+messageID)
}

func (r *recorder) AckDeliveredAll(chatID string) {
	r.calls = append(r.calls, "ack_delivered_all:"+chatID)
}

func (r *recorder) AckReadAll(chatID string) { r.calls = append(r.calls, "ack_read_all:"+chatID) }

func (r *recorder) count(call string) int {
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type sentRequest struct {
	chatID, clientID, text string
}

type fakeSender struct {
	err  error
	sent []sentRequest
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, clientID, text string, _ models.MessageType) error {
	f.sent = append(f.sent, sentRequest{chatID, clientID, text})
	return f.err
}

type fixture struct {
	m      *loop.Manual
	cmds   *recorder
	sender *fakeSender
	store  *Store
	hook   *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	f := &fixture{
		m:      loop.NewManual(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		cmds:   &recorder{},
		sender: &fakeSender{},
		hook:   hook,
	}
	n := 0
	f.store = New(Options{
		Loop:     f.m,
		Commands: f.cmds,
		Sender:   f.sender,
		NewID: func() string {
			n++
			return fmt.Sprintf("c_%d", n)
		},
		Now:    f.m.Now,
		Logger: logger,
	})
	return f
}

// authed seeds two conversations and authenticates as "me".
func (f *fixture) authed() {
	f.store.Seed([]models.Conversation{
		{ID: "conv1", Type: models.Direct, Members: []string{"me", "bob"}},
		{ID: "conv2", Type: models.Group, Members: []string{"me", "bob", "eve"}},
	})
	f.store.Handle(protocol.AuthOK{UserID: "me"})
	f.cmds.calls = nil
}

func (f *fixture) confirmed(id, chatID, sender, text string) protocol.MessageSent {
	return protocol.MessageSent{
		ID:        protocol.ID(id),
		ChatID:    protocol.ID(chatID),
		SenderID:  protocol.ID(sender),
		Text:      text,
		CreatedAt: protocol.Time{Time: f.m.Now()},
	}
}

func TestAuthJoinsKnownConversations(t *testing.T) {
	f := newFixture(t)
	f.store.Seed([]models.Conversation{{ID: "a"}, {ID: "b"}})
	f.store.Handle(protocol.AuthOK{UserID: "me"})
	assert.Equal(t, []string{"join_chat:a", "join_chat:b"}, f.cmds.calls)
	assert.Equal(t, "me", f.store.Self())
}

func TestOptimisticSendConfirmed(t *testing.T) {
	f := newFixture(t)
	f.authed()

	id, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "c_1", id)

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, "c_1", tl[0].ID)
	assert.Equal(t, models.LocalSending, tl[0].LocalStatus)
	assert.Equal(t, models.Sending, tl[0].DeliveryStatus)

	f.m.Flush()
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, sentRequest{"conv1", "c_1", "hi"}, f.sender.sent[0])
	assert.Equal(t, models.LocalSending, f.store.Timeline("conv1")[0].LocalStatus, "backend acceptance does not confirm")

	f.m.Advance(2 * time.Second)
	f.store.Handle(f.confirmed("m_42", "conv1", "me", "hi"))

	tl = f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, "m_42", tl[0].ID)
	assert.Equal(t, "c_1", tl[0].ClientID)
	assert.Equal(t, models.LocalSent, tl[0].LocalStatus)
	assert.Equal(t, models.Sent, tl[0].DeliveryStatus)
	assert.Empty(t, f.cmds.calls, "own messages are not acknowledged")
}

func TestConfirmationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.authed()
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	ev := f.confirmed("m_42", "conv1", "me", "hi")
	f.store.Handle(ev)
	once := f.store.Timeline("conv1")
	conv, _ := f.store.Conversation("conv1")

	f.store.Handle(ev)
	assert.Equal(t, once, f.store.Timeline("conv1"))
	again, _ := f.store.Conversation("conv1")
	assert.Equal(t, conv, again)
}

func TestForeignMessageAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.authed()

	f.store.Handle(f.confirmed("m_42", "conv1", "bob", "hi"))
	assert.Equal(t, []string{"ack_delivered:conv1:m_42"}, f.cmds.calls)

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, models.LocalSent, tl[0].LocalStatus)
}

func TestForeignMessageInActiveVisibleChatIsRead(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.SetActive("conv1")
	f.cmds.calls = nil

	f.store.Handle(f.confirmed("m1", "conv1", "bob", "hi"))
	assert.Equal(t, []string{"ack_delivered:conv1:m1", "ack_read:conv1:m1"}, f.cmds.calls)
	c, _ := f.store.Conversation("conv1")
	assert.Zero(t, c.Unread)
	assert.Equal(t, "m1", c.LastReadID)

	f.cmds.calls = nil
	f.store.SetVisible(false)
	f.store.Handle(f.confirmed("m2", "conv1", "bob", "again"))
	assert.Equal(t, []string{"ack_delivered:conv1:m2"}, f.cmds.calls)
	c, _ = f.store.Conversation("conv1")
	assert.Zero(t, c.Unread, "the active conversation never accumulates unread")

	f.cmds.calls = nil
	f.store.SetVisible(true)
	assert.Equal(t, []string{"ack_read_all:conv1"}, f.cmds.calls)
	c, _ = f.store.Conversation("conv1")
	assert.Equal(t, "m2", c.LastReadID)
}

func TestUnreadAccounting(t *testing.T) {
	f := newFixture(t)
	f.authed()

	for i := 0; i < 5; i++ {
		f.store.Handle(f.confirmed(fmt.Sprintf("m%d", i), "conv2", "bob", "x"))
	}
	f.store.Handle(f.confirmed("mine", "conv2", "me", "y"))
	c, _ := f.store.Conversation("conv2")
	assert.Equal(t, 5, c.Unread)
	assert.Equal(t, 5, f.store.UnreadTotal())

	f.cmds.calls = nil
	f.store.SetActive("conv2")
	f.store.SetActive("conv2")
	c, _ = f.store.Conversation("conv2")
	assert.Zero(t, c.Unread)
	assert.Equal(t, "mine", c.LastReadID)
	assert.Equal(t, 1, f.cmds.count("ack_delivered_all:conv2"))
	assert.Equal(t, 1, f.cmds.count("ack_read_all:conv2"))
	assert.Len(t, f.cmds.calls, 2)
}

func TestReactivationAcknowledgesAgain(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.SetActive("conv1")
	f.store.SetActive("conv2")
	f.store.SetActive("conv1")
	assert.Equal(t, 2, f.cmds.count("ack_read_all:conv1"))

	f.store.SetActive("")
	assert.Empty(t, f.store.Active())
}

func TestMutedUnreadExcludedFromTotal(t *testing.T) {
	f := newFixture(t)
	f.store.Seed([]models.Conversation{{ID: "quiet", Muted: true}})
	f.store.Handle(protocol.AuthOK{UserID: "me"})
	f.store.Handle(f.confirmed("m1", "quiet", "bob", "x"))
	c, _ := f.store.Conversation("quiet")
	assert.Equal(t, 1, c.Unread)
	assert.Zero(t, f.store.UnreadTotal())
}

func TestConversationMovesToFront(t *testing.T) {
	f := newFixture(t)
	f.authed()

	f.store.Handle(f.confirmed("m1", "conv2", "bob", "hello there"))
	convs := f.store.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "conv2", convs[0].ID)
	assert.Equal(t, models.Preview{
		MessageID: "m1",
		Text:      "hello there",
		At:        f.m.Now(),
		SenderID:  "bob",
		Status:    models.Sent,
	}, convs[0].Last)

	f.store.Handle(f.confirmed("m2", "conv1", "bob", "ping"))
	assert.Equal(t, "conv1", f.store.Conversations()[0].ID)
}

func TestBufferedReadAppliedOnConfirmation(t *testing.T) {
	f := newFixture(t)
	f.authed()
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	f.store.Handle(protocol.MessageRead{ChatID: "conv1", MessageID: "m_42", ReadBy: "bob"})
	_, pending := f.store.PendingReceipts("conv1")
	assert.Equal(t, 1, pending)

	f.m.Advance(200 * time.Millisecond)
	f.store.Handle(f.confirmed("m_42", "conv1", "me", "hi"))

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, models.Read, tl[0].DeliveryStatus)
	c, _ := f.store.Conversation("conv1")
	assert.Equal(t, models.Read, c.Last.Status)
	d, r := f.store.PendingReceipts("conv1")
	assert.Zero(t, d+r)
}

func TestReceiptsAdvanceMonotonically(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.Handle(f.confirmed("m1", "conv1", "me", "a"))
	f.store.Handle(f.confirmed("m2", "conv1", "me", "b"))

	f.store.Handle(protocol.MessagesDelivered{ChatID: "conv1", MessageIDs: protocol.IDList{"m1", "m2"}, DeliveredTo: "bob"})
	f.store.Handle(protocol.MessageRead{ChatID: "conv1", MessageID: "m2", ReadBy: "bob"})
	f.store.Handle(protocol.MessageDelivered{ChatID: "conv1", MessageID: "m2", DeliveredTo: "bob"})

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 2)
	assert.Equal(t, models.Delivered, tl[0].DeliveryStatus)
	assert.Equal(t, models.Read, tl[1].DeliveryStatus)
	assert.Equal(t, []string{"bob"}, tl[1].ReadBy)
	assert.Equal(t, []string{"bob"}, tl[1].DeliveredTo)

	c, _ := f.store.Conversation("conv1")
	assert.Equal(t, "m2", c.Last.MessageID)
	assert.Equal(t, models.Read, c.Last.Status)
}

func TestReceiptsForForeignMessagesKeepStatus(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.Handle(f.confirmed("m1", "conv2", "bob", "a"))
	f.store.Handle(protocol.MessagesRead{ChatID: "conv2", MessageIDs: protocol.IDList{"m1"}, ReadBy: "eve"})

	tl := f.store.Timeline("conv2")
	assert.Equal(t, models.Sent, tl[0].DeliveryStatus)
	assert.Equal(t, []string{"eve"}, tl[0].ReadBy)
}

func TestSendFailureAndRetryKeepsID(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.sender.err = errors.New("backend down")

	id, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, models.LocalFailed, tl[0].LocalStatus)
	assert.Equal(t, models.Sent, tl[0].DeliveryStatus)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.store.Retry(context.Background(), "conv1", id))
		assert.Equal(t, models.LocalSending, f.store.Timeline("conv1")[0].LocalStatus)
		f.m.Flush()
		assert.Equal(t, id, f.store.Timeline("conv1")[0].ID)
	}
	require.Len(t, f.sender.sent, 4)
	for _, req := range f.sender.sent {
		assert.Equal(t, id, req.clientID)
	}

	f.sender.err = nil
	require.NoError(t, f.store.Retry(context.Background(), "conv1", id))
	f.m.Flush()
	f.store.Handle(f.confirmed("m_7", "conv1", "me", "hi"))
	tl = f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, "m_7", tl[0].ID)
	assert.Equal(t, models.LocalSent, tl[0].LocalStatus)
}

func TestRetryRejectsNonFailedMessages(t *testing.T) {
	f := newFixture(t)
	f.authed()
	id, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)

	assert.ErrorIs(t, f.store.Retry(context.Background(), "conv1", id), ErrNotRetryable)
	assert.ErrorIs(t, f.store.Retry(context.Background(), "conv1", "nope"), ErrNotRetryable)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	assert.ErrorIs(t, err, ErrUnknownSender)

	f.authed()
	_, err = f.store.Send(context.Background(), "conv1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.store.Timeline("conv1"))
}

func TestMatchWindow(t *testing.T) {
	f := newFixture(t)
	f.authed()
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	f.m.Advance(31 * time.Second)
	f.store.Handle(f.confirmed("m_42", "conv1", "me", "hi"))

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 2, "confirmations outside the window are appended")
	assert.Equal(t, "c_1", tl[0].ID)
	assert.Equal(t, models.LocalSending, tl[0].LocalStatus)
	assert.Equal(t, "m_42", tl[1].ID)
}

func TestHeuristicRequiresSameSenderAndText(t *testing.T) {
	f := newFixture(t)
	f.authed()
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	f.store.Handle(f.confirmed("m1", "conv1", "me", "different"))
	f.store.Handle(f.confirmed("m2", "conv1", "bob", "hi"))
	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 3)
	assert.Equal(t, models.LocalSending, tl[0].LocalStatus)
}

func TestClientIDEchoWinsOverHeuristic(t *testing.T) {
	f := newFixture(t)
	f.authed()
	first, err := f.store.Send(context.Background(), "conv1", "same")
	require.NoError(t, err)
	second, err := f.store.Send(context.Background(), "conv1", "same")
	require.NoError(t, err)
	f.m.Flush()

	ev := f.confirmed("m_2", "conv1", "me", "same")
	ev.ClientID = second
	f.store.Handle(ev)

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 2)
	assert.Equal(t, first, tl[0].ID)
	assert.Equal(t, "m_2", tl[1].ID)
	assert.Equal(t, second, tl[1].ClientID)
}

func TestClientIDEchoConfirmsFailedSend(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.sender.err = errors.New("timeout")
	id, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	ev := f.confirmed("m_9", "conv1", "me", "hi")
	ev.ClientID = id
	f.store.Handle(ev)
	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, models.LocalSent, tl[0].LocalStatus)
}

func TestChatCreated(t *testing.T) {
	f := newFixture(t)
	f.authed()

	ev := protocol.ChatCreated{ID: "conv3", ChatType: "group", Members: protocol.IDList{"me", "zed"}}
	f.store.Handle(ev)
	f.store.Handle(ev)

	assert.Equal(t, []string{"join_chat:conv3"}, f.cmds.calls)
	c, ok := f.store.Conversation("conv3")
	require.True(t, ok)
	assert.Equal(t, models.Group, c.Type)
	assert.Equal(t, []string{"me", "zed"}, c.Members)
	assert.Zero(t, c.Unread)
	assert.Equal(t, models.Preview{}, c.Last)
	assert.Equal(t, "conv3", f.store.Conversations()[0].ID)
}

func TestJoinedChatReacknowledgesActive(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.SetActive("conv1")
	f.cmds.calls = nil

	f.store.Handle(protocol.JoinedChat{ChatID: "conv1"})
	assert.Empty(t, f.cmds.calls, "already acknowledged on this connection")

	f.store.Handle(protocol.AuthOK{UserID: "me"})
	f.cmds.calls = nil
	f.store.Handle(protocol.JoinedChat{ChatID: "conv2"})
	assert.Empty(t, f.cmds.calls)

	f.store.Handle(protocol.JoinedChat{ChatID: "conv1"})
	f.store.Handle(protocol.JoinedChat{ChatID: "conv1"})
	assert.Equal(t, []string{"ack_delivered_all:conv1", "ack_read_all:conv1"}, f.cmds.calls)
}

func TestJoinedChatAcknowledgesActivationBeforeAuth(t *testing.T) {
	f := newFixture(t)
	f.store.Seed([]models.Conversation{{ID: "conv1"}})
	f.store.SetActive("conv1")
	f.store.SetVisible(false)
	f.store.Handle(protocol.AuthOK{UserID: "me"})
	f.cmds.calls = nil

	f.store.Handle(protocol.JoinedChat{ChatID: "conv1"})
	assert.Equal(t, []string{"ack_delivered_all:conv1"}, f.cmds.calls)
}

func TestDeniedChatsAreNotRejoined(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.Handle(protocol.JoinDenied{ChatID: "conv2", Reason: "not a member"})
	assert.True(t, f.store.Denied("conv2"))

	f.store.Handle(protocol.AuthOK{UserID: "me"})
	assert.Equal(t, []string{"join_chat:conv1"}, f.cmds.calls)

	f.cmds.calls = nil
	f.store.Handle(protocol.ChatCreated{ID: "conv2", ChatType: "group"})
	assert.False(t, f.store.Denied("conv2"), "a new membership lifts the denial")
	f.store.Handle(protocol.AuthOK{UserID: "me"})
	assert.Equal(t, 2, f.cmds.count("join_chat:conv2"))
}

func TestMessageInUnknownChatJoinsIt(t *testing.T) {
	f := newFixture(t)
	f.authed()

	f.store.Handle(f.confirmed("m1", "conv9", "bob", "hello"))
	f.store.Handle(f.confirmed("m2", "conv9", "bob", "again"))
	assert.Equal(t, 1, f.cmds.count("join_chat:conv9"))
	assert.Equal(t, "conv9", f.store.Conversations()[0].ID)

	f.store.SetActive("conv9")
	f.store.Handle(protocol.JoinedChat{ChatID: "conv9"})
	assert.Equal(t, 1, f.cmds.count("ack_delivered_all:conv9"))
	assert.Equal(t, 1, f.cmds.count("ack_read_all:conv9"))
}

func TestHistoryBeforeAuthIsRederived(t *testing.T) {
	f := newFixture(t)
	f.store.Seed([]models.Conversation{{ID: "conv1"}})
	f.store.MergeHistory("conv1", []models.Message{
		{ID: "m1", SenderID: "me", Text: "one", CreatedAt: f.m.Now(), ReadBy: []string{"bob"}},
		{ID: "m2", SenderID: "bob", Text: "two", CreatedAt: f.m.Now().Add(-time.Minute), ReadBy: []string{"me"}},
	})
	assert.Equal(t, models.Sent, f.store.Timeline("conv1")[1].DeliveryStatus)

	f.store.Handle(protocol.AuthOK{UserID: "me"})
	tl := f.store.Timeline("conv1")
	assert.Equal(t, models.Sent, tl[0].DeliveryStatus, "foreign messages keep their status")
	assert.Equal(t, models.Read, tl[1].DeliveryStatus)
	c, _ := f.store.Conversation("conv1")
	assert.Equal(t, "m1", c.Last.MessageID)
	assert.Equal(t, models.Read, c.Last.Status)
}

func TestMergeHistory(t *testing.T) {
	f := newFixture(t)
	f.authed()
	base := f.m.Now().Add(-time.Hour)

	f.store.Handle(f.confirmed("m3", "conv1", "bob", "live"))
	f.store.Handle(protocol.MessageRead{ChatID: "conv1", MessageID: "m2", ReadBy: "bob"})

	f.store.MergeHistory("conv1", []models.Message{
		{ID: "m1", SenderID: "me", Text: "one", CreatedAt: base, DeliveredTo: []string{"bob"}},
		{ID: "m2", SenderID: "me", Text: "two", CreatedAt: base.Add(time.Minute)},
		{ID: "m3", SenderID: "bob", Text: "live", CreatedAt: f.m.Now()},
	})

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{tl[0].ID, tl[1].ID, tl[2].ID})
	assert.Equal(t, models.Delivered, tl[0].DeliveryStatus, "derived from deliveredTo")
	assert.Equal(t, models.Read, tl[1].DeliveryStatus, "buffered receipt claimed")
	for _, m := range tl {
		assert.Equal(t, models.LocalSent, m.LocalStatus)
	}

	c, _ := f.store.Conversation("conv1")
	assert.Equal(t, "m3", c.Last.MessageID, "older history does not replace the preview")
}

func TestMergeHistoryConfirmsPendingSend(t *testing.T) {
	f := newFixture(t)
	f.authed()
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	f.store.MergeHistory("conv1", []models.Message{
		{ID: "m_42", SenderID: "me", Text: "hi", CreatedAt: f.m.Now()},
	})
	f.store.Handle(f.confirmed("m_42", "conv1", "me", "hi"))

	tl := f.store.Timeline("conv1")
	require.Len(t, tl, 1)
	assert.Equal(t, "m_42", tl[0].ID)
	assert.Equal(t, models.LocalSent, tl[0].LocalStatus)
}

func TestMergeHistoryConfirmationUpdatesPreview(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.Handle(f.confirmed("m1", "conv2", "bob", "earlier"))
	f.m.Advance(time.Second)
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()
	require.Equal(t, "conv2", f.store.Conversations()[0].ID)

	f.store.MergeHistory("conv1", []models.Message{
		{ID: "m_42", SenderID: "me", Text: "hi", CreatedAt: f.m.Now(), DeliveredTo: []string{"bob"}},
	})

	convs := f.store.Conversations()
	assert.Equal(t, "conv1", convs[0].ID)
	assert.Equal(t, "m_42", convs[0].Last.MessageID)
	assert.Equal(t, "hi", convs[0].Last.Text)
	assert.Equal(t, models.Delivered, convs[0].Last.Status)
}

func TestSeedMergesWithLiveState(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.store.Handle(f.confirmed("m1", "conv2", "bob", "fresh"))

	old := f.m.Now().Add(-time.Hour)
	f.store.Seed([]models.Conversation{
		{ID: "conv1", Last: models.Preview{MessageID: "x", At: old}, Unread: 3},
		{ID: "conv2", Last: models.Preview{MessageID: "stale", At: old}, Unread: 9, Muted: true},
		{ID: "conv4", CreatedAt: old.Add(-time.Hour)},
	})

	convs := f.store.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, []string{"conv2", "conv1", "conv4"}, []string{convs[0].ID, convs[1].ID, convs[2].ID})
	assert.Equal(t, "m1", convs[0].Last.MessageID)
	assert.Equal(t, 1, convs[0].Unread)
	assert.True(t, convs[0].Muted)
	assert.Equal(t, 3, convs[1].Unread)
}

func TestSendFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.authed()
	f.sender.err = errors.New("boom")
	_, err := f.store.Send(context.Background(), "conv1", "hi")
	require.NoError(t, err)
	f.m.Flush()

	entry := f.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "message send failed", entry.Message)
	assert.Equal(t, "c_1", entry.Data["client_id"])
}
