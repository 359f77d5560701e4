package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	c := New(Options{BaseURL: srv.URL + "/", HTTPClient: srv.Client(), Logger: logger})
	c.SetToken("tok")
	return c
}

func TestChatsNormalisesSnapshot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[
			{"_id":"c1","type":"dm","members":[{"_id":"u1","displayName":"Ann"},{"_id":2}],
			 "lastMessageId":{"_id":"m9","text":"yo","senderId":{"_id":"u1"},"updatedAt":"2026-01-02T03:04:05Z"},
			 "unreadCount":"3"},
			{"id":7,"type":"group","members":["u1","u3"],"isMuted":true,"unreadCount":null,
			 "lastMessageId":"m1","lastMessageText":"hey","lastMessageAt":1767323045000,"lastMessageSenderId":3},
			{"type":"dm"}
		]}`))
	}))

	chats, err := c.Chats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 2)

	assert.Equal(t, "c1", chats[0].ID)
	assert.Equal(t, models.Direct, chats[0].Type)
	assert.Equal(t, []string{"u1", "2"}, chats[0].Members)
	assert.Equal(t, 3, chats[0].Unread)
	assert.Equal(t, "m9", chats[0].Last.MessageID)
	assert.Equal(t, "yo", chats[0].Last.Text)
	assert.Equal(t, "u1", chats[0].Last.SenderID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), chats[0].Last.At.UTC())

	assert.Equal(t, "7", chats[1].ID)
	assert.Equal(t, models.Group, chats[1].Type)
	assert.True(t, chats[1].Muted)
	assert.Zero(t, chats[1].Unread)
	assert.Equal(t, "m1", chats[1].Last.MessageID)
	assert.Equal(t, "hey", chats[1].Last.Text)
	assert.Equal(t, "3", chats[1].Last.SenderID)
	assert.Equal(t, int64(1767323045000), chats[1].Last.At.UnixMilli())
}

func TestHistoryDefaultsAndOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/messages/c1", r.URL.Path)
		w.Write([]byte(`{"data":{"messages":[
			{"_id":"m2","senderId":"u2","text":"second","createdAt":"2026-01-02T03:05:00Z","readBy":[{"userId":"u1"}]},
			{"_id":"m1","senderId":{"_id":"u1"},"text":"first","type":"image","createdAt":"2026-01-02T03:04:00Z",
			 "deliveredTo":["u2"],"attachments":[{"kind":"image","url":"https://cdn/x.png"}]}
		]}}`))
	}))

	msgs, err := c.History(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "c1", msgs[0].ChatID)
	assert.Equal(t, "u1", msgs[0].SenderID)
	assert.Equal(t, models.Image, msgs[0].Type)
	assert.Equal(t, []string{"u2"}, msgs[0].DeliveredTo)
	assert.Equal(t, []models.Attachment{{Kind: "image", URL: "https://cdn/x.png"}}, msgs[0].Attachments)

	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, models.Text, msgs[1].Type)
	assert.Equal(t, []string{"u1"}, msgs[1].ReadBy)
	for _, m := range msgs {
		assert.Equal(t, models.LocalSent, m.LocalStatus)
		assert.Equal(t, models.Sent, m.DeliveryStatus)
	}
}

func TestMembersCachedAndRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"members":[{"_id":"u1","userName":"ann"},{"_id":"u2"}]}`))
	}))

	members, err := c.Members(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "ann", members[0].Name())
	assert.Equal(t, "New User", members[1].Name())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "one retry after a 5xx")

	_, err = c.Members(context.Background(), "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "served from cache")

	c.InvalidateMembers("c1")
	_, err = c.Members(context.Background(), "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"not a member"}`))
	}))

	_, err := c.History(context.Background(), "c1")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "not a member", apiErr.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSendMessage(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/messages/c1/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"message": "hi", "type": "text", "clientId": "c_1"}, body)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	err := c.SendMessage(context.Background(), "c1", "c_1", "hi", "")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Service Unavailable", apiErr.Message)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "sends are never retried")
}

func TestRequiresToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	c.SetToken("")
	_, err := c.Chats(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
