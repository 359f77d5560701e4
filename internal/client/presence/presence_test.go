package presence

import (
	"testing"

	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := New()
	tr.Handle(protocol.PresenceState{OnlineUserIDs: protocol.IDList{"1", "2"}})
	tr.Handle(protocol.PresenceOnline{UserID: "3"})
	tr.Handle(protocol.PresenceOffline{UserID: "1"})

	assert.Equal(t, []string{"2", "3"}, tr.Online())
	assert.True(t, tr.IsOnline(2), "numeric ids are canonicalised")
	assert.True(t, tr.IsOnline(int64(3)))
	assert.True(t, tr.IsOnline(protocol.ID("3")))
	assert.True(t, tr.IsOnline(" 2 "))
	assert.False(t, tr.IsOnline(1))
	assert.False(t, tr.IsOnline(nil))
	assert.False(t, tr.IsOnline(""))
}

func TestStateReplacesSet(t *testing.T) {
	tr := New()
	tr.Handle(protocol.PresenceOnline{UserID: "a"})
	tr.Handle(protocol.PresenceState{OnlineUserIDs: protocol.IDList{"b"}})
	assert.Equal(t, []string{"b"}, tr.Online())

	tr.Handle(protocol.PresenceState{})
	assert.Empty(t, tr.Online())
}

func TestIgnoresOtherEvents(t *testing.T) {
	tr := New()
	tr.Handle(protocol.TypingStarted{ChatID: "c", UserID: "u"})
	tr.Handle(protocol.PresenceOffline{UserID: "missing"})
	assert.Empty(t, tr.Online())

	tr.Handle(protocol.PresenceOnline{UserID: "u"})
	tr.Reset()
	assert.False(t, tr.IsOnline("u"))
}
