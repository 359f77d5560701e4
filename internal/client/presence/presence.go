// Package presence tracks which users the server reports as online.
package presence

import (
	"sort"

	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
)

type Tracker struct {
	online map[string]struct{}
}

func New() *Tracker {
	return &Tracker{online: make(map[string]struct{})}
}

// Handle applies presence events and ignores everything else.
func (t *Tracker) Handle(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.PresenceState:
		t.online = make(map[string]struct{}, len(e.OnlineUserIDs))
		for _, id := range e.OnlineUserIDs {
			if id != "" {
				t.online[string(id)] = struct{}{}
			}
		}
	case protocol.PresenceOnline:
		if e.UserID != "" {
			t.online[string(e.UserID)] = struct{}{}
		}
	case protocol.PresenceOffline:
		delete(t.online, string(e.UserID))
	}
}

// IsOnline accepts any id form the UI may hold (string, number, protocol.ID).
func (t *Tracker) IsOnline(id interface{}) bool {
	key := protocol.Canonical(id)
	if key == "" {
		return false
	}
	_, ok := t.online[key]
	return ok
}

func (t *Tracker) Online() []string {
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset forgets everything, for example after logout.
func (t *Tracker) Reset() {
	t.online = make(map[string]struct{})
}
