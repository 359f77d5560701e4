// Package typing debounces the local user's typing signals and tracks who is
// typing in each conversation.
package typing

import (
	"sort"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/loop"
	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
)

const (
	DefaultIdle   = 900 * time.Millisecond
	DefaultExpiry = 6 * time.Second
)

// Emitter sends the local typing commands.
type Emitter interface {
	TypingStart(chatID string)
	TypingStop(chatID string)
}

type Options struct {
	Loop    loop.Runner
	Emitter Emitter
	// Idle is how long after the last keystroke typing_stop is sent.
	Idle time.Duration
	// Expiry drops a remote typist that sent no refresh for this long.
	Expiry time.Duration
}

type Tracker struct {
	loop   loop.Runner
	emit   Emitter
	idle   time.Duration
	expiry time.Duration

	local  map[string]loop.Timer
	remote map[string]map[string]loop.Timer
	self   string
}

func New(opts Options) *Tracker {
	t := &Tracker{
		loop:   opts.Loop,
		emit:   opts.Emitter,
		idle:   opts.Idle,
		expiry: opts.Expiry,
		local:  make(map[string]loop.Timer),
		remote: make(map[string]map[string]loop.Timer),
	}
	if t.idle <= 0 {
		t.idle = DefaultIdle
	}
	if t.expiry <= 0 {
		t.expiry = DefaultExpiry
	}
	return t
}

// Keystroke records local typing in chatID.
func (t *Tracker) Keystroke(chatID string) {
	if chatID == "" {
		return
	}
	if timer, typing := t.local[chatID]; typing {
		timer.Stop()
	} else {
		t.emit.TypingStart(chatID)
	}
	t.local[chatID] = t.loop.AfterFunc(t.idle, func() {
		delete(t.local, chatID)
		t.emit.TypingStop(chatID)
	})
}

// MessageSent ends local typing in chatID right away.
func (t *Tracker) MessageSent(chatID string) {
	if timer, ok := t.local[chatID]; ok {
		timer.Stop()
		delete(t.local, chatID)
	}
	t.emit.TypingStop(chatID)
}

// LocalTyping reports whether a typing_stop is still owed for chatID.
func (t *Tracker) LocalTyping(chatID string) bool {
	_, ok := t.local[chatID]
	return ok
}

func (t *Tracker) Handle(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.AuthOK:
		t.self = string(e.UserID)
	case protocol.TypingStarted:
		t.start(string(e.ChatID), string(e.UserID))
	case protocol.TypingStopped:
		t.stop(string(e.ChatID), string(e.UserID))
	case protocol.MessageSent:
		t.stop(string(e.ChatID), string(e.SenderID))
	}
}

func (t *Tracker) start(chatID, userID string) {
	if chatID == "" || userID == "" || userID == t.self {
		return
	}
	users, ok := t.remote[chatID]
	if !ok {
		users = make(map[string]loop.Timer)
		t.remote[chatID] = users
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
	}
	users[userID] = t.loop.AfterFunc(t.expiry, func() { t.stop(chatID, userID) })
}

func (t *Tracker) stop(chatID, userID string) {
	users, ok := t.remote[chatID]
	if !ok {
		return
	}
	if timer, ok := users[userID]; ok {
		timer.Stop()
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(t.remote, chatID)
	}
}

// Typing returns the users typing in chatID, sorted.
func (t *Tracker) Typing(chatID string) []string {
	users := t.remote[chatID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *Tracker) IsTyping(chatID string) bool {
	return len(t.remote[chatID]) > 0
}

// Chats returns the number of conversations with at least one typist.
func (t *Tracker) Chats() int { return len(t.remote) }

// Reset stops every timer without emitting anything.
func (t *Tracker) Reset() {
	for _, timer := range t.local {
		timer.Stop()
	}
	for _, users := range t.remote {
		for _, timer := range users {
			timer.Stop()
		}
	}
	t.local = make(map[string]loop.Timer)
	t.remote = make(map[string]map[string]loop.Timer)
	t.self = ""
}
