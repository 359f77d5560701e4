// Package engine wires the sync components to a single connection and an
// HTTP backend. Every method must be called from the engine's loop.
package engine

import (
	"context"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/loop"
	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/cloudzz-dev/chatsync/internal/client/presence"
	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
	"github.com/cloudzz-dev/chatsync/internal/client/store"
	"github.com/cloudzz-dev/chatsync/internal/client/typing"
	"github.com/cloudzz-dev/chatsync/internal/client/ws"
	"github.com/sirupsen/logrus"
)

// Backend is the HTTP collaborator.
type Backend interface {
	store.Sender
	SetToken(token string)
	Chats(ctx context.Context) ([]models.Conversation, error)
	History(ctx context.Context, chatID string) ([]models.Message, error)
	Members(ctx context.Context, chatID string) ([]models.Member, error)
}

type Options struct {
	Loop    loop.Runner
	Dialer  ws.Dialer
	Backend Backend
	URL     string

	ReconnectDelay time.Duration
	TypingIdle     time.Duration
	TypingExpiry   time.Duration
	MatchWindow    time.Duration

	NewID  func() string
	Now    func() time.Time
	Logger logrus.FieldLogger
}

type Engine struct {
	loop    loop.Runner
	backend Backend
	log     logrus.FieldLogger

	conn     *ws.Client
	store    *store.Store
	presence *presence.Tracker
	typing   *typing.Tracker

	members map[string][]models.Member
	lastErr error

	// session is bumped by Stop; background results from an older session
	// are dropped. ctx is cancelled at the same time.
	session uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	conn := ws.New(ws.Options{
		URL:            opts.URL,
		Dialer:         opts.Dialer,
		Loop:           opts.Loop,
		ReconnectDelay: opts.ReconnectDelay,
		Logger:         log,
	})
	e := &Engine{
		loop:    opts.Loop,
		backend: opts.Backend,
		log:     log.WithField("component", "engine"),
		conn:    conn,
		store: store.New(store.Options{
			Loop:        opts.Loop,
			Commands:    conn,
			Sender:      opts.Backend,
			NewID:       opts.NewID,
			Now:         opts.Now,
			MatchWindow: opts.MatchWindow,
			Logger:      log,
		}),
		presence: presence.New(),
		typing: typing.New(typing.Options{
			Loop:    opts.Loop,
			Emitter: conn,
			Idle:    opts.TypingIdle,
			Expiry:  opts.TypingExpiry,
		}),
		members: make(map[string][]models.Member),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	// The store sees every event first so that views built from the trackers
	// never run ahead of the timeline.
	conn.On(e.store.Handle)
	conn.On(e.presence.Handle)
	conn.On(e.typing.Handle)
	conn.On(e.observe)
	return e
}

func (e *Engine) observe(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.AuthError:
		e.lastErr = &AuthError{Reason: ev.Reason}
	case protocol.AuthOK:
		if _, ok := e.lastErr.(*AuthError); ok {
			e.lastErr = nil
		}
	case protocol.JoinedChat:
		// Membership may have changed while we were away.
		if id := string(ev.ChatID); id == e.store.Active() {
			e.loadMembers(context.Background(), id)
		}
	}
}

// Start connects with token and loads the conversation list.
func (e *Engine) Start(ctx context.Context, token string) {
	e.backend.SetToken(token)
	e.conn.Connect(token)
	e.Refresh(ctx)
}

// Stop disconnects and forgets all synced state.
func (e *Engine) Stop() {
	e.session++
	e.cancel()
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.conn.Disconnect()
	e.backend.SetToken("")
	e.typing.Reset()
	e.presence.Reset()
	e.store.Reset()
	e.members = make(map[string][]models.Member)
	e.lastErr = nil
}

// Refresh reloads the conversation list snapshot in the background.
func (e *Engine) Refresh(ctx context.Context) {
	e.background(ctx, func(ctx context.Context) func() {
		convs, err := e.backend.Chats(ctx)
		return func() {
			if err != nil {
				e.fail("load conversations", err)
				return
			}
			e.store.Seed(convs)
			for _, c := range convs {
				if !e.store.Denied(c.ID) {
					e.join(c.ID)
				}
			}
		}
	})
}

// Open activates a conversation and loads its history and members.
func (e *Engine) Open(ctx context.Context, chatID string) {
	e.store.SetActive(chatID)
	if chatID == "" {
		return
	}
	e.join(chatID)
	e.background(ctx, func(ctx context.Context) func() {
		msgs, err := e.backend.History(ctx, chatID)
		return func() {
			if err != nil {
				e.fail("load history", err)
				return
			}
			e.store.MergeHistory(chatID, msgs)
		}
	})
	e.loadMembers(ctx, chatID)
}

// join subscribes to chatID unless it is already wanted.
func (e *Engine) join(chatID string) {
	for _, id := range e.conn.PendingJoins() {
		if id == chatID {
			return
		}
	}
	e.conn.JoinChat(chatID)
}

func (e *Engine) loadMembers(ctx context.Context, chatID string) {
	e.background(ctx, func(ctx context.Context) func() {
		members, err := e.backend.Members(ctx, chatID)
		return func() {
			if err != nil {
				e.fail("load members", err)
				return
			}
			e.members[chatID] = members
		}
	})
}

// background runs work off the loop and applies the result it returns on the
// loop, unless Stop was called in between. ctx is also cancelled by Stop.
func (e *Engine) background(ctx context.Context, work func(ctx context.Context) func()) {
	session := e.session
	ctx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(e.ctx, cancel)
	e.loop.Go(func() {
		apply := work(ctx)
		release()
		cancel()
		e.loop.Post(func() {
			if session != e.session {
				e.log.WithField("session", session).Debug("dropping result of a stopped session")
				return
			}
			apply()
		})
	})
}

// Close deactivates the current conversation.
func (e *Engine) Close() {
	e.store.SetActive("")
}

func (e *Engine) Send(ctx context.Context, chatID, text string) (string, error) {
	id, err := e.store.Send(ctx, chatID, text)
	if err != nil {
		return "", err
	}
	e.typing.MessageSent(chatID)
	return id, nil
}

func (e *Engine) Retry(ctx context.Context, chatID, clientID string) error {
	return e.store.Retry(ctx, chatID, clientID)
}

func (e *Engine) Keystroke(chatID string) {
	e.typing.Keystroke(chatID)
}

func (e *Engine) SetVisible(visible bool) {
	e.store.SetVisible(visible)
}

// On registers an extra listener for raw events.
func (e *Engine) On(fn ws.Listener) (off func()) {
	return e.conn.On(fn)
}

func (e *Engine) fail(op string, err error) {
	e.log.WithError(err).Warn(op)
	e.lastErr = &OpError{Op: op, Err: err}
}

// Err returns the most recent background failure, if any.
func (e *Engine) Err() error { return e.lastErr }

func (e *Engine) ClearErr() { e.lastErr = nil }

func (e *Engine) Conn() ws.Snapshot { return e.conn.Snapshot() }

func (e *Engine) Store() *store.Store { return e.store }

func (e *Engine) Presence() *presence.Tracker { return e.presence }

func (e *Engine) Typing() *typing.Tracker { return e.typing }

// Members returns the last loaded member list of a conversation.
func (e *Engine) Members(chatID string) []models.Member {
	return append([]models.Member(nil), e.members[chatID]...)
}
