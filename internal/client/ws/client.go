package ws

import (
	"context"
	"errors"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/loop"
	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
	"github.com/sirupsen/logrus"
)

const DefaultReconnectDelay = 800 * time.Millisecond

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// Listener receives every decoded inbound event.
type Listener func(protocol.Event)

type Options struct {
	URL            string
	Dialer         Dialer
	Loop           loop.Runner
	ReconnectDelay time.Duration
	Logger         logrus.FieldLogger
}

// Snapshot is a point-in-time view of the connection.
type Snapshot struct {
	State       State
	Connected   bool
	Authed      bool
	Token       string
	UserID      string
	JoinedChats []string
}

// Client owns the single persistent connection to the real-time backend.
// All methods must be called from the loop.
type Client struct {
	url            string
	dialer         Dialer
	loop           loop.Runner
	reconnectDelay time.Duration
	log            logrus.FieldLogger

	state     State
	transport Transport
	// gen identifies the current connection attempt; callbacks carrying an
	// older generation belong to a torn-down connection and are ignored.
	gen        uint64
	cancelDial context.CancelFunc

	token       string
	authed      bool
	userID      string
	joins       *orderedSet
	intentional bool
	reconnect   loop.Timer

	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

func New(opts Options) *Client {
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		url:            opts.URL,
		dialer:         opts.Dialer,
		loop:           opts.Loop,
		reconnectDelay: delay,
		log:            log.WithField("component", "ws"),
		joins:          newOrderedSet(),
	}
}

// On registers a listener and returns a function that removes it.
func (c *Client) On(fn Listener) (off func()) {
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Connect opens the connection with token. It is a no-op for an unchanged
// token on a live connection; a changed token forces a full reconnect.
func (c *Client) Connect(token string) {
	if token == "" {
		c.log.Warn("connect called without a token")
		return
	}
	c.intentional = false

	if c.state != Disconnected {
		if token == c.token {
			if c.state == Connected && !c.authed {
				c.write(protocol.Auth{Token: token})
			}
			return
		}
		c.log.Info("token changed, reconnecting")
		c.teardown()
	}

	c.token = token
	c.dial()
}

// Disconnect closes the connection for good: no reconnect is scheduled after
// it returns and all connection state is cleared.
func (c *Client) Disconnect() {
	c.intentional = true
	c.cancelReconnect()
	c.token = ""
	c.joins.clear()
	c.teardown()
	c.log.Info("disconnected")
}

func (c *Client) JoinChat(chatID string) {
	if chatID == "" {
		return
	}
	c.joins.add(chatID)
	if c.authed {
		c.write(protocol.JoinChat{ChatID: chatID})
	}
}

func (c *Client) LeaveChat(chatID string) {
	if chatID == "" {
		return
	}
	c.joins.remove(chatID)
	if c.authed {
		c.write(protocol.LeaveChat{ChatID: chatID})
	}
}

func (c *Client) AckDelivered(chatID, messageID string) {
	c.command(protocol.AckDelivered{ChatID: chatID, MessageID: messageID})
}

func (c *Client) AckRead(chatID, messageID string) {
	c.command(protocol.AckRead{ChatID: chatID, MessageID: messageID})
}

func (c *Client) AckDeliveredAll(chatID string) {
	c.command(protocol.AckDeliveredAll{ChatID: chatID})
}

func (c *Client) AckReadAll(chatID string) {
	c.command(protocol.AckReadAll{ChatID: chatID})
}

func (c *Client) TypingStart(chatID string) {
	c.command(protocol.StartTyping{ChatID: chatID})
}

func (c *Client) TypingStop(chatID string) {
	c.command(protocol.StopTyping{ChatID: chatID})
}

func (c *Client) State() State { return c.state }

func (c *Client) Authenticated() bool { return c.authed }

func (c *Client) UserID() string { return c.userID }

func (c *Client) Token() string { return c.token }

// PendingJoins returns the chats that will be joined on every authentication,
// in the order they were first requested.
func (c *Client) PendingJoins() []string { return c.joins.list() }

func (c *Client) Snapshot() Snapshot {
	return Snapshot{
		State:       c.state,
		Connected:   c.state == Connected || c.state == Authenticated,
		Authed:      c.authed,
		Token:       c.token,
		UserID:      c.userID,
		JoinedChats: c.joins.list(),
	}
}

// command sends fire-and-forget commands. They are dropped, not queued, while
// unauthenticated.
func (c *Client) command(cmd protocol.Command) {
	if !c.authed {
		c.log.WithField("type", cmd.Type()).Debug("dropping command while unauthenticated")
		return
	}
	c.write(cmd)
}

func (c *Client) write(cmd protocol.Command) {
	if c.transport == nil {
		return
	}
	frame, err := protocol.Encode(cmd)
	if err != nil {
		c.log.WithError(err).Error("encode command")
		return
	}
	if err := c.transport.Send(frame); err != nil {
		c.log.WithError(err).WithField("type", cmd.Type()).Warn("send command")
	}
}

func (c *Client) dial() {
	c.cancelReconnect()
	c.gen++
	gen := c.gen
	c.state = Connecting

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	url := c.url
	c.log.WithField("url", url).Debug("dialing")

	c.loop.Go(func() {
		t, err := c.dialer.Dial(ctx, url)
		c.loop.Post(func() { c.onOpen(gen, t, err) })
	})
}

func (c *Client) onOpen(gen uint64, t Transport, err error) {
	if gen != c.gen {
		if t != nil {
			t.Close()
		}
		return
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if err != nil {
		c.log.WithError(err).Warn("dial failed")
		c.onClose(gen, err)
		return
	}

	c.transport = t
	c.state = Connected
	c.authed = false
	c.userID = ""
	t.Start(
		func(frame []byte) { c.loop.Post(func() { c.onFrame(gen, frame) }) },
		func(err error) { c.loop.Post(func() { c.onClose(gen, err) }) },
	)
	c.write(protocol.Auth{Token: c.token})
}

func (c *Client) onFrame(gen uint64, frame []byte) {
	if gen != c.gen {
		return
	}
	ev, err := protocol.Decode(frame)
	if err != nil {
		entry := c.log.WithError(err).WithField("size", len(frame))
		if errors.Is(err, protocol.ErrUnknownEvent) {
			entry.Debug("ignoring unknown event")
		} else {
			entry.Warn("dropping malformed frame")
		}
		return
	}

	c.emit(ev)
	// A listener may have disconnected or switched tokens.
	if gen != c.gen {
		return
	}

	switch e := ev.(type) {
	case protocol.AuthOK:
		c.authed = true
		c.userID = string(e.UserID)
		c.state = Authenticated
		c.log.WithField("user", c.userID).Info("authenticated")
		for _, chatID := range c.joins.list() {
			c.write(protocol.JoinChat{ChatID: chatID})
		}
	case protocol.AuthError:
		c.authed = false
		c.userID = ""
		c.state = Connected
		c.log.WithField("reason", e.Reason).Warn("authentication failed")
	case protocol.JoinDenied:
		// The server would deny the same join on every replay.
		c.joins.remove(string(e.ChatID))
		c.log.WithField("chat", e.ChatID).WithField("reason", e.Reason).Warn("join denied")
	}
}

func (c *Client) emit(ev protocol.Event) {
	listeners := append([]listenerEntry(nil), c.listeners...)
	for _, l := range listeners {
		l.fn(ev)
	}
}

func (c *Client) onClose(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.transport = nil
	c.state = Disconnected
	c.authed = false
	c.userID = ""
	if c.intentional || c.token == "" {
		return
	}
	c.log.WithError(err).WithField("delay", c.reconnectDelay).Info("connection lost, scheduling reconnect")
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.cancelReconnect()
	c.reconnect = c.loop.AfterFunc(c.reconnectDelay, func() {
		c.reconnect = nil
		if c.intentional || c.token == "" || c.state != Disconnected {
			return
		}
		c.dial()
	})
}

func (c *Client) cancelReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// teardown drops the current connection without scheduling a reconnect.
func (c *Client) teardown() {
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	c.state = Disconnected
	c.authed = false
	c.userID = ""
}

type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) remove(v string) {
	if _, ok := s.index[v]; !ok {
		return
	}
	delete(s.index, v)
	for i, item := range s.items {
		if item == v {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

func (s *orderedSet) clear() {
	s.items = nil
	s.index = make(map[string]struct{})
}

func (s *orderedSet) list() []string {
	return append([]string(nil), s.items...)
}
