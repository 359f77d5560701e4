// Package store is the client-side source of truth for the conversation list
// and the per-conversation message timelines. It merges HTTP snapshots with
// real-time events and owns the optimistic send lifecycle.
//
// A Store is not safe for concurrent use; it runs on a loop.Runner.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/loop"
	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/cloudzz-dev/chatsync/internal/client/receipts"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultMatchWindow = 30 * time.Second

var (
	ErrEmptyMessage  = errors.New("message is empty")
	ErrUnknownSender = errors.New("local user is not known yet")
	ErrNotRetryable  = errors.New("message is not a failed send")
)

// Commands is the subset of the connection client the store drives.
type Commands interface {
	JoinChat(chatID string)
	AckDelivered(chatID, messageID string)
	AckRead(chatID, messageID string)
	AckDeliveredAll(chatID string)
	AckReadAll(chatID string)
}

// Sender submits a message to the backend. A nil error only means the backend
// accepted the request; the message itself arrives later as an event.
type Sender interface {
	SendMessage(ctx context.Context, chatID, clientID, text string, typ models.MessageType) error
}

type Options struct {
	Loop     loop.Runner
	Commands Commands
	Sender   Sender
	// NewID generates provisional message ids.
	NewID       func() string
	Now         func() time.Time
	MatchWindow time.Duration
	Logger      logrus.FieldLogger
}

type Store struct {
	loop   loop.Runner
	cmds   Commands
	sender Sender
	newID  func() string
	now    func() time.Time
	window time.Duration
	log    logrus.FieldLogger

	receipts *receipts.Reconciler

	// order holds conversation ids, most recent first.
	order []string
	chats map[string]*models.Conversation

	timelines map[string][]*models.Message
	index     map[string]map[string]*models.Message

	// denied holds chats the server refused to join us to.
	denied map[string]bool

	self    string
	active  string
	visible bool

	// epoch counts authentications; ackedIn is the epoch the active chat was
	// last acknowledged in.
	epoch   int
	ackedIn int
}

func New(opts Options) *Store {
	s := &Store{
		loop:      opts.Loop,
		cmds:      opts.Commands,
		sender:    opts.Sender,
		newID:     opts.NewID,
		now:       opts.Now,
		window:    opts.MatchWindow,
		log:       opts.Logger,
		receipts:  receipts.New(),
		chats:     make(map[string]*models.Conversation),
		timelines: make(map[string][]*models.Message),
		index:     make(map[string]map[string]*models.Message),
		denied:    make(map[string]bool),
		visible:   true,
	}
	if s.newID == nil {
		s.newID = func() string { return "c_" + uuid.NewString() }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.window <= 0 {
		s.window = DefaultMatchWindow
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	s.log = s.log.WithField("component", "store")
	return s
}

// Seed merges a conversation list snapshot. Local real-time state wins where
// it is newer; the list is then ordered by last activity.
func (s *Store) Seed(convs []models.Conversation) {
	for _, in := range convs {
		if in.ID == "" {
			continue
		}
		c, ok := s.chats[in.ID]
		if !ok {
			c := in.Clone()
			if c.Unread < 0 || c.ID == s.active {
				c.Unread = 0
			}
			s.chats[c.ID] = &c
			s.order = append(s.order, c.ID)
			continue
		}
		c.Type = in.Type
		c.Members = append([]string(nil), in.Members...)
		c.DMKey = in.DMKey
		c.Muted = in.Muted
		c.Spam = in.Spam
		if !in.CreatedAt.IsZero() {
			c.CreatedAt = in.CreatedAt
		}
		if in.Last.At.After(c.Last.At) {
			c.Last = in.Last
			if c.ID != s.active && in.Unread > c.Unread {
				c.Unread = in.Unread
			}
		}
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		return activity(s.chats[s.order[i]]).After(activity(s.chats[s.order[j]]))
	})
}

func activity(c *models.Conversation) time.Time {
	if !c.Last.At.IsZero() {
		return c.Last.At
	}
	return c.CreatedAt
}

// MergeHistory merges a timeline snapshot for chatID. Messages already known
// locally are kept; new ones are inserted in timestamp order and claim any
// buffered receipts.
func (s *Store) MergeHistory(chatID string, msgs []models.Message) {
	if chatID == "" {
		return
	}
	idx := s.chatIndex(chatID)
	var added, confirmed []*models.Message
	for i := range msgs {
		in := msgs[i].Clone()
		if in.ID == "" {
			continue
		}
		in.ChatID = chatID
		if in.LocalStatus == "" {
			in.LocalStatus = models.LocalSent
		}
		in.DeliveryStatus = in.DeliveryStatus.Max(s.derivedStatus(&in))

		if existing, ok := idx[in.ID]; ok {
			existing.DeliveredTo = union(existing.DeliveredTo, in.DeliveredTo)
			existing.ReadBy = union(existing.ReadBy, in.ReadBy)
			if s.mine(existing) {
				existing.DeliveryStatus = existing.DeliveryStatus.Max(in.DeliveryStatus)
			}
			continue
		}
		if opt := s.matchOptimistic(chatID, "", &in); opt != nil {
			confirmed = append(confirmed, s.confirm(chatID, opt, &in))
			continue
		}
		s.claim(chatID, &in)
		m := in
		idx[m.ID] = &m
		added = append(added, &m)
	}
	if len(added) > 0 {
		tl := append(s.timelines[chatID], added...)
		sort.SliceStable(tl, func(i, j int) bool {
			return tl[i].CreatedAt.Before(tl[j].CreatedAt)
		})
		s.timelines[chatID] = tl
	}

	c, ok := s.chats[chatID]
	if !ok {
		return
	}
	var last *models.Message
	for _, m := range append(added, confirmed...) {
		if last == nil || m.CreatedAt.After(last.CreatedAt) {
			last = m
		}
	}
	if last != nil && !last.CreatedAt.Before(c.Last.At) {
		c.Last = s.preview(last)
	}
	// A confirmed send is live activity, as when the echo arrives first.
	if len(confirmed) > 0 {
		s.moveToFront(chatID)
	}
}

// derivedStatus is the delivery status a snapshot message implies through its
// receipt sets.
func (s *Store) derivedStatus(m *models.Message) models.DeliveryStatus {
	if !s.mine(m) {
		return models.Sent
	}
	for _, id := range m.ReadBy {
		if id != s.self {
			return models.Read
		}
	}
	for _, id := range m.DeliveredTo {
		if id != s.self {
			return models.Delivered
		}
	}
	return models.Sent
}

// SetActive makes chatID the active conversation. Activation acknowledges the
// whole conversation once and clears its unread counter; re-activating the
// already active conversation does nothing. An empty id deactivates.
func (s *Store) SetActive(chatID string) {
	if chatID == s.active {
		return
	}
	s.active = chatID
	if chatID == "" {
		return
	}
	s.markRead(chatID)
	s.ackedIn = s.epoch
	s.cmds.AckDeliveredAll(chatID)
	s.cmds.AckReadAll(chatID)
}

// SetVisible records whether the application is in the foreground. Read
// receipts are only sent while visible.
func (s *Store) SetVisible(visible bool) {
	if visible == s.visible {
		return
	}
	s.visible = visible
	if visible && s.active != "" {
		s.markRead(s.active)
		s.cmds.AckReadAll(s.active)
	}
}

func (s *Store) markRead(chatID string) {
	c, ok := s.chats[chatID]
	if !ok {
		return
	}
	c.Unread = 0
	if tl := s.timelines[chatID]; len(tl) > 0 {
		c.LastReadID = tl[len(tl)-1].ID
	} else if c.Last.MessageID != "" {
		c.LastReadID = c.Last.MessageID
	}
}

func (s *Store) Active() string { return s.active }

func (s *Store) Visible() bool { return s.visible }

// Self returns the local user id, empty until authenticated.
func (s *Store) Self() string { return s.self }

// Conversations returns copies of all conversations, most recent first.
func (s *Store) Conversations() []models.Conversation {
	out := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id].Clone())
	}
	return out
}

func (s *Store) Conversation(chatID string) (models.Conversation, bool) {
	c, ok := s.chats[chatID]
	if !ok {
		return models.Conversation{}, false
	}
	return c.Clone(), true
}

// Timeline returns copies of the messages of a conversation in display order.
func (s *Store) Timeline(chatID string) []models.Message {
	tl := s.timelines[chatID]
	out := make([]models.Message, len(tl))
	for i, m := range tl {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) UnreadTotal() int {
	total := 0
	for _, c := range s.chats {
		if !c.Muted {
			total += c.Unread
		}
	}
	return total
}

// PendingReceipts reports how many receipts are buffered for a conversation.
func (s *Store) PendingReceipts(chatID string) (delivered, read int) {
	return s.receipts.Pending(chatID)
}

// Reset forgets all state, for example when the user logs out.
func (s *Store) Reset() {
	s.order = nil
	s.chats = make(map[string]*models.Conversation)
	s.timelines = make(map[string][]*models.Message)
	s.index = make(map[string]map[string]*models.Message)
	s.receipts.Reset()
	s.denied = make(map[string]bool)
	s.self = ""
	s.active = ""
	s.epoch, s.ackedIn = 0, 0
}

// Denied reports whether the server refused to join us to chatID.
func (s *Store) Denied(chatID string) bool { return s.denied[chatID] }

// join subscribes to chatID unless the server already refused it.
func (s *Store) join(chatID string) {
	if !s.denied[chatID] {
		s.cmds.JoinChat(chatID)
	}
}

// rederive recomputes the status of own messages merged before the local
// user was known.
func (s *Store) rederive() {
	for chatID, tl := range s.timelines {
		c := s.chats[chatID]
		for _, m := range tl {
			if !s.mine(m) || m.Optimistic() {
				continue
			}
			m.DeliveryStatus = m.DeliveryStatus.Max(s.derivedStatus(m))
			if c != nil && c.Last.MessageID == m.ID {
				c.Last.Status = m.DeliveryStatus
			}
		}
	}
}

func (s *Store) chatIndex(chatID string) map[string]*models.Message {
	idx, ok := s.index[chatID]
	if !ok {
		idx = make(map[string]*models.Message)
		s.index[chatID] = idx
	}
	return idx
}

func (s *Store) mine(m *models.Message) bool {
	return s.self != "" && m.SenderID == s.self
}

func (s *Store) preview(m *models.Message) models.Preview {
	p := models.Preview{
		MessageID: m.ID,
		Text:      m.Text,
		At:        m.CreatedAt,
		SenderID:  m.SenderID,
		Status:    models.Sent,
	}
	if s.mine(m) {
		p.Status = m.DeliveryStatus
	}
	return p
}

// moveToFront puts chatID at the head of the conversation list.
func (s *Store) moveToFront(chatID string) {
	for i, id := range s.order {
		if id == chatID {
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = chatID
			return
		}
	}
	s.order = append([]string{chatID}, s.order...)
}

func union(a, b []string) []string {
	for _, v := range b {
		a = addUnique(a, v)
	}
	return a
}

func addUnique(set []string, v string) []string {
	if v == "" {
		return set
	}
	for _, x := range set {
		if x == v {
			return set
		}
	}
	return append(set, v)
}
