package store

import (
	"time"

	"github.com/cloudzz-dev/chatsync/internal/client/models"
	"github.com/cloudzz-dev/chatsync/internal/client/protocol"
)

// Handle applies one inbound event.
func (s *Store) Handle(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.AuthOK:
		self := string(e.UserID)
		changed := self != s.self
		s.self = self
		s.epoch++
		if changed {
			s.rederive()
		}
		for _, id := range s.order {
			s.join(id)
		}
	case protocol.JoinDenied:
		s.denied[string(e.ChatID)] = true
	case protocol.ChatCreated:
		s.chatCreated(e)
	case protocol.JoinedChat:
		// Acknowledgements sent before this authentication may have been lost
		// with the previous connection.
		if id := string(e.ChatID); id != "" && id == s.active && s.ackedIn != s.epoch {
			s.ackedIn = s.epoch
			s.cmds.AckDeliveredAll(id)
			if s.visible {
				s.cmds.AckReadAll(id)
			}
		}
	case protocol.MessageSent:
		s.messageSent(e)
	case protocol.MessageDelivered:
		s.applyReceipts(string(e.ChatID), []string{string(e.MessageID)}, string(e.DeliveredTo), models.Delivered)
	case protocol.MessagesDelivered:
		s.applyReceipts(string(e.ChatID), e.MessageIDs.Strings(), string(e.DeliveredTo), models.Delivered)
	case protocol.MessageRead:
		s.applyReceipts(string(e.ChatID), []string{string(e.MessageID)}, string(e.ReadBy), models.Read)
	case protocol.MessagesRead:
		s.applyReceipts(string(e.ChatID), e.MessageIDs.Strings(), string(e.ReadBy), models.Read)
	}
}

func (s *Store) chatCreated(e protocol.ChatCreated) {
	id := string(e.ID)
	denied := s.denied[id]
	delete(s.denied, id)
	if _, ok := s.chats[id]; ok {
		// A new membership lifts an earlier denial.
		if denied {
			s.cmds.JoinChat(id)
		}
		return
	}
	typ := models.Direct
	if e.ChatType == string(models.Group) {
		typ = models.Group
	}
	s.chats[id] = &models.Conversation{
		ID:        id,
		Type:      typ,
		Members:   e.Members.Strings(),
		DMKey:     e.DMKey,
		CreatedAt: e.CreatedAt.Time,
	}
	s.moveToFront(id)
	s.cmds.JoinChat(id)
	s.log.WithField("chat", id).Debug("conversation created")
}

func (s *Store) messageSent(e protocol.MessageSent) {
	chatID, id := string(e.ChatID), string(e.ID)
	idx := s.chatIndex(chatID)
	if _, dup := idx[id]; dup {
		return
	}

	in := &models.Message{
		ID:             id,
		ChatID:         chatID,
		SenderID:       string(e.SenderID),
		Type:           models.MessageType(e.MessageType),
		Text:           e.Text,
		CreatedAt:      e.CreatedAt.Time,
		LocalStatus:    models.LocalSent,
		DeliveryStatus: models.Sent,
	}
	if in.Type == "" {
		in.Type = models.Text
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now()
	}
	for _, a := range e.Attachments {
		in.Attachments = append(in.Attachments, models.Attachment{Kind: a.Kind, URL: a.URL})
	}

	var msg *models.Message
	if opt := s.matchOptimistic(chatID, e.ClientID, in); opt != nil {
		msg = s.confirm(chatID, opt, in)
	} else {
		s.claim(chatID, in)
		idx[id] = in
		s.timelines[chatID] = append(s.timelines[chatID], in)
		msg = in
	}

	c, ok := s.chats[chatID]
	if !ok {
		c = &models.Conversation{ID: chatID}
		s.chats[chatID] = c
		s.join(chatID)
	}
	s.moveToFront(chatID)
	c.Last = s.preview(msg)

	if s.mine(msg) {
		return
	}
	if chatID != s.active {
		c.Unread++
	}
	s.cmds.AckDelivered(chatID, id)
	if chatID == s.active && s.visible {
		s.cmds.AckRead(chatID, id)
		c.LastReadID = id
	}
}

// matchOptimistic finds the optimistic entry a confirmed message replaces. An
// echoed client id is authoritative; otherwise the oldest pending entry with the
// same sender and text inside the match window wins.
func (s *Store) matchOptimistic(chatID, clientID string, in *models.Message) *models.Message {
	if clientID != "" {
		if m, ok := s.index[chatID][clientID]; ok && m.Optimistic() && m.LocalStatus != models.LocalSent {
			return m
		}
	}
	for _, m := range s.timelines[chatID] {
		if !m.Optimistic() || m.LocalStatus != models.LocalSending {
			continue
		}
		if m.SenderID != in.SenderID || m.Text != in.Text {
			continue
		}
		if absDuration(in.CreatedAt.Sub(m.CreatedAt)) < s.window {
			return m
		}
	}
	return nil
}

// confirm replaces the optimistic entry opt with in, keeping its position.
func (s *Store) confirm(chatID string, opt, in *models.Message) *models.Message {
	idx := s.chatIndex(chatID)
	delete(idx, opt.ID)

	clientID := opt.ClientID
	*opt = *in
	opt.ClientID = clientID
	opt.LocalStatus = models.LocalSent
	opt.DeliveryStatus = opt.DeliveryStatus.Max(models.Sent)
	s.claim(chatID, opt)
	idx[opt.ID] = opt

	s.log.WithField("chat", chatID).WithField("client_id", clientID).WithField("id", opt.ID).Debug("optimistic message confirmed")
	return opt
}

// claim applies receipts that arrived before the message did.
func (s *Store) claim(chatID string, m *models.Message) {
	status, ok := s.receipts.Claim(chatID, m.ID)
	if ok && s.mine(m) {
		m.DeliveryStatus = m.DeliveryStatus.Max(status)
	}
}

func (s *Store) applyReceipts(chatID string, ids []string, userID string, status models.DeliveryStatus) {
	if chatID == "" {
		return
	}
	idx := s.index[chatID]
	for _, id := range ids {
		m, ok := idx[id]
		if !ok {
			continue
		}
		if status == models.Read {
			m.ReadBy = addUnique(m.ReadBy, userID)
		}
		m.DeliveredTo = addUnique(m.DeliveredTo, userID)
	}
	s.receipts.Apply(receiptView{s}, chatID, ids, status)
}

// receiptView exposes the timelines to the reconciler.
type receiptView struct{ s *Store }

func (v receiptView) Lookup(chatID, messageID string) (models.DeliveryStatus, bool, bool) {
	m, ok := v.s.index[chatID][messageID]
	if !ok {
		return 0, false, false
	}
	return m.DeliveryStatus, v.s.mine(m), true
}

func (v receiptView) SetStatus(chatID, messageID string, status models.DeliveryStatus) {
	m, ok := v.s.index[chatID][messageID]
	if !ok {
		return
	}
	m.DeliveryStatus = status
	if c, ok := v.s.chats[chatID]; ok && c.Last.MessageID == messageID {
		c.Last.Status = status
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
