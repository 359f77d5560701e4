package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudzz-dev/chatsync/internal/client/models"
)

// Send appends an optimistic text message to chatID and submits it to the
// backend in the background. It returns the provisional id of the entry.
func (s *Store) Send(ctx context.Context, chatID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if s.self == "" {
		return "", ErrUnknownSender
	}

	id := s.newID()
	m := &models.Message{
		ID:             id,
		ClientID:       id,
		ChatID:         chatID,
		SenderID:       s.self,
		Type:           models.Text,
		Text:           text,
		CreatedAt:      s.now(),
		LocalStatus:    models.LocalSending,
		DeliveryStatus: models.Sending,
	}
	s.chatIndex(chatID)[id] = m
	s.timelines[chatID] = append(s.timelines[chatID], m)

	s.submit(ctx, m)
	return id, nil
}

// Retry re-submits a failed message under its original provisional id.
func (s *Store) Retry(ctx context.Context, chatID, clientID string) error {
	m, ok := s.index[chatID][clientID]
	if !ok || !m.Optimistic() || m.LocalStatus != models.LocalFailed {
		return fmt.Errorf("retry %s: %w", clientID, ErrNotRetryable)
	}
	m.LocalStatus = models.LocalSending
	m.DeliveryStatus = models.Sending
	// The confirmation is matched against the time of this attempt.
	m.CreatedAt = s.now()

	s.submit(ctx, m)
	return nil
}

func (s *Store) submit(ctx context.Context, m *models.Message) {
	chatID, clientID, text, typ := m.ChatID, m.ClientID, m.Text, m.Type
	s.loop.Go(func() {
		err := s.sender.SendMessage(ctx, chatID, clientID, text, typ)
		s.loop.Post(func() { s.sendDone(chatID, clientID, err) })
	})
}

func (s *Store) sendDone(chatID, clientID string, err error) {
	log := s.log.WithField("chat", chatID).WithField("client_id", clientID)
	if err == nil {
		log.Debug("message accepted by backend")
		return
	}
	m, ok := s.index[chatID][clientID]
	if !ok || m.LocalStatus != models.LocalSending {
		// Already confirmed by the real-time stream.
		log.WithError(err).Warn("send reported failure for a settled message")
		return
	}
	m.LocalStatus = models.LocalFailed
	m.DeliveryStatus = models.Sent
	log.WithError(err).Warn("message send failed")
}
