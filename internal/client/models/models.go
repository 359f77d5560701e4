package models

import (
	"time"
)

type ChatType string

const (
	Direct ChatType = "dm"
	Group  ChatType = "group"
)

type MessageType string

const (
	Text   MessageType = "text"
	Image  MessageType = "image"
	File   MessageType = "file"
	System MessageType = "system"
)

// LocalStatus is the client-side send state of a message.
type LocalStatus string

const (
	LocalSending LocalStatus = "sending"
	LocalSent    LocalStatus = "sent"
	LocalFailed  LocalStatus = "failed"
)

// DeliveryStatus only ever moves forward: Sending < Sent < Delivered < Read.
type DeliveryStatus int

const (
	Sending DeliveryStatus = iota
	Sent
	Delivered
	Read
)

func (s DeliveryStatus) String() string {
	switch s {
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Read:
		return "read"
	}
	return "unknown"
}

// Max returns the later of two statuses.
func (s DeliveryStatus) Max(o DeliveryStatus) DeliveryStatus {
	if o > s {
		return o
	}
	return s
}

type Attachment struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type Message struct {
	ID          string       `json:"id"`
	ClientID    string       `json:"client_id,omitempty"`
	ChatID      string       `json:"chat_id"`
	SenderID    string       `json:"sender_id"`
	Type        MessageType  `json:"type"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	DeliveredTo []string     `json:"delivered_to,omitempty"`
	ReadBy      []string     `json:"read_by,omitempty"`

	LocalStatus    LocalStatus    `json:"local_status"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
}

// Optimistic reports whether the message still carries its provisional id.
func (m *Message) Optimistic() bool {
	return m.ClientID != "" && m.ID == m.ClientID
}

// Clone returns a deep copy safe to hand out to readers.
func (m Message) Clone() Message {
	m.Attachments = append([]Attachment(nil), m.Attachments...)
	m.DeliveredTo = append([]string(nil), m.DeliveredTo...)
	m.ReadBy = append([]string(nil), m.ReadBy...)
	return m
}

// Preview is the last-message summary shown in a conversation list.
type Preview struct {
	MessageID string         `json:"message_id,omitempty"`
	Text      string         `json:"text"`
	At        time.Time      `json:"at"`
	SenderID  string         `json:"sender_id,omitempty"`
	Status    DeliveryStatus `json:"status"`
}

type Conversation struct {
	ID         string    `json:"id"`
	Type       ChatType  `json:"type"`
	Members    []string  `json:"members"`
	DMKey      string    `json:"dm_key,omitempty"`
	Muted      bool      `json:"muted"`
	Spam       bool      `json:"spam"`
	CreatedAt  time.Time `json:"created_at"`
	Last       Preview   `json:"last"`
	Unread     int       `json:"unread"`
	LastReadID string    `json:"last_read_id,omitempty"`
}

func (c Conversation) Clone() Conversation {
	c.Members = append([]string(nil), c.Members...)
	return c
}

type Member struct {
	ID          string `json:"id"`
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Name returns the best human-readable label for the member.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if m.UserName != "" {
		return m.UserName
	}
	return "New User"
}
