package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownEvent = errors.New("unknown event")
)

type decoder func(data gjson.Result) (Event, error)

var decoders = map[string]decoder{
	TypeWelcome: func(data gjson.Result) (Event, error) {
		return Welcome{Message: data.String()}, nil
	},
	TypeAuthOK: object(func(e *AuthOK, _ gjson.Result) error {
		return need(e.UserID, "userId")
	}),
	TypeAuthError: func(data gjson.Result) (Event, error) {
		if data.IsObject() {
			reason := data.Get("reason").String()
			if reason == "" {
				reason = data.Get("message").String()
			}
			return AuthError{Reason: reason}, nil
		}
		return AuthError{Reason: data.String()}, nil
	},
	TypeJoinedChat: object(func(e *JoinedChat, _ gjson.Result) error {
		return need(e.ChatID, "chatId")
	}),
	TypeJoinDenied: object(func(e *JoinDenied, _ gjson.Result) error {
		return need(e.ChatID, "chatId")
	}),
	TypeLeftChat: object(func(e *LeftChat, _ gjson.Result) error {
		return need(e.ChatID, "chatId")
	}),
	TypeChatCreated: object(func(e *ChatCreated, data gjson.Result) error {
		if e.ID == "" {
			e.ID, _ = idFrom(data.Get("_id"))
		}
		return need(e.ID, "id")
	}),
	TypeMessageSent: object(func(e *MessageSent, data gjson.Result) error {
		if e.ID == "" {
			e.ID, _ = idFrom(data.Get("_id"))
		}
		if err := need(e.ID, "id"); err != nil {
			return err
		}
		if err := need(e.ChatID, "chatId"); err != nil {
			return err
		}
		return need(e.SenderID, "senderId")
	}),
	TypeMessageDelivered: object(func(e *MessageDelivered, _ gjson.Result) error {
		if err := need(e.ChatID, "chatId"); err != nil {
			return err
		}
		return need(e.MessageID, "messageId")
	}),
	TypeMessagesDelivered: object(func(e *MessagesDelivered, _ gjson.Result) error {
		return need(e.ChatID, "chatId")
	}),
	TypeMessageRead: object(func(e *MessageRead, _ gjson.Result) error {
		if err := need(e.ChatID, "chatId"); err != nil {
			return err
		}
		return need(e.MessageID, "messageId")
	}),
	TypeMessagesRead: object(func(e *MessagesRead, data gjson.Result) error {
		// Older servers put the reader in deliveredTo.
		if e.ReadBy == "" {
			e.ReadBy, _ = idFrom(data.Get("deliveredTo"))
		}
		return need(e.ChatID, "chatId")
	}),
	TypeTypingStart: object(func(e *TypingStarted, _ gjson.Result) error {
		if err := need(e.ChatID, "chatId"); err != nil {
			return err
		}
		return need(e.UserID, "userId")
	}),
	TypeTypingStop: object(func(e *TypingStopped, _ gjson.Result) error {
		if err := need(e.ChatID, "chatId"); err != nil {
			return err
		}
		return need(e.UserID, "userId")
	}),
	TypePresenceState: object[PresenceState](nil),
	TypePresenceOnline: object(func(e *PresenceOnline, _ gjson.Result) error {
		return need(e.UserID, "userId")
	}),
	TypePresenceOffline: object(func(e *PresenceOffline, _ gjson.Result) error {
		return need(e.UserID, "userId")
	}),
}

// object decodes an object payload into T and runs check on the result.
func object[T Event](check func(*T, gjson.Result) error) decoder {
	return func(data gjson.Result) (Event, error) {
		if !data.IsObject() {
			return nil, errors.New("payload is not an object")
		}
		var ev T
		if err := json.Unmarshal([]byte(data.Raw), &ev); err != nil {
			return nil, err
		}
		if check != nil {
			if err := check(&ev, data); err != nil {
				return nil, err
			}
		}
		return ev, nil
	}
}

func need(id ID, field string) error {
	if id == "" {
		return fmt.Errorf("missing %s", field)
	}
	return nil
}

// Decode parses one inbound frame of the form {"type": tag, "data": payload}.
func Decode(frame []byte) (Event, error) {
	if !gjson.ValidBytes(frame) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}
	tag := root.Get("type")
	if tag.Type != gjson.String || tag.Str == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	decode, ok := decoders[tag.Str]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, tag.Str)
	}
	ev, err := decode(root.Get("data"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, tag.Str, err)
	}
	return ev, nil
}

// wireCommand is the flat outbound frame shape shared by every command.
type wireCommand struct {
	Type      string `json:"type"`
	Token     string `json:"token,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Encode serialises an outbound command.
func Encode(cmd Command) ([]byte, error) {
	w := wireCommand{Type: cmd.Type()}
	switch c := cmd.(type) {
	case Auth:
		w.Token = c.Token
	case JoinChat:
		w.ChatID = c.ChatID
	case LeaveChat:
		w.ChatID = c.ChatID
	case AckDelivered:
		w.ChatID, w.MessageID = c.ChatID, c.MessageID
	case AckRead:
		w.ChatID, w.MessageID = c.ChatID, c.MessageID
	case AckDeliveredAll:
		w.ChatID = c.ChatID
	case AckReadAll:
		w.ChatID = c.ChatID
	case StartTyping:
		w.ChatID = c.ChatID
	case StopTyping:
		w.ChatID = c.ChatID
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
	return json.Marshal(w)
}
