package protocol

// Inbound event tags.
const (
	TypeWelcome           = "welcome"
	TypeAuthOK            = "auth_ok"
	TypeAuthError         = "auth_error"
	TypeJoinedChat        = "joined_chat"
	TypeJoinDenied        = "join_denied"
	TypeLeftChat          = "left_chat"
	TypeChatCreated       = "chat_created"
	TypeMessageSent       = "message_sent"
	TypeMessageDelivered  = "message_delivered"
	TypeMessagesDelivered = "messages_delivered"
	TypeMessageRead       = "message_read"
	TypeMessagesRead      = "messages_read"
	TypeTypingStart       = "typing_start"
	TypeTypingStop        = "typing_stop"
	TypePresenceState     = "presence_state"
	TypePresenceOnline    = "presence_online"
	TypePresenceOffline   = "presence_offline"
)

// Event is the closed set of server to client events. Consumers switch on the
// concrete type.
type Event interface {
	Type() string
	event()
}

type Welcome struct {
	Message string
}

type AuthOK struct {
	UserID ID `json:"userId"`
}

type AuthError struct {
	Reason string
}

type JoinedChat struct {
	ChatID ID `json:"chatId"`
}

type JoinDenied struct {
	ChatID ID     `json:"chatId"`
	Reason string `json:"reason"`
}

type LeftChat struct {
	ChatID ID `json:"chatId"`
}

type ChatCreated struct {
	ID        ID     `json:"id"`
	ChatType  string `json:"type"`
	Members   IDList `json:"members"`
	DMKey     string `json:"dmKey"`
	CreatedAt Time   `json:"createdAt"`
}

type Attachment struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type MessageSent struct {
	ID          ID           `json:"id"`
	ClientID    string       `json:"clientId"`
	ChatID      ID           `json:"chatId"`
	SenderID    ID           `json:"senderId"`
	MessageType string       `json:"type"`
	Text        string       `json:"text"`
	CreatedAt   Time         `json:"createdAt"`
	Attachments []Attachment `json:"attachments"`
}

type MessageDelivered struct {
	ChatID      ID `json:"chatId"`
	MessageID   ID `json:"messageId"`
	DeliveredTo ID `json:"deliveredTo"`
}

type MessagesDelivered struct {
	ChatID      ID     `json:"chatId"`
	MessageIDs  IDList `json:"messageIds"`
	DeliveredTo ID     `json:"deliveredTo"`
}

type MessageRead struct {
	ChatID    ID   `json:"chatId"`
	MessageID ID   `json:"messageId"`
	ReadBy    ID   `json:"readBy"`
	ReadAt    Time `json:"readAt"`
}

type MessagesRead struct {
	ChatID     ID     `json:"chatId"`
	MessageIDs IDList `json:"messageIds"`
	ReadBy     ID     `json:"readBy"`
	ReadAt     Time   `json:"readAt"`
}

type TypingStarted struct {
	ChatID ID `json:"chatId"`
	UserID ID `json:"userId"`
}

type TypingStopped struct {
	ChatID ID `json:"chatId"`
	UserID ID `json:"userId"`
}

type PresenceState struct {
	OnlineUserIDs IDList `json:"onlineUserIds"`
}

type PresenceOnline struct {
	UserID ID `json:"userId"`
}

type PresenceOffline struct {
	UserID ID `json:"userId"`
}

func (Welcome) Type() string           { return TypeWelcome }
func (AuthOK) Type() string            { return TypeAuthOK }
func (AuthError) Type() string         { return TypeAuthError }
func (JoinedChat) Type() string        { return TypeJoinedChat }
func (JoinDenied) Type() string        { return TypeJoinDenied }
func (LeftChat) Type() string          { return TypeLeftChat }
func (ChatCreated) Type() string       { return TypeChatCreated }
func (MessageSent) Type() string       { return TypeMessageSent }
func (MessageDelivered) Type() string  { return TypeMessageDelivered }
func (MessagesDelivered) Type() string { return TypeMessagesDelivered }
func (MessageRead) Type() string       { return TypeMessageRead }
func (MessagesRead) Type() string      { return TypeMessagesRead }
func (TypingStarted) Type() string     { return TypeTypingStart }
func (TypingStopped) Type() string     { return TypeTypingStop }
func (PresenceState) Type() string     { return TypePresenceState }
func (PresenceOnline) Type() string    { return TypePresenceOnline }
func (PresenceOffline) Type() string   { return TypePresenceOffline }

func (Welcome) event()           {}
func (AuthOK) event()            {}
func (AuthError) event()         {}
func (JoinedChat) event()        {}
func (JoinDenied) event()        {}
func (LeftChat) event()          {}
func (ChatCreated) event()       {}
func (MessageSent) event()       {}
func (MessageDelivered) event()  {}
func (MessagesDelivered) event() {}
func (MessageRead) event()       {}
func (MessagesRead) event()      {}
func (TypingStarted) event()     {}
func (TypingStopped) event()     {}
func (PresenceState) event()     {}
func (PresenceOnline) event()    {}
func (PresenceOffline) event()   {}
