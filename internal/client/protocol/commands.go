package protocol

// Outbound command tags.
const (
	TypeAuth            = "auth"
	TypeJoinChat        = "join_chat"
	TypeLeaveChat       = "leave_chat"
	TypeAckDelivered    = "ack_delivered"
	TypeAckRead         = "ack_read"
	TypeAckDeliveredAll = "ack_delivered_all"
	TypeAckReadAll      = "ack_read_all"
	TypeTypingStartCmd  = "typing_start"
	TypeTypingStopCmd   = "typing_stop"
)

// Command is the closed set of client to server commands.
type Command interface {
	Type() string
	command()
}

type Auth struct{ Token string }

type JoinChat struct{ ChatID string }

type LeaveChat struct{ ChatID string }

type AckDelivered struct{ ChatID, MessageID string }

type AckRead struct{ ChatID, MessageID string }

type AckDeliveredAll struct{ ChatID string }

type AckReadAll struct{ ChatID string }

type StartTyping struct{ ChatID string }

type StopTyping struct{ ChatID string }

func (Auth) Type() string            { return TypeAuth }
func (JoinChat) Type() string        { return TypeJoinChat }
func (LeaveChat) Type() string       { return TypeLeaveChat }
func (AckDelivered) Type() string    { return TypeAckDelivered }
func (AckRead) Type() string         { return TypeAckRead }
func (AckDeliveredAll) Type() string { return TypeAckDeliveredAll }
func (AckReadAll) Type() string      { return TypeAckReadAll }
func (StartTyping) Type() string     { return TypeTypingStartCmd }
func (StopTyping) Type() string      { return TypeTypingStopCmd }

func (Auth) command()            {}
func (JoinChat) command()        {}
func (LeaveChat) command()       {}
func (AckDelivered) command()    {}
func (AckRead) command()         {}
func (AckDeliveredAll) command() {}
func (AckReadAll) command()      {}
func (StartTyping) command()     {}
func (StopTyping) command()      {}
