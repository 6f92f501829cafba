package relay

import (
	"github.com/agusx1211/hitlctl/model"
	"github.com/agusx1211/hitlctl/session"
)

// Message is one websocket frame in either direction.
type Message struct {
	Type   string `json:"type"`
	Thread string `json:"thread,omitempty"`

	// Operator commands.
	Text       string         `json:"text,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`

	// Session updates.
	Command string                 `json:"command,omitempty"`
	State   *model.SessionState    `json:"state,omitempty"`
	Entry   *model.Entry           `json:"entry,omitempty"`
	Entries []model.Entry          `json:"entries,omitempty"`
	Pending *model.PendingApproval `json:"pending,omitempty"`
	Message string                 `json:"message,omitempty"`
}

const (
	TypeSend    = "send"
	TypeApprove = "approve"
	TypeReject  = "reject"
	TypeEdit    = "edit"
	TypePing    = "ping"

	TypeSnapshot = "snapshot"
	TypeAck      = "ack"
	TypePong     = "pong"
	TypeError    = "error"
)

// Decision is the body of a decision request.
type Decision struct {
	Type       string         `json:"type"`
	Message    string         `json:"message,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
}

func snapshotMessage(s *session.Session) Message {
	st := s.State()
	return Message{
		Type:    TypeSnapshot,
		Thread:  s.ThreadID(),
		State:   &st,
		Entries: s.Entries(),
		Pending: s.Pending(),
	}
}

func eventMessage(ev session.Event) Message {
	st := ev.State
	m := Message{Type: string(ev.Type), Thread: ev.ThreadID, State: &st, Entry: ev.Entry, Pending: ev.Pending}
	if ev.Err != nil {
		m.Message = ev.Err.Error()
	}
	return m
}
