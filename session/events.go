package session

import "github.com/agusx1211/hitlctl/model"

type EventType string

const (
	EventEntry   EventType = "entry"
	EventState   EventType = "state"
	EventPending EventType = "pending"
	EventError   EventType = "error"
)

// Event is one observable change of a session. Entry is set for EventEntry,
// Pending for EventPending, Err for EventError; State is always the state
// after the change.
type Event struct {
	Type     EventType
	ThreadID string
	State    model.SessionState
	Entry    *model.Entry
	Pending  *model.PendingApproval
	Err      error
}
