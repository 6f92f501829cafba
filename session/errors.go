package session

import (
	"errors"
	"fmt"

	"github.com/agusx1211/hitlctl/model"
)

var (
	ErrBusy            = errors.New("session is not idle")
	ErrNoPending       = errors.New("no approval is pending")
	ErrClosed          = errors.New("session is closed")
	ErrEmptyInput      = errors.New("input text must not be empty")
	ErrUnknownToolCall = errors.New("tool call is not part of the pending approval")
)

// ProtocolAmbiguityError reports a suspension that arrived while another was
// still pending. Both are discarded and the session returns to idle.
type ProtocolAmbiguityError struct {
	Pending  *model.PendingApproval
	Incoming *model.PendingApproval
}

func (e *ProtocolAmbiguityError) Error() string {
	return fmt.Sprintf("protocol ambiguity: %s requested while %s is pending", describe(e.Incoming), describe(e.Pending))
}

func describe(p *model.PendingApproval) string {
	if p == nil {
		return "nothing"
	}
	return fmt.Sprintf("%q (%s)", p.Action, p.Source)
}
