package dispatch

import (
	"fmt"

	"github.com/agusx1211/hitlctl/model"
)

// InterruptNode is the reserved node key carrying suspension requests.
const InterruptNode = "__interrupt__"

const (
	defaultInterruptAction = "router_decision_review"
	interruptToolCallID    = "interrupt"
)

// Signal is the classification of one node entry of a frame.
type Signal interface {
	signal()
}

type Interrupt struct {
	Request InterruptRequest
}

type NodeUpdate struct {
	Node    string
	Payload map[string]any
}

type Ignorable struct {
	Node   string
	Reason string
}

func (Interrupt) signal()  {}
func (NodeUpdate) signal() {}
func (Ignorable) signal()  {}

// Suspension is a request for operator input. The runtime uses two
// conventions: an explicit interrupt node, or tool calls proposed on an
// assistant message.
type Suspension interface {
	suspension()
	Pending() *model.PendingApproval
}

type InterruptRequest struct {
	Action      string
	Description string
	Args        map[string]any
	// Dropped counts further requests in the same interrupt; only the first is active.
	Dropped int
}

type ToolCallRequest struct {
	Node    string
	Content string
	Calls   []model.ToolCall
}

func (InterruptRequest) suspension() {}
func (ToolCallRequest) suspension()  {}

func (r InterruptRequest) Pending() *model.PendingApproval {
	action := r.Action
	if action == "" {
		action = defaultInterruptAction
	}
	args := model.CloneArgs(r.Args)
	if args == nil {
		args = map[string]any{}
	}
	name := action
	if p, ok := args["process"].(string); ok && p != "" {
		name = fmt.Sprintf("%s inspection", p)
	}
	return &model.PendingApproval{
		Action:      action,
		Args:        args,
		Description: r.Description,
		ToolCalls:   []model.ToolCall{{ID: interruptToolCallID, Name: name, Args: model.CloneArgs(args)}},
		Source:      model.SourceInterrupt,
	}
}

func (r ToolCallRequest) Pending() *model.PendingApproval {
	must(len(r.Calls) > 0, "tool call request must carry calls")
	first := r.Calls[0]
	return &model.PendingApproval{
		Action:      first.Name,
		Args:        model.CloneArgs(first.Args),
		Description: r.Content,
		ToolCalls:   model.CloneToolCalls(r.Calls),
		Source:      model.SourceToolCalls,
	}
}
