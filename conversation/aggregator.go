package conversation

import (
	"strings"
	"time"

	"github.com/agusx1211/hitlctl/dispatch"
	"github.com/agusx1211/hitlctl/model"
	"github.com/google/uuid"
)

// Aggregator owns the ordered conversation log of one session and the buffer
// of partially streamed assistant text.
type Aggregator struct {
	entries []model.Entry
	buffer  strings.Builder
	now     func() time.Time
	newID   func() string
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithIDs(newID func() string) Option {
	return func(a *Aggregator) { a.newID = newID }
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(a)
	}
	must(a.now != nil, "aggregator clock must not be nil")
	must(a.newID != nil, "aggregator id source must not be nil")
	return a
}

// Restore replaces the log with previously persisted entries.
func (a *Aggregator) Restore(entries []model.Entry) {
	a.entries = make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		a.entries = append(a.entries, e.Clone())
	}
	a.buffer.Reset()
}

func (a *Aggregator) Append(role model.Role, content, agent string) model.Entry {
	must(role.Valid(), "entry role must be valid")
	return a.push(model.Entry{Role: role, Content: content, AgentName: agent})
}

// AppendToolCalls appends an assistant entry proposing calls, for requests
// that arrive outside a message.
func (a *Aggregator) AppendToolCalls(agent, content string, calls []model.ToolCall) model.Entry {
	must(len(calls) > 0, "proposed entry must carry tool calls")
	return a.push(model.Entry{Role: model.RoleAssistant, Content: content, AgentName: agent, ToolCalls: model.CloneToolCalls(calls)})
}

func (a *Aggregator) push(e model.Entry) model.Entry {
	if e.ID == "" {
		e.ID = a.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = a.now().UnixMilli()
	}
	a.entries = append(a.entries, e)
	return e.Clone()
}

// Apply appends the entries carried by one node update. Tool calls proposed
// on assistant messages are returned as suspensions for the caller.
func (a *Aggregator) Apply(u dispatch.NodeUpdate) []dispatch.Suspension {
	must(u.Payload != nil, "node update payload must not be nil")
	p := u.Payload
	var out []dispatch.Suspension

	final, hasFinal := nonEmptyString(p, "final_answer")
	if hasFinal {
		a.push(model.Entry{Role: model.RoleAssistant, Content: final, AgentName: u.Node})
	}
	if s, ok := nonEmptyString(p, "history_summary"); ok {
		a.push(model.Entry{Role: model.RoleAssistant, Content: s, AgentName: "history"})
	}
	if d, ok := p["routing_decision"].(map[string]any); ok {
		a.push(model.Entry{Role: model.RoleAssistant, Content: routingText(d), AgentName: "router"})
	}
	if s, ok := nonEmptyString(p, "process_result"); ok {
		a.push(model.Entry{Role: model.RoleAssistant, Content: s, AgentName: "process"})
	}
	if msgs, ok := p["messages"].([]any); ok {
		for _, m := range msgs {
			if req, ok := a.applyMessage(u.Node, m, hasFinal); ok {
				out = append(out, req)
			}
		}
	}
	if s, ok := p["delta"].(string); ok {
		a.buffer.WriteString(s)
	}
	return out
}

func (a *Aggregator) applyMessage(node string, raw any, hasFinal bool) (dispatch.Suspension, bool) {
	m, ok := parseMessage(raw)
	if !ok {
		return nil, false
	}
	switch m.role {
	case model.RoleAssistant:
		if len(m.calls) > 0 {
			a.push(model.Entry{Role: model.RoleAssistant, Content: m.content, AgentName: node, ToolCalls: model.CloneToolCalls(m.calls)})
			return dispatch.ToolCallRequest{Node: node, Content: m.content, Calls: m.calls}, true
		}
		if m.content != "" && !hasFinal {
			a.push(model.Entry{Role: model.RoleAssistant, Content: m.content, AgentName: node})
		}
	case model.RoleTool:
		a.push(model.Entry{Role: model.RoleTool, Content: m.content, ToolName: m.toolName})
	}
	return nil, false
}

// Flush moves buffered streamed text into one assistant entry.
func (a *Aggregator) Flush() (model.Entry, bool) {
	if a.buffer.Len() == 0 {
		return model.Entry{}, false
	}
	text := a.buffer.String()
	a.buffer.Reset()
	return a.push(model.Entry{Role: model.RoleAssistant, Content: text}), true
}

func (a *Aggregator) Buffered() string {
	return a.buffer.String()
}

func (a *Aggregator) DiscardBuffer() {
	a.buffer.Reset()
}

// EditToolCall replaces the arguments of the most recent entry embedding the
// tool call with the given id.
func (a *Aggregator) EditToolCall(id string, args map[string]any) bool {
	for i := len(a.entries) - 1; i >= 0; i-- {
		calls := a.entries[i].ToolCalls
		for j := range calls {
			if calls[j].ID != id {
				continue
			}
			next := model.CloneToolCalls(calls)
			next[j].Args = model.CloneArgs(args)
			a.entries[i].ToolCalls = next
			return true
		}
	}
	return false
}

func (a *Aggregator) Entries() []model.Entry {
	out := make([]model.Entry, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Clone()
	}
	return out
}

func (a *Aggregator) Len() int {
	return len(a.entries)
}

func nonEmptyString(p map[string]any, key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok && s != ""
}

// Since returns copies of the entries appended at or after index i.
func (a *Aggregator) Since(i int) []model.Entry {
	must(i >= 0 && i <= len(a.entries), "entry index must be within the log")
	out := make([]model.Entry, 0, len(a.entries)-i)
	for _, e := range a.entries[i:] {
		out = append(out, e.Clone())
	}
	return out
}
