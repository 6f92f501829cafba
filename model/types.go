package model

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

type ApprovalState string

const (
	StateIdle             ApprovalState = "idle"
	StateRunning          ApprovalState = "running"
	StateAwaitingApproval ApprovalState = "awaiting_approval"
)

type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnStreaming    ConnectionStatus = "streaming"
)

// SuspensionSource names the signalling convention that produced a pending approval.
type SuspensionSource string

const (
	SourceInterrupt SuspensionSource = "interrupt"
	SourceToolCalls SuspensionSource = "tool_calls"
)

type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Entry is one line of the visible conversation. Timestamp is Unix milliseconds.
type Entry struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	AgentName string     `json:"agent_name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

type PendingApproval struct {
	Action      string           `json:"action"`
	Args        map[string]any   `json:"args"`
	Description string           `json:"description"`
	ToolCalls   []ToolCall       `json:"tool_calls"`
	Source      SuspensionSource `json:"source"`
}

type SessionState struct {
	ThreadID   string           `json:"thread_id"`
	Connection ConnectionStatus `json:"connection"`
	Approval   ApprovalState    `json:"approval"`
}

type Thread struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Entries   int    `json:"entries"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

func (e Entry) Clone() Entry {
	out := e
	out.ToolCalls = CloneToolCalls(e.ToolCalls)
	return out
}

func (p *PendingApproval) Clone() *PendingApproval {
	if p == nil {
		return nil
	}
	out := *p
	out.Args = CloneArgs(p.Args)
	out.ToolCalls = CloneToolCalls(p.ToolCalls)
	return &out
}

func CloneToolCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{ID: c.ID, Name: c.Name, Args: CloneArgs(c.Args)}
	}
	return out
}

func CloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneArgs(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

func (e Entry) MarshalToolCalls() (string, error) {
	if len(e.ToolCalls) == 0 {
		return "", nil
	}
	b, err := json.Marshal(e.ToolCalls)
	if err != nil {
		return "", fmt.Errorf("marshal tool calls: %w", err)
	}
	return string(b), nil
}

func UnmarshalToolCalls(s string) ([]ToolCall, error) {
	if s == "" {
		return nil, nil
	}
	var out []ToolCall
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("unmarshal tool calls: %w", err)
	}
	return out, nil
}
