package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/agusx1211/hitlctl/model"
	"github.com/agusx1211/hitlctl/runtime"
)

const rejectToolCallID = "__reject__"

func decisionNote(p *model.PendingApproval, r runtime.Resume, toolCallID string) string {
	switch r.Type {
	case runtime.DecisionApprove:
		return fmt.Sprintf("Approved: %s", p.Action)
	case runtime.DecisionReject:
		return fmt.Sprintf("Rejected: %s", r.Message)
	case runtime.DecisionEdit:
		name := toolCallID
		for _, tc := range p.ToolCalls {
			if tc.ID == toolCallID {
				name = tc.Name
			}
		}
		args, err := json.Marshal(r.Args)
		if err != nil {
			return fmt.Sprintf("Edited: %s", name)
		}
		return fmt.Sprintf("Edited: %s %s", name, args)
	}
	return string(r.Type)
}

// statePatch builds the thread-state write that carries a decision for
// runtimes whose resume value cannot. Approvals need none.
func (s *Session) statePatch(ctx context.Context, p *model.PendingApproval, r runtime.Resume, toolCallID string) (*runtime.StatePatch, error) {
	switch r.Type {
	case runtime.DecisionReject:
		return &runtime.StatePatch{Values: map[string]any{"messages": rejectMessages(p, r.Message)}, AsNode: s.rt.AsNode}, nil
	case runtime.DecisionEdit:
		if p.Source == model.SourceInterrupt {
			return &runtime.StatePatch{Values: map[string]any{s.editStateKey(): model.CloneArgs(r.Args)}, AsNode: s.rt.AsNode}, nil
		}
		st, err := s.tr.GetState(ctx, s.threadID)
		if err != nil {
			return nil, fmt.Errorf("read thread state: %w", err)
		}
		msg := lastToolCallMessage(st.Values)
		if msg == nil {
			log.Printf("[session] thread=%s no assistant message with tool calls in state, edit not patched", s.threadID)
			return nil, nil
		}
		if !setToolCallArgs(msg, toolCallID, r.Args) {
			log.Printf("[session] thread=%s tool call %q not found in state, edit not patched", s.threadID, toolCallID)
			return nil, nil
		}
		return &runtime.StatePatch{Values: map[string]any{"messages": []any{msg}}, AsNode: s.rt.AsNode}, nil
	}
	return nil, nil
}

func (s *Session) editStateKey() string {
	if s.rt.EditStateKey == "" {
		return "routing_decision"
	}
	return s.rt.EditStateKey
}

func rejectMessages(p *model.PendingApproval, reason string) []any {
	content := "REJECTED: " + reason
	if p.Source != model.SourceToolCalls {
		return []any{map[string]any{"role": "tool", "content": content, "tool_call_id": rejectToolCallID}}
	}
	out := make([]any, 0, len(p.ToolCalls))
	for _, tc := range p.ToolCalls {
		out = append(out, map[string]any{"role": "tool", "content": content, "tool_call_id": tc.ID, "name": tc.Name})
	}
	return out
}

func lastToolCallMessage(values map[string]any) map[string]any {
	msgs, _ := values["messages"].([]any)
	for i := len(msgs) - 1; i >= 0; i-- {
		m, ok := msgs[i].(map[string]any)
		if !ok {
			continue
		}
		kind, _ := m["role"].(string)
		if kind == "" {
			kind, _ = m["type"].(string)
		}
		if kind != "assistant" && kind != "ai" {
			continue
		}
		if calls, ok := m["tool_calls"].([]any); ok && len(calls) > 0 {
			return m
		}
	}
	return nil
}

// setToolCallArgs rewrites the arguments of one call in place, keeping the
// message's own tool call format.
func setToolCallArgs(msg map[string]any, id string, args map[string]any) bool {
	calls, _ := msg["tool_calls"].([]any)
	for _, c := range calls {
		tc, ok := c.(map[string]any)
		if !ok || tc["id"] != id {
			continue
		}
		if fn, ok := tc["function"].(map[string]any); ok {
			b, err := json.Marshal(args)
			if err != nil {
				return false
			}
			fn["arguments"] = string(b)
			return true
		}
		tc["args"] = model.CloneArgs(args)
		return true
	}
	return false
}
