package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agusx1211/hitlctl/model"
)

type message struct {
	role     model.Role
	content  string
	toolName string
	calls    []model.ToolCall
}

// parseMessage accepts both the LangChain serialization (type: ai/tool) and
// the OpenAI one (role: assistant/tool).
func parseMessage(raw any) (message, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return message{}, false
	}
	kind, _ := m["role"].(string)
	if kind == "" {
		kind, _ = m["type"].(string)
	}
	var out message
	switch strings.ToLower(kind) {
	case "assistant", "ai", "aimessage":
		out.role = model.RoleAssistant
	case "tool", "toolmessage":
		out.role = model.RoleTool
	default:
		return message{}, false
	}
	out.content = messageContent(m["content"])
	if out.role == model.RoleTool {
		out.toolName, _ = m["name"].(string)
		return out, true
	}
	if calls, ok := m["tool_calls"].([]any); ok {
		out.calls = parseToolCalls(calls)
	}
	return out, true
}

func messageContent(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, block := range c {
			switch blk := block.(type) {
			case string:
				b.WriteString(blk)
			case map[string]any:
				if t, _ := blk["type"].(string); t != "" && t != "text" {
					continue
				}
				s, _ := blk["text"].(string)
				b.WriteString(s)
			}
		}
		return b.String()
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(data)
	}
}

func parseToolCalls(raw []any) []model.ToolCall {
	out := make([]model.ToolCall, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		tc := model.ToolCall{}
		tc.ID, _ = m["id"].(string)
		if fn, ok := m["function"].(map[string]any); ok {
			tc.Name, _ = fn["name"].(string)
			tc.Args = decodeArguments(fn["arguments"])
		} else {
			tc.Name, _ = m["name"].(string)
			tc.Args = decodeArguments(m["args"])
		}
		if tc.Name == "" {
			continue
		}
		if tc.ID == "" || seen[tc.ID] {
			tc.ID = fmt.Sprintf("call_%d_%s", i, tc.Name)
		}
		seen[tc.ID] = true
		out = append(out, tc)
	}
	return out
}

func decodeArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		return a
	case string:
		if strings.TrimSpace(a) == "" {
			return map[string]any{}
		}
		dec := json.NewDecoder(strings.NewReader(a))
		dec.UseNumber()
		var out map[string]any
		if err := dec.Decode(&out); err != nil || out == nil {
			return map[string]any{"raw": a}
		}
		return out
	default:
		return map[string]any{}
	}
}

func routingText(d map[string]any) string {
	process := fmt.Sprint(d["process"])
	if d["process"] == nil {
		process = "unknown"
	}
	text := fmt.Sprintf("Process selected: **%s**", process)
	if reason, ok := d["reason"].(string); ok && reason != "" {
		text += " — " + reason
	}
	return text
}
