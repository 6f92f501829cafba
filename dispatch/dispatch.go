package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/agusx1211/hitlctl/stream"
)

// Entry is one node output in wire order.
type Entry struct {
	Node  string
	Value any
}

// UpdatesEvent is the only frame event that carries node outputs.
const UpdatesEvent = "updates"

// Classify turns one frame into signals, one per node entry, in the order
// the entries appear on the wire. Frames of other events (metadata, values)
// are ignorable.
func Classify(f stream.Frame) []Signal {
	if f.Event != "" && f.Event != UpdatesEvent {
		return []Signal{Ignorable{Reason: "event " + f.Event + " carries no node outputs"}}
	}
	entries, err := NodeOutputs(f.Data)
	if err != nil {
		return []Signal{Ignorable{Reason: err.Error()}}
	}
	out := make([]Signal, 0, len(entries))
	for _, e := range entries {
		out = append(out, classifyEntry(e))
	}
	return out
}

func classifyEntry(e Entry) Signal {
	if e.Node == InterruptNode {
		return Interrupt{Request: interruptRequest(e.Value)}
	}
	payload, ok := e.Value.(map[string]any)
	if !ok {
		return Ignorable{Node: e.Node, Reason: "node payload is not an object"}
	}
	return NodeUpdate{Node: e.Node, Payload: payload}
}

func interruptRequest(v any) InterruptRequest {
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	if len(items) == 0 {
		return InterruptRequest{}
	}
	r := InterruptRequest{Dropped: len(items) - 1}
	first := items[0]
	// Unwrapped runtimes send Interrupt objects as {value, id}.
	if m, ok := first.(map[string]any); ok && m["action"] == nil {
		if inner, ok := m["value"].(map[string]any); ok {
			first = inner
		}
	}
	switch first := first.(type) {
	case map[string]any:
		r.Action, _ = first["action"].(string)
		r.Description, _ = first["description"].(string)
		if args, ok := first["args"].(map[string]any); ok {
			r.Args = args
		}
	case string:
		r.Description = first
	}
	return r
}

var errNotObject = errors.New("frame payload is not an object")

// NodeOutputs decodes a JSON object into its entries, keeping key order.
// Numbers are kept as json.Number.
func NodeOutputs(data []byte) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode node outputs: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}
	var out []Entry
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode node key: %w", err)
		}
		key, ok := kt.(string)
		must(ok, "object key token must be a string")
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode node %q: %w", key, err)
		}
		out = append(out, Entry{Node: key, Value: v})
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode node outputs: %w", err)
	}
	return out, nil
}
