package dispatch

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/agusx1211/hitlctl/model"
	"github.com/agusx1211/hitlctl/stream"
)

func frame(data string) stream.Frame {
	return stream.Frame{Event: "updates", Data: json.RawMessage(data)}
}

func TestClassifyNonObjectIsIgnorable(t *testing.T) {
	for _, data := range []string{`[1,2]`, `"text"`, `42`, `null`} {
		got := Classify(frame(data))
		if len(got) != 1 {
			t.Fatalf("%s: expected one signal, got %#v", data, got)
		}
		if _, ok := got[0].(Ignorable); !ok {
			t.Fatalf("%s: expected Ignorable, got %#v", data, got[0])
		}
	}
}

func TestClassifyIgnoresOtherEvents(t *testing.T) {
	got := Classify(stream.Frame{Event: "metadata", Data: json.RawMessage(`{"run": {"run_id": "r1"}}`)})
	if len(got) != 1 {
		t.Fatalf("expected one signal, got %#v", got)
	}
	if _, ok := got[0].(Ignorable); !ok {
		t.Fatalf("expected Ignorable, got %#v", got[0])
	}
	if _, ok := Classify(stream.Frame{Data: json.RawMessage(`{"agent": {"final_answer": "x"}}`)})[0].(NodeUpdate); !ok {
		t.Fatal("frames without an event name are treated as updates")
	}
}

func TestClassifyKeepsWireOrder(t *testing.T) {
	got := Classify(frame(`{"zeta": {"a": 1}, "alpha": {"b": 2}, "mid": "text", "beta": {}}`))
	var nodes []string
	for _, s := range got {
		switch v := s.(type) {
		case NodeUpdate:
			nodes = append(nodes, v.Node)
		case Ignorable:
			nodes = append(nodes, "ignored:"+v.Node)
		}
	}
	want := []string{"zeta", "alpha", "ignored:mid", "beta"}
	if !reflect.DeepEqual(nodes, want) {
		t.Fatalf("want %v got %v", want, nodes)
	}
	if got[0].(NodeUpdate).Payload["a"] != json.Number("1") {
		t.Fatalf("numbers must be preserved as json.Number: %#v", got[0])
	}
}

func TestClassifyInterruptList(t *testing.T) {
	got := Classify(frame(`{"__interrupt__": [{"action":"router_decision_review","args":{"process":"Etch"},"description":"review"}, {"action":"second"}]}`))
	if len(got) != 1 {
		t.Fatalf("expected one signal, got %#v", got)
	}
	in, ok := got[0].(Interrupt)
	if !ok {
		t.Fatalf("expected Interrupt, got %#v", got[0])
	}
	if in.Request.Action != "router_decision_review" || in.Request.Dropped != 1 || in.Request.Description != "review" {
		t.Fatalf("unexpected request: %#v", in.Request)
	}
	p := in.Request.Pending()
	if p.Action != "router_decision_review" || p.Source != model.SourceInterrupt {
		t.Fatalf("unexpected pending: %#v", p)
	}
	if len(p.ToolCalls) != 1 || p.ToolCalls[0].Name != "Etch inspection" || p.ToolCalls[0].ID != "interrupt" {
		t.Fatalf("unexpected synthesized tool call: %#v", p.ToolCalls)
	}
	if p.ToolCalls[0].Args["process"] != "Etch" {
		t.Fatalf("tool call must carry interrupt args: %#v", p.ToolCalls[0].Args)
	}
}

func TestClassifyInterruptSingleObject(t *testing.T) {
	got := Classify(frame(`{"__interrupt__": {"args": {"request": "LOT-7"}}}`))
	in := got[0].(Interrupt)
	if in.Request.Dropped != 0 {
		t.Fatalf("single object must be treated as one-element list: %#v", in.Request)
	}
	p := in.Request.Pending()
	if p.Action != defaultInterruptAction || p.ToolCalls[0].Name != defaultInterruptAction {
		t.Fatalf("expected default action naming, got %#v", p)
	}
}

func TestClassifyInterruptWrappedValue(t *testing.T) {
	got := Classify(frame(`{"__interrupt__": [{"value": {"action": "review", "args": {"process": "CMP"}}, "id": "abc"}]}`))
	p := got[0].(Interrupt).Request.Pending()
	if p.Action != "review" || p.ToolCalls[0].Name != "CMP inspection" {
		t.Fatalf("wrapped interrupt value must be unwrapped: %#v", p)
	}
}

func TestClassifyEmptyInterrupt(t *testing.T) {
	got := Classify(frame(`{"__interrupt__": []}`))
	p := got[0].(Interrupt).Request.Pending()
	if p.Action != defaultInterruptAction || p.Args == nil {
		t.Fatalf("unexpected pending for empty interrupt: %#v", p)
	}
}

func TestClassifyMixedFrame(t *testing.T) {
	got := Classify(frame(`{"router": {"routing_decision": {"process": "photo"}}, "__interrupt__": [{"action": "x"}]}`))
	if len(got) != 2 {
		t.Fatalf("expected two signals, got %#v", got)
	}
	if _, ok := got[0].(NodeUpdate); !ok {
		t.Fatalf("expected node update first, got %#v", got[0])
	}
	if _, ok := got[1].(Interrupt); !ok {
		t.Fatalf("expected interrupt second, got %#v", got[1])
	}
}

func TestToolCallRequestPending(t *testing.T) {
	r := ToolCallRequest{Node: "agent", Content: "checking", Calls: []model.ToolCall{{ID: "tc1", Name: "inspect", Args: map[string]any{"x": 1}}}}
	p := r.Pending()
	if p.Action != "inspect" || p.Description != "checking" || p.Source != model.SourceToolCalls {
		t.Fatalf("unexpected pending: %#v", p)
	}
	p.ToolCalls[0].Args["x"] = 9
	if r.Calls[0].Args["x"] != 1 {
		t.Fatal("pending approval must not alias the request's args")
	}
}
