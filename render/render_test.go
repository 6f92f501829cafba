package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/agusx1211/hitlctl/model"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

func sampleThreads() []*model.Thread {
	return []*model.Thread{
		{ID: "t-2", Title: "LOT-2024001 inspection", Entries: 4, UpdatedAt: 1700000100000},
		{ID: "t-1", Title: "line one\nline two", Entries: 1, UpdatedAt: 1700000000000},
	}
}

func TestWriteThreadsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteThreads(&buf, sampleThreads(), "table"); err != nil {
		t.Fatalf("write threads: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Thread", "t-2", "LOT-2024001 inspection", "line one\\nline two", "╭"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestWriteThreadsEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteThreads(&buf, nil, ""); err != nil {
		t.Fatalf("write threads: %v", err)
	}
	if !strings.Contains(buf.String(), "(no threads)") {
		t.Fatalf("expected placeholder row:\n%s", buf.String())
	}
}

func TestWriteThreadsPlainAndJSON(t *testing.T) {
	var plain bytes.Buffer
	if err := WriteThreads(&plain, sampleThreads(), "plain"); err != nil {
		t.Fatalf("write plain: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(plain.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "2023-11-14T22:15:00Z\tt-2\t4\t") {
		t.Fatalf("unexpected plain output: %q", plain.String())
	}

	var js bytes.Buffer
	if err := WriteThreads(&js, sampleThreads(), "JSON"); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var got []model.Thread
	if err := json.Unmarshal(js.Bytes(), &got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(got) != 2 || got[1].Title != "line one\nline two" {
		t.Fatalf("unexpected json threads: %#v", got)
	}

	if err := WriteThreads(&js, nil, "xml"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestPrinterEntryWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 20, false)
	p.Entry(model.Entry{
		Role:      model.RoleAssistant,
		AgentName: "router",
		Content:   "Process selected: **Etch** inspection needed",
		ToolCalls: []model.ToolCall{{ID: "c1", Name: "route", Args: map[string]any{"process": "Etch"}}},
	})
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colorless printer emitted escapes: %q", out)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "[assistant:router]" {
		t.Fatalf("unexpected label %q", lines[0])
	}
	if lines[len(lines)-1] != `  -> route {"process":"Etch"}` {
		t.Fatalf("unexpected tool call line %q", lines[len(lines)-1])
	}
	for _, l := range lines[1 : len(lines)-1] {
		if runewidth.StringWidth(l) > 20 {
			t.Fatalf("line %q exceeds width", l)
		}
	}
}

func TestPrinterColorsLabels(t *testing.T) {
	text.EnableColors()
	var buf bytes.Buffer
	NewPrinter(&buf, 80, true).Entry(model.Entry{Role: model.RoleTool, ToolName: "etch_check", Content: "ok"})
	out := buf.String()
	if !strings.Contains(out, "\x1b[") || !strings.Contains(out, "[tool:etch_check]") {
		t.Fatalf("expected colored tool label: %q", out)
	}
}

func TestPrinterPending(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, 80, false)
	p.Pending(&model.PendingApproval{
		Action:      "router_decision_review",
		Description: "Review routing",
		ToolCalls:   []model.ToolCall{{ID: "interrupt", Name: "Etch inspection", Args: map[string]any{"process": "Etch"}}},
	})
	out := buf.String()
	for _, want := range []string{"Approval required: router_decision_review", "Review routing", "Etch inspection", "/approve"} {
		if !strings.Contains(out, want) {
			t.Fatalf("pending output missing %q:\n%s", want, out)
		}
	}
	buf.Reset()
	p.Pending(nil)
	p.Error(errors.New("boom"))
	if buf.String() != "error: boom\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWrapText(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  []string
	}{
		{"short", 10, []string{"short"}},
		{"hello world again", 11, []string{"hello world", "again"}},
		{"a\nb", 10, []string{"a", "b"}},
		{"日本語テキスト", 6, []string{"日本語", "テキス", "ト"}},
	}
	for _, c := range cases {
		got := wrapText(c.in, c.width)
		if strings.Join(got, "|") != strings.Join(c.want, "|") {
			t.Fatalf("wrapText(%q, %d) = %q, want %q", c.in, c.width, got, c.want)
		}
	}
}

func TestTruncateToWidth(t *testing.T) {
	if got := truncateToWidth("call_0_router_decision", 10); got != "call_0_..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncateToWidth("short", 10); got != "short" {
		t.Fatalf("unexpected truncation %q", got)
	}
}

func TestShouldUseColorOnBuffer(t *testing.T) {
	if ShouldUseColor(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
	t.Setenv("COLUMNS", "42")
	if w := Width(&bytes.Buffer{}); w != 42 {
		t.Fatalf("expected COLUMNS fallback, got %d", w)
	}
	t.Setenv("COLUMNS", "")
	if w := Width(&bytes.Buffer{}); w != defaultWidth {
		t.Fatalf("expected default width, got %d", w)
	}
}
