package render

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/agusx1211/hitlctl/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

var roleColors = map[model.Role]text.Colors{
	model.RoleUser:      {text.FgGreen, text.Bold},
	model.RoleAssistant: {text.FgCyan, text.Bold},
	model.RoleTool:      {text.FgYellow},
	model.RoleSystem:    {text.FgMagenta},
}

// Printer writes a conversation to a terminal one entry at a time. It is safe
// for concurrent use.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	width int
	color bool
}

func NewPrinter(out io.Writer, width int, color bool) *Printer {
	must(out != nil, "printer output must not be nil")
	if width <= 0 {
		width = defaultWidth
	}
	return &Printer{out: out, width: width, color: color}
}

func (p *Printer) paint(c text.Colors, s string) string {
	if !p.color {
		return s
	}
	return c.Sprint(s)
}

func label(e model.Entry) string {
	switch {
	case e.Role == model.RoleTool && e.ToolName != "":
		return "tool:" + e.ToolName
	case e.AgentName != "":
		return string(e.Role) + ":" + e.AgentName
	}
	return string(e.Role)
}

// Entry prints one entry as a labelled, wrapped block.
func (p *Printer) Entry(e model.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entry(e)
}

func (p *Printer) entry(e model.Entry) {
	head := p.paint(roleColors[e.Role], "["+label(e)+"]")
	fmt.Fprintln(p.out, head)
	for _, line := range wrapText(e.Content, p.width-2) {
		fmt.Fprintln(p.out, "  "+line)
	}
	for _, c := range e.ToolCalls {
		fmt.Fprintln(p.out, p.paint(text.Colors{text.FgYellow}, "  -> "+c.Name+" "+compactArgs(c.Args)))
	}
}

func (p *Printer) Entries(entries []model.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		p.entry(e)
	}
}

// State prints a one-line status for a session state change.
func (p *Printer) State(st model.SessionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.paint(text.Colors{text.Faint}, fmt.Sprintf("-- %s (%s)", st.Approval, st.Connection)))
}

// Pending prints the suspended action and the decisions available for it.
func (p *Printer) Pending(pa *model.PendingApproval) {
	if pa == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	title := "Approval required: " + pa.Action
	fmt.Fprintln(p.out, p.paint(text.Colors{text.FgHiRed, text.Bold}, title))
	if pa.Description != "" {
		for _, line := range wrapText(pa.Description, p.width-2) {
			fmt.Fprintln(p.out, "  "+line)
		}
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(p.out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Call", "Tool", "Args"})
	argsWidth := p.width - 40
	if argsWidth < 20 {
		argsWidth = 20
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: argsWidth},
	})
	for _, c := range pa.ToolCalls {
		tw.AppendRow(table.Row{truncateToWidth(c.ID, 24), c.Name, compactArgs(c.Args)})
	}
	_ = tw.Render()
	fmt.Fprintln(p.out, p.paint(text.Colors{text.Faint}, "  /approve  /reject [reason]  /edit [call-id] {json}"))
}

func (p *Printer) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.paint(text.Colors{text.FgRed}, "error: "+err.Error()))
}

// Line writes one unformatted line.
func (p *Printer) Line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "{" + strings.Join(keys, ",") + "}"
	}
	return string(b)
}

func visibleWidth(s string) int {
	return runewidth.StringWidth(ansiPattern.ReplaceAllString(s, ""))
}

// wrapText breaks s into lines no wider than width display cells, keeping
// existing newlines.
func wrapText(s string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var out []string
	for _, raw := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if visibleWidth(raw) <= width {
			out = append(out, raw)
			continue
		}
		var line strings.Builder
		w := 0
		for _, r := range raw {
			rw := runewidth.RuneWidth(r)
			if w+rw > width && w > 0 {
				out = append(out, strings.TrimRight(line.String(), " "))
				line.Reset()
				w = 0
				if r == ' ' {
					continue
				}
			}
			line.WriteRune(r)
			w += rw
		}
		out = append(out, line.String())
	}
	return out
}

func truncateToWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
