package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/agusx1211/hitlctl/model"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteThreads writes stored threads to w in the requested format.
func WriteThreads(w io.Writer, threads []*model.Thread, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return writeThreadsTable(w, threads)
	case "plain":
		return writeThreadsPlain(w, threads)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(threads)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeThreadsPlain(w io.Writer, threads []*model.Thread) error {
	for _, t := range threads {
		line := fmt.Sprintf("%s\t%s\t%d\t%s", formatMillis(t.UpdatedAt), t.ID, t.Entries, oneLine(t.Title))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeThreadsTable(w io.Writer, threads []*model.Thread) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 60},
	})
	tw.AppendHeader(table.Row{"Updated", "Thread", "Entries", "Title"})
	for _, t := range threads {
		tw.AppendRow(table.Row{formatMillis(t.UpdatedAt), t.ID, t.Entries, oneLine(t.Title)})
	}
	if len(threads) == 0 {
		tw.AppendRow(table.Row{"-", "(no threads)", 0, "-"})
	}
	_ = tw.Render()
	return nil
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
