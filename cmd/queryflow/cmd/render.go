package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/randalmurphal/queryflow/pkg/queryflow"
)

var (
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#9CA3AF")
	colorBorder  = lipgloss.Color("#374151")

	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	sectionStyle = lipgloss.NewStyle().Bold(true)
)

func statusStyle(s queryflow.Status) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch s {
	case queryflow.StatusSucceeded:
		return style.Foreground(colorSuccess)
	case queryflow.StatusEmpty:
		return style.Foreground(colorWarning)
	default:
		return style.Foreground(colorError)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints a result as indented JSON or as a report.
func writeResult(w io.Writer, res *queryflow.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}
	_, err := io.WriteString(w, renderResult(res))
	return err
}

func renderResult(res *queryflow.Result) string {
	var b strings.Builder

	b.WriteString(statusStyle(res.Status).Render(string(res.Status)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  run %s, %d attempt(s)", res.RunID, res.RetryCount)))
	b.WriteString("\n")

	if res.Summary != "" {
		b.WriteString("\n" + res.Summary + "\n")
	}
	if res.Data != nil && len(res.Data.Columns) > 0 {
		b.WriteString("\n" + renderTable(res.Data) + "\n")
	}
	writeList(&b, "Recommendations", res.Recommendations)
	writeList(&b, "Next actions", res.NextActions)
	return b.String()
}

func renderTable(data *queryflow.Data) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(data.Columns...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, row := range data.Rows {
		cells := make([]string, len(data.Columns))
		for i, col := range data.Columns {
			cells[i] = formatCell(row[col])
		}
		t.Row(cells...)
	}
	return t.Render()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n" + sectionStyle.Render(title) + "\n")
	for _, item := range items {
		b.WriteString("  - " + item + "\n")
	}
}
