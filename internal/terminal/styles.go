package terminal

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	emerald = lipgloss.Color("#34d399")
	amber   = lipgloss.Color("#fbbf24")
	rose    = lipgloss.Color("#f43f5e")
	slate   = lipgloss.Color("#64748b")
	light   = lipgloss.Color("#e2e8f0")
)

// Styles holds the REPL styles, bound to the output's color profile.
type Styles struct {
	Title  lipgloss.Style
	User   lipgloss.Style
	System lipgloss.Style
	Error  lipgloss.Style
	Muted  lipgloss.Style
	Badge  lipgloss.Style
	Bold   lipgloss.Style
	Cell   lipgloss.Style
	Accent lipgloss.Style
}

// NewStyles builds styles for out. Writers that are not terminals get no
// color.
func NewStyles(out io.Writer) Styles {
	r := lipgloss.NewRenderer(out)
	return Styles{
		Title:  r.NewStyle().Bold(true).Foreground(emerald),
		User:   r.NewStyle().Foreground(emerald),
		System: r.NewStyle().Foreground(light),
		Error:  r.NewStyle().Foreground(rose).Bold(true),
		Muted:  r.NewStyle().Foreground(slate),
		Badge:  r.NewStyle().Foreground(amber),
		Bold:   r.NewStyle().Bold(true),
		Cell:   r.NewStyle(),
		Accent: r.NewStyle().Foreground(amber),
	}
}

// table renders headers and rows as padded columns.
func table(s Styles, headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	header := s.Bold.Padding(0, 1)
	cell := s.Cell.Padding(0, 1)
	sep := s.Muted.Render("|")

	var sb strings.Builder
	for i, h := range headers {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(header.Width(widths[i]).Render(h))
	}
	sb.WriteString("\n")

	total := len(headers) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(s.Muted.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range rows {
		for i := range headers {
			if i > 0 {
				sb.WriteString(sep)
			}
			v := ""
			if i < len(row) {
				v = row[i]
			}
			sb.WriteString(cell.Width(widths[i]).Render(v))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
