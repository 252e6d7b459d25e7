package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/controldesk/controldesk/internal/control"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	highStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	filterOn   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238"))
)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	return s
}

func columns(width int) []table.Column {
	desc := width - 12 - 22 - 10 - 8 - 15 - 9 - 14
	if desc < 20 {
		desc = 20
	}
	return []table.Column{
		{Title: "ID", Width: 12},
		{Title: "Area", Width: 22},
		{Title: "Description", Width: desc},
		{Title: "Type", Width: 10},
		{Title: "Risk", Width: 8},
		{Title: "Status", Width: 15},
		{Title: "Progress", Width: 9},
	}
}

func toRows(rows []control.Row) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row{
			r.ID,
			r.Area,
			r.Description,
			string(r.Type),
			string(r.Risk),
			string(r.Status),
			progressBar(r.Progress),
		}
	}
	return out
}

// progressBar renders p (0-100) as five cells plus the percentage.
func progressBar(p int) string {
	filled := p / 20
	bar := make([]rune, 5)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}
	return string(bar) + " " + strconv.Itoa(p)
}
