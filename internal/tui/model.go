// Package tui is a terminal front end for the controls board.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/controldesk/controldesk/internal/board"
	"github.com/controldesk/controldesk/internal/control"
)

// resultMsg carries the outcome of a board operation run as a command.
type resultMsg struct {
	action string
	res    board.Result
}

// Model is the bubbletea model over a board.State.
type Model struct {
	ctx   context.Context
	board *board.State

	table     table.Model
	search    textinput.Model
	searching bool

	status   string
	statusOK bool
	busy     bool
	width    int
	height   int
}

// New builds the model. Board calls made by commands use ctx.
func New(ctx context.Context, b *board.State) Model {
	ti := textinput.New()
	ti.Placeholder = "id, area or description"
	ti.Prompt = "/ "
	ti.CharLimit = 120
	ti.SetValue(b.FilterState().Search)

	t := table.New(
		table.WithColumns(columns(120)),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	t.SetStyles(tableStyles())

	m := Model{ctx: ctx, board: b, table: t, search: ti, width: 120, height: 24}
	m.refresh()
	return m
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(ctx context.Context, b *board.State) error {
	p := tea.NewProgram(New(ctx, b), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(msg.Width))
		h := msg.Height - 9
		if h < 3 {
			h = 3
		}
		m.table.SetHeight(h)
		return m, nil

	case resultMsg:
		m.busy = false
		m.setStatus(msg.res)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.searching = false
		m.search.Blur()
		m.table.Focus()
		if msg.String() == "esc" {
			m.search.SetValue(m.board.FilterState().Search)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	q := m.search.Value()
	m.board.SetFilterState(control.FilterPatch{Search: &q})
	m.refresh()
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.searching = true
		m.table.Blur()
		return m, m.search.Focus()
	case "s":
		next := cycle(control.Statuses, m.board.FilterState().Status)
		m.board.SetFilterState(control.FilterPatch{Status: &next})
		m.refresh()
		return m, nil
	case "r":
		next := cycle(control.Risks, m.board.FilterState().Risk)
		m.board.SetFilterState(control.FilterPatch{Risk: &next})
		m.refresh()
		return m, nil
	case "t":
		next := cycle(control.Types, m.board.FilterState().Type)
		m.board.SetFilterState(control.FilterPatch{Type: &next})
		m.refresh()
		return m, nil
	case "f":
		frameworks := m.board.Frameworks()
		if len(frameworks) == 0 {
			return m, nil
		}
		next := cycle(frameworks, m.board.FilterState().Framework)
		m.board.SetFilterState(control.FilterPatch{Framework: &next})
		m.refresh()
		return m, nil
	case "c":
		m.board.ClearFilter()
		m.search.SetValue("")
		m.refresh()
		return m, nil
	case "a":
		id := m.selectedID()
		if id == "" || m.busy {
			return m, nil
		}
		m.busy = true
		m.status = "Advancing " + id + "..."
		return m, m.run("advance", func(ctx context.Context) board.Result {
			return m.board.AdvanceStatus(ctx, id)
		})
	case "R":
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.status = "Reloading..."
		return m, m.run("reload", m.board.Reload)
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) run(action string, fn func(context.Context) board.Result) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{action: action, res: fn(ctx)}
	}
}

func (m *Model) setStatus(res board.Result) {
	m.status = res.Message
	m.statusOK = res.OK
}

// refresh reloads the visible rows, keeping the cursor in range.
func (m *Model) refresh() {
	rows := toRows(m.board.Rows())
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m Model) selectedID() string {
	row := m.table.SelectedRow()
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

// cycle steps through "" and then each value in order.
func cycle[T ~string](values []T, current T) T {
	if current == "" {
		return values[0]
	}
	for i, v := range values {
		if v == current && i+1 < len(values) {
			return values[i+1]
		}
	}
	return ""
}

func (m Model) View() string {
	var b strings.Builder

	s := m.board.SummaryCounts()
	stat := func(label string, n int, style lipgloss.Style) string {
		return labelStyle.Render(label+" ") + style.Render(fmt.Sprint(n))
	}
	b.WriteString(titleStyle.Render("controldesk") + "  ")
	b.WriteString(strings.Join([]string{
		stat("Total", s.Total, valueStyle),
		stat("High risk", s.HighRisk, highStyle),
		stat("Completed", s.Completed, okStyle),
		stat("In progress", s.InProgress, valueStyle),
		stat("Not started", s.NotStarted, valueStyle),
	}, "   "))
	b.WriteString("\n")

	f := m.board.FilterState()
	b.WriteString(labelStyle.Render("Filter: "))
	if f.Empty() {
		b.WriteString(helpStyle.Render("none"))
	} else {
		var parts []string
		for _, p := range []struct{ k, v string }{
			{"status", string(f.Status)}, {"risk", string(f.Risk)}, {"type", string(f.Type)},
			{"framework", f.Framework}, {"search", f.Search},
		} {
			if strings.TrimSpace(p.v) != "" {
				parts = append(parts, p.k+"="+p.v)
			}
		}
		b.WriteString(filterOn.Render(strings.Join(parts, "  ")))
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("   %d of %d shown", len(m.table.Rows()), s.Total)))
	b.WriteString("\n")

	if m.searching {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}

	if len(m.table.Rows()) == 0 {
		b.WriteString(boxStyle.Render(helpStyle.Render("No controls match the current filter.")))
	} else {
		b.WriteString(boxStyle.Render(m.table.View()))
	}
	b.WriteString("\n")

	switch {
	case m.status == "":
	case m.busy:
		b.WriteString(labelStyle.Render(m.status))
	case m.statusOK:
		b.WriteString(okStyle.Render(m.status))
	default:
		b.WriteString(errStyle.Render(m.status))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("/ search  s status  r risk  t type  f framework  c clear  a advance  R reload  q quit"))
	return b.String()
}
