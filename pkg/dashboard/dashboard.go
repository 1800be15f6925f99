// Package dashboard renders a live terminal view of the pull requests the
// bot is watching and the state it has projected for them.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Row is one pull request line in the dashboard.
type Row struct {
	Repo   string
	Number int
	Title  string
	Author string
	Labels []string
	Check  string
}

// Source provides dashboard snapshots.
type Source interface {
	Snapshot(ctx context.Context) ([]Row, error)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	footerStyle = lipgloss.NewStyle().Faint(true)
)

type rowsMsg struct {
	rows []Row
	err  error
}

type tickMsg time.Time

// Model is the bubbletea model of the dashboard.
type Model struct {
	source    Source
	table     table.Model
	interval  time.Duration
	lastErr   error
	updatedAt time.Time
	width     int
}

// NewModel creates a dashboard refreshing from source at the given interval.
func NewModel(source Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	columns := []table.Column{
		{Title: "PR", Width: 24},
		{Title: "Title", Width: 44},
		{Title: "Author", Width: 14},
		{Title: "Labels", Width: 28},
		{Title: "Check", Width: 12},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	return Model{source: source, table: t, interval: interval}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load, m.tick())
}

func (m Model) load() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, err := m.source.Snapshot(ctx)
	return rowsMsg{rows: rows, err: err}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(msg.Height - 6)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.load
		}

	case rowsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.updatedAt = time.Now()
			m.table.SetRows(toTableRows(msg.rows))
		}

	case tickMsg:
		return m, tea.Batch(m.load, m.tick())
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func toTableRows(rows []Row) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{
			fmt.Sprintf("%s#%d", r.Repo, r.Number),
			r.Title,
			r.Author,
			strings.Join(r.Labels, ", "),
			r.Check,
		})
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("jmerge - watched pull requests"))
	b.WriteString("\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", m.lastErr)))
		b.WriteString("\n")
	}
	footer := "q: quit  r: refresh"
	if !m.updatedAt.IsZero() {
		footer += "  updated " + m.updatedAt.Format("15:04:05")
	}
	b.WriteString(footerStyle.Render(footer))
	return b.String()
}
