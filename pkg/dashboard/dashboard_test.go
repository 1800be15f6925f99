package dashboard

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	rows []Row
	err  error
}

func (s *staticSource) Snapshot(context.Context) ([]Row, error) {
	return s.rows, s.err
}

func sampleRows() []Row {
	return []Row{
		{Repo: "openjdk/jdk", Number: 42, Title: "8291234: Fix the widget", Author: "duke", Labels: []string{"rfr"}, Check: "SUCCESS"},
		{Repo: "openjdk/jdk", Number: 43, Title: "8291235: Break the widget", Author: "duke", Labels: []string{"merge-conflict"}, Check: "FAILURE"},
	}
}

func TestModelShowsRows(t *testing.T) {
	model := NewModel(&staticSource{rows: sampleRows()}, time.Minute)

	updated, _ := model.Update(rowsMsg{rows: sampleRows()})
	m, ok := updated.(Model)
	require.True(t, ok)

	view := m.View()
	assert.Contains(t, view, "openjdk/jdk#42")
	assert.Contains(t, view, "8291234: Fix the widget")
	assert.Contains(t, view, "SUCCESS")
}

func TestModelShowsError(t *testing.T) {
	model := NewModel(&staticSource{}, time.Minute)

	updated, _ := model.Update(rowsMsg{err: context.DeadlineExceeded})
	m := updated.(Model)

	assert.Contains(t, m.View(), "error:")
}

func TestModelQuits(t *testing.T) {
	model := NewModel(&staticSource{}, time.Minute)
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModelFooter(t *testing.T) {
	model := NewModel(&staticSource{}, time.Minute)
	view := model.View()
	assert.True(t, strings.Contains(view, "q: quit"))
}
