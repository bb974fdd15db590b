package monitor

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sweeney/fan-controller/internal/status"
)

type model struct {
	table table.Model
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Fans", Width: 24},
		{Title: "Speeds", Width: 20},
		{Title: "Bounces", Width: 10},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case []status.FanJSON:
		m.update(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

func (m *model) update(fans []status.FanJSON) {
	fans = slices.Clone(fans)
	slices.SortStableFunc(fans, func(a, b status.FanJSON) int {
		return strings.Compare(a.ID, b.ID)
	})

	rows := make([]table.Row, 0, len(fans))
	for _, f := range fans {
		name := f.ID
		if f.Label != "" {
			name = fmt.Sprintf("%s(%s)", f.ID, f.Label)
		}
		rows = append(rows, table.Row{
			name,
			fmt.Sprintf("%4d RPM (%3d%%)", f.RPM, f.Speed),
			fmt.Sprintf("%d", f.Bounces),
		})
	}

	m.table.SetRows(rows)
}
