package audit

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobsweep/internal/model"
)

// Picker results other than a source index.
const (
	PickNone = -1
	PickQuit = -2
)

var (
	pickerHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	pickerColumnStyle  = lipgloss.NewStyle().Foreground(muted)
	pickerCursorStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	pickerHintStyle    = lipgloss.NewStyle().Foreground(muted).MarginTop(1)
)

// SourceItem is one row of the source picker.
type SourceItem struct {
	Name   string
	Kind   string
	Counts model.LedgerCount
}

type pickerModel struct {
	sources []SourceItem
	cursor  int
	chosen  int
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.chosen = PickQuit
		return m, tea.Quit
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.sources)-1), 0)
	case "enter":
		if len(m.sources) > 0 {
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	nameWidth := len("source")
	for _, s := range m.sources {
		nameWidth = max(nameWidth, len(s.Name))
	}
	row := func(name, kind string, total, blocked, enriched, pending any) string {
		return fmt.Sprintf("%-*s  %-12s %7v %8v %9v %8v", nameWidth, name, kind, total, blocked, enriched, pending)
	}

	var b strings.Builder
	b.WriteString(pickerHeadingStyle.Render("jobsweep ledger audit") + "\n")
	b.WriteString("  " + pickerColumnStyle.Render(row("source", "kind", "rows", "blocked", "enriched", "pending")) + "\n")
	for i, s := range m.sources {
		c := s.Counts
		line := row(s.Name, s.Kind, c.Total, c.Blocked, c.Enriched, c.Pending)
		if i == m.cursor {
			b.WriteString(pickerCursorStyle.Render("▸ "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString(pickerHintStyle.Render("j/k move  enter open  q quit"))
	return b.String()
}

// RunSourcePicker asks the user to pick one of sources. It returns the
// chosen index, or PickQuit when the user left without choosing.
func RunSourcePicker(sources []SourceItem) (int, error) {
	result, err := tea.NewProgram(pickerModel{sources: sources, chosen: PickNone}).Run()
	if err != nil {
		return PickNone, err
	}
	return result.(pickerModel).chosen, nil
}
