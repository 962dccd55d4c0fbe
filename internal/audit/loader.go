package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobsweep/internal/model"
)

// loadTimeout bounds a single ledger read behind the spinner.
const loadTimeout = time.Minute

var errLoadCancelled = errors.New("load cancelled")

type loadDoneMsg struct {
	entries []Entry
	err     error
}

type loaderModel struct {
	label   string
	load    func(ctx context.Context) ([]Entry, error)
	spin    spinner.Model
	entries []Entry
	err     error
	done    bool
}

func newLoaderModel(label string, load func(ctx context.Context) ([]Entry, error)) loaderModel {
	return loaderModel{
		label: label,
		load:  load,
		spin: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(accent)),
		),
	}
}

func (m loaderModel) Init() tea.Cmd {
	load := m.load
	return tea.Batch(m.spin.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		entries, err := load(ctx)
		return loadDoneMsg{entries: entries, err: err}
	})
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg:
		m.entries, m.err, m.done = msg.entries, msg.err, true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.err, m.done = errLoadCancelled, true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		return ""
	}
	return fmt.Sprintf("%s reading ledger for %s\n", m.spin.View(), m.label)
}

// RunLoader shows an inline spinner while load runs and returns its result.
func RunLoader(label string, load func(ctx context.Context) ([]Entry, error)) ([]Entry, error) {
	result, err := tea.NewProgram(newLoaderModel(label, load)).Run()
	if err != nil {
		return nil, err
	}
	final := result.(loaderModel)
	return final.entries, final.err
}

// LoadEntries reads up to limit ledger rows for source.
func LoadEntries(ctx context.Context, ledger model.Ledger, source string, limit int) ([]Entry, error) {
	postings, statuses, err := ledger.ListPostings(ctx, model.LedgerQuery{Source: source, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list postings for %s: %w", source, err)
	}
	entries := make([]Entry, len(postings))
	for i, p := range postings {
		entries[i] = Entry{Posting: p, Status: statuses[i]}
	}
	return entries, nil
}
