package audit

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobsweep/internal/model"
)

// Entry is one ledger row with its derived status.
type Entry struct {
	Posting model.RawPosting
	Status  model.PostingStatus
}

// JobLookup loads the enriched job behind a ledger row. model.JobStore
// satisfies it.
type JobLookup interface {
	GetJob(ctx context.Context, key string) (model.EnrichedJob, error)
}

// rowHeight is the number of lines a posting takes in the list.
const rowHeight = 2

const timeLayout = "2006-01-02 15:04 MST"

// tabOrder fixes the order of the status tabs.
var tabOrder = []model.PostingStatus{model.StatusBlocked, model.StatusEnriched, model.StatusPending}

var tabTitles = map[model.PostingStatus]string{
	model.StatusBlocked:  "Blocked",
	model.StatusEnriched: "Enriched",
	model.StatusPending:  "Pending",
}

var (
	accent = lipgloss.Color("39")
	muted  = lipgloss.Color("243")

	statusColors = map[model.PostingStatus]lipgloss.Color{
		model.StatusBlocked:  lipgloss.Color("203"),
		model.StatusEnriched: lipgloss.Color("78"),
		model.StatusPending:  lipgloss.Color("221"),
	}

	tabStyle       = lipgloss.NewStyle().Padding(0, 2).Foreground(muted)
	activeTabStyle = lipgloss.NewStyle().Padding(0, 2).Bold(true).Underline(true)
	sourceStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent).PaddingRight(2)
	ruleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	groupStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	emptyStyle     = lipgloss.NewStyle().Foreground(muted).Italic(true)

	rowTitleStyle    = lipgloss.NewStyle()
	rowMetaStyle     = lipgloss.NewStyle().Foreground(muted)
	cursorTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	cursorMetaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("111"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	detailFrameStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder()).
				BorderForeground(accent).
				Padding(0, 1)

	labelStyle   = lipgloss.NewStyle().Foreground(muted).Width(16)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Foreground(muted).Italic(true)
)

type screen int

const (
	screenList screen = iota
	screenDetail
)

// tab holds the rows of one status and the cursor within them.
type tab struct {
	status  model.PostingStatus
	entries []Entry
	cursor  int
}

// jobLoadedMsg carries the result of an enriched-job lookup.
type jobLoadedMsg struct {
	key string
	job model.EnrichedJob
	err error
}

type detailState struct {
	entry    Entry
	job      *model.EnrichedJob
	loading  bool
	err      string
	showDesc bool
	vp       viewport.Model
}

type auditModel struct {
	source string
	tabs   []tab
	active int
	list   viewport.Model
	width  int
	height int
	ready  bool

	screen screen
	detail detailState

	jobs  JobLookup
	cache map[string]model.EnrichedJob

	wantQuit bool
}

func newAuditModel(source string, entries []Entry, jobs JobLookup) auditModel {
	return auditModel{
		source: source,
		tabs:   groupByStatus(entries),
		jobs:   jobs,
		cache:  make(map[string]model.EnrichedJob),
	}
}

// groupByStatus builds one tab per status. Blocked rows are ordered by
// reason so they can be shown in groups; every tab puts the most recent
// sighting first.
func groupByStatus(entries []Entry) []tab {
	tabs := make([]tab, len(tabOrder))
	index := make(map[model.PostingStatus]int, len(tabOrder))
	for i, s := range tabOrder {
		tabs[i].status = s
		index[s] = i
	}
	for _, e := range entries {
		i, ok := index[e.Status]
		if !ok {
			i = index[model.StatusPending]
		}
		tabs[i].entries = append(tabs[i].entries, e)
	}
	for i := range tabs {
		slices.SortStableFunc(tabs[i].entries, func(a, b Entry) int {
			if tabs[i].status == model.StatusBlocked {
				if c := cmp.Compare(a.Posting.BlockedReason, b.Posting.BlockedReason); c != 0 {
					return c
				}
			}
			return b.Posting.LastSeen.Compare(a.Posting.LastSeen)
		})
	}
	return tabs
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case jobLoadedMsg:
		m.applyJob(msg)
		return m, nil
	case tea.KeyMsg:
		if m.screen == screenDetail {
			return m.detailKey(msg)
		}
		return m.listKey(msg)
	}
	return m, nil
}

func (m *auditModel) resize() {
	w, h := max(m.width, 20), max(m.height-3, 3)
	if !m.ready {
		m.list = viewport.New(w, h)
		m.ready = true
	} else {
		m.list.Width, m.list.Height = w, h
	}
	m.refreshList()
	if m.screen == screenDetail {
		m.detail.vp.Width, m.detail.vp.Height = m.detailSize()
		m.detail.vp.SetContent(m.renderDetail())
	}
}

func (m auditModel) detailSize() (int, int) {
	return max(m.width-4, 20), max(m.height-4, 3)
}

func (m auditModel) listKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "b":
		return m, tea.Quit
	case "tab", "right", "l":
		m.switchTab(m.active + 1)
	case "shift+tab", "left", "h":
		m.switchTab(m.active - 1)
	case "1", "2", "3":
		m.switchTab(int(key[0] - '1'))
	case "up", "k":
		m.moveCursor(m.tabs[m.active].cursor - 1)
	case "down", "j":
		m.moveCursor(m.tabs[m.active].cursor + 1)
	case "g", "home":
		m.moveCursor(0)
	case "G", "end":
		m.moveCursor(len(m.tabs[m.active].entries) - 1)
	case "enter":
		return m.openDetail()
	default:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *auditModel) switchTab(i int) {
	n := len(m.tabs)
	m.active = (i%n + n) % n
	m.list.SetYOffset(0)
	m.refreshList()
}

func (m *auditModel) moveCursor(i int) {
	t := &m.tabs[m.active]
	t.cursor = max(min(i, len(t.entries)-1), 0)
	m.refreshList()
}

// refreshList re-renders the active tab and scrolls the cursor row into view.
func (m *auditModel) refreshList() {
	t := m.tabs[m.active]
	content, offsets := renderList(t, m.list.Width)
	m.list.SetContent(content)
	if len(offsets) == 0 {
		return
	}
	if t.cursor == 0 {
		m.list.SetYOffset(0)
		return
	}
	top := offsets[t.cursor]
	bottom := top + rowHeight - 1
	switch {
	case top < m.list.YOffset:
		m.list.SetYOffset(top)
	case bottom >= m.list.YOffset+m.list.Height:
		m.list.SetYOffset(bottom - m.list.Height + 1)
	}
}

func (m auditModel) openDetail() (tea.Model, tea.Cmd) {
	t := m.tabs[m.active]
	if len(t.entries) == 0 {
		return m, nil
	}
	e := t.entries[t.cursor]
	w, h := m.detailSize()
	m.screen = screenDetail
	m.detail = detailState{entry: e, vp: viewport.New(w, h)}

	var cmd tea.Cmd
	key := e.Posting.IdentityKey
	if job, ok := m.cache[key]; ok {
		m.detail.job = &job
	} else if m.jobs != nil && key != "" && e.Status != model.StatusBlocked {
		m.detail.loading = true
		cmd = lookupJob(m.jobs, key)
	}
	m.detail.vp.SetContent(m.renderDetail())
	return m, cmd
}

func lookupJob(jobs JobLookup, key string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		job, err := jobs.GetJob(ctx, key)
		return jobLoadedMsg{key: key, job: job, err: err}
	}
}

func (m *auditModel) applyJob(msg jobLoadedMsg) {
	if m.screen != screenDetail || msg.key != m.detail.entry.Posting.IdentityKey {
		return
	}
	m.detail.loading = false
	switch {
	case errors.Is(msg.err, model.ErrNotFound):
		// Pending rows have no enriched job yet.
	case msg.err != nil:
		m.detail.err = fmt.Sprintf("load enriched job: %v", msg.err)
	default:
		job := msg.job
		m.detail.job = &job
		m.cache[msg.key] = job
	}
	m.detail.vp.SetContent(m.renderDetail())
}

func (m auditModel) detailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.detail.entry.Posting
	switch msg.String() {
	case "q", "ctrl+c":
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace", "b":
		m.screen = screenList
		return m, nil
	case "o":
		if p.URL != "" {
			openInBrowser(p.URL)
		}
		return m, nil
	case "r":
		if p.Description != "" {
			m.detail.showDesc = !m.detail.showDesc
			m.detail.vp.SetContent(m.renderDetail())
			m.detail.vp.SetYOffset(0)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.detail.vp, cmd = m.detail.vp.Update(msg)
	return m, cmd
}

func (m auditModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.screen == screenDetail {
		return m.detailView()
	}
	return m.listView()
}

func (m auditModel) listView() string {
	bar := []string{sourceStyle.Render(m.source)}
	for i, t := range m.tabs {
		label := fmt.Sprintf("%s %d", tabTitles[t.status], len(t.entries))
		st := tabStyle
		if i == m.active {
			st = activeTabStyle.Foreground(statusColors[t.status])
		}
		bar = append(bar, st.Render(label))
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top, bar...)
	rule := ruleStyle.Render(strings.Repeat("─", max(m.width, 1)))

	t := m.tabs[m.active]
	position := "0/0"
	if len(t.entries) > 0 {
		position = fmt.Sprintf("%d/%d", t.cursor+1, len(t.entries))
	}
	footer := footerStyle.Width(m.width).Render(position +
		"   tab/1-3 status  j/k move  g/G ends  enter open  esc sources  q quit")

	return lipgloss.JoinVertical(lipgloss.Left, header, rule, m.list.View(), footer)
}

func (m auditModel) detailView() string {
	title := headingStyle.Render(m.detail.entry.Posting.Title)
	if m.detail.loading {
		title += hintStyle.Render("  loading…")
	}
	frame := detailFrameStyle.Width(m.width - 2).Render(m.detail.vp.View())

	keys := "o open URL"
	if m.detail.entry.Posting.Description != "" {
		keys += "  r description"
	}
	footer := footerStyle.Width(m.width).Render(keys + "  j/k scroll  esc back  q quit")

	return lipgloss.JoinVertical(lipgloss.Left, title, frame, footer)
}

// renderList draws the rows of t and returns the line each row starts on.
func renderList(t tab, width int) (string, []int) {
	if len(t.entries) == 0 {
		return emptyStyle.Render("  no postings"), nil
	}

	perReason := make(map[model.BlockReason]int)
	if t.status == model.StatusBlocked {
		for _, e := range t.entries {
			perReason[e.Posting.BlockedReason]++
		}
	}

	var b strings.Builder
	offsets := make([]int, len(t.entries))
	line := 0
	for i, e := range t.entries {
		reason := e.Posting.BlockedReason
		if t.status == model.StatusBlocked && (i == 0 || reason != t.entries[i-1].Posting.BlockedReason) {
			if i > 0 {
				b.WriteByte('\n')
				line++
			}
			b.WriteString(groupStyle.Render(sectionRule(fmt.Sprintf("%s (%d)", reason, perReason[reason]), width)))
			b.WriteByte('\n')
			line++
		}

		offsets[i] = line
		marker, titleSt, metaSt := "  ", rowTitleStyle, rowMetaStyle
		if i == t.cursor {
			marker, titleSt, metaSt = "▸ ", cursorTitleStyle, cursorMetaStyle
		}
		b.WriteString(marker + titleSt.Render(e.Posting.Title) + "\n")
		b.WriteString("  " + metaSt.Render(rowMeta(e.Posting)) + "\n")
		line += rowHeight
	}
	return strings.TrimSuffix(b.String(), "\n"), offsets
}

func rowMeta(p model.RawPosting) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Employer, p.Company, p.Location} {
		if s != "" && !slices.Contains(parts, s) {
			parts = append(parts, s)
		}
	}
	parts = append(parts, "seen "+p.LastSeen.UTC().Format(time.DateOnly))
	return strings.Join(parts, " · ")
}

func sectionRule(label string, width int) string {
	return label + " " + strings.Repeat("─", max(width-utf8.RuneCountInString(label)-1, 3))
}

func (m auditModel) renderDetail() string {
	d := m.detail
	p := d.entry.Posting
	width, _ := m.detailSize()
	textWidth := max(width-2, 20)

	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			b.WriteString(labelStyle.Render(label) + value + "\n")
		}
	}
	heading := func(label string) {
		b.WriteString("\n" + headingStyle.Render(sectionRule(label, textWidth)) + "\n")
	}

	status := lipgloss.NewStyle().Foreground(statusColors[d.entry.Status]).Render(string(d.entry.Status))
	if p.BlockedReason != model.BlockNone {
		status += " · " + string(p.BlockedReason)
	}
	field("status", status)
	field("employer", p.Employer)
	field("location", p.Location)
	field("url", p.URL)

	heading("ledger")
	field("source", p.Source+" / "+p.Company)
	field("source job id", p.SourceJobID)
	field("identity key", p.IdentityKey)
	field("content hash", shortHash(p.ContentHash))
	if p.PostedAt != nil {
		field("posted", p.PostedAt.UTC().Format(timeLayout))
	}
	field("first seen", p.FirstSeen.UTC().Format(timeLayout))
	field("last seen", p.LastSeen.UTC().Format(timeLayout))
	field("pay", formatCompensation(p.Compensation))

	if d.err != "" {
		b.WriteString("\n" + errorStyle.Render("! "+d.err) + "\n")
	}

	switch {
	case d.job != nil:
		j := d.job
		heading("enriched")
		field("family", j.JobFamily)
		field("subfamily", j.JobSubfamily)
		field("seniority", j.Seniority)
		field("track", j.Track)
		field("arrangement", string(j.WorkingArrangement))
		field("skills", skillNames(j.Skills))
		field("pay", formatCompensation(j.Compensation))
		if j.AgencyScore > 0 {
			field("agency score", fmt.Sprintf("%.2f %v", j.AgencyScore, j.AgencySignals))
		}
		owner := j.Source
		if j.Source != p.Source {
			owner += " (content owned by another source)"
		}
		field("content source", owner)
		field("model", j.Model)
		field("taxonomy", j.TaxonomyVersion)
		if j.Summary != "" {
			b.WriteString("\n" + wrap(j.Summary, textWidth) + "\n")
		}
	case d.loading:
		b.WriteString("\n" + hintStyle.Render("loading enriched job…") + "\n")
	}

	if p.Description != "" {
		if d.showDesc {
			heading("description")
			b.WriteString(wrap(p.Description, textWidth) + "\n")
		} else {
			b.WriteString("\n" + hintStyle.Render("r shows the description") + "\n")
		}
	}
	return b.String()
}

func formatCompensation(c *model.Compensation) string {
	if c == nil {
		return ""
	}
	currency := cmp.Or(c.Currency, "USD")
	s := fmt.Sprintf("%s %.0f–%.0f", currency, c.Min, c.Max)
	if c.Period != "" {
		s += " per " + c.Period
	}
	return s
}

func skillNames(skills []model.Skill) string {
	names := make([]string, len(skills))
	for i, s := range skills {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}

func shortHash(h string) string {
	return h[:min(len(h), 12)]
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) string {
	var b strings.Builder
	col := 0
	for _, w := range strings.Fields(text) {
		n := utf8.RuneCountInString(w)
		switch {
		case col == 0:
		case col+1+n > width:
			b.WriteByte('\n')
			col = 0
		default:
			b.WriteByte(' ')
			col++
		}
		b.WriteString(w)
		col += n
	}
	return b.String()
}

func openInBrowser(url string) {
	name, args := "xdg-open", []string{url}
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	}
	_ = exec.Command(name, args...).Start()
}

// RunAuditTUI shows the ledger rows of one source in status tabs. jobs may
// be nil, in which case the detail screen shows ledger fields only. It
// reports whether the user asked to quit rather than go back to the source
// picker.
func RunAuditTUI(source string, entries []Entry, jobs JobLookup) (bool, error) {
	result, err := tea.NewProgram(newAuditModel(source, entries, jobs), tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	return result.(auditModel).wantQuit, nil
}
