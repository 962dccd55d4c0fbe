package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobsweep/internal/model"
)

type stubLookup struct {
	jobs  map[string]model.EnrichedJob
	calls int
}

func (s *stubLookup) GetJob(_ context.Context, key string) (model.EnrichedJob, error) {
	s.calls++
	j, ok := s.jobs[key]
	if !ok {
		return model.EnrichedJob{}, model.ErrNotFound
	}
	return j, nil
}

type stubLedger struct {
	model.Ledger
	postings []model.RawPosting
	statuses []model.PostingStatus
	err      error
	query    model.LedgerQuery
}

func (s *stubLedger) ListPostings(_ context.Context, q model.LedgerQuery) ([]model.RawPosting, []model.PostingStatus, error) {
	s.query = q
	return s.postings, s.statuses, s.err
}

var base = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func entry(title string, status model.PostingStatus, reason model.BlockReason, lastSeen time.Duration) Entry {
	return Entry{
		Posting: model.RawPosting{
			Source:        "greenhouse",
			SourceJobID:   title,
			Title:         title,
			Location:      "Remote",
			IdentityKey:   "job:" + title,
			BlockedReason: reason,
			FirstSeen:     base,
			LastSeen:      base.Add(lastSeen),
			Description:   "Build things.",
		},
		Status: status,
	}
}

func sampleEntries() []Entry {
	return []Entry{
		entry("Recruiter", model.StatusBlocked, model.BlockTitle, time.Hour),
		entry("Backend Engineer", model.StatusEnriched, model.BlockNone, time.Hour),
		entry("Data Engineer", model.StatusPending, model.BlockNone, 2*time.Hour),
		entry("Staffing Engineer", model.StatusBlocked, model.BlockAgency, 3*time.Hour),
	}
}

func sized(m auditModel) auditModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(auditModel)
}

func press(m auditModel, key string) (auditModel, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		msg = tea.KeyMsg{Type: tea.KeyShiftTab}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(auditModel), cmd
}

func titles(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Posting.Title
	}
	return out
}

func TestGroupByStatus(t *testing.T) {
	entries := append(sampleEntries(), entry("Recruiting Lead", model.StatusBlocked, model.BlockTitle, 5*time.Hour))
	tabs := groupByStatus(entries)

	if len(tabs) != 3 {
		t.Fatalf("got %d tabs, want 3", len(tabs))
	}
	want := [][]string{
		{"Staffing Engineer", "Recruiting Lead", "Recruiter"},
		{"Backend Engineer"},
		{"Data Engineer"},
	}
	for i, tb := range tabs {
		if tb.status != tabOrder[i] {
			t.Errorf("tab %d status = %s, want %s", i, tb.status, tabOrder[i])
		}
		if got := strings.Join(titles(tb.entries), ","); got != strings.Join(want[i], ",") {
			t.Errorf("tab %s = %s, want %s", tb.status, got, strings.Join(want[i], ","))
		}
	}
}

func TestRenderList_GroupsBlockedByReason(t *testing.T) {
	tabs := groupByStatus(sampleEntries())
	out, offsets := renderList(tabs[0], 60)

	for _, want := range []string{"agency_hard_filter (1)", "title_filter (1)", "Staffing Engineer", "Recruiter"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q", want)
		}
	}
	// heading, row (2 lines), blank, heading, row
	if len(offsets) != 2 || offsets[0] != 1 || offsets[1] != 5 {
		t.Errorf("offsets = %v, want [1 5]", offsets)
	}

	if _, offsets := renderList(tabs[1], 60); len(offsets) != 1 || offsets[0] != 0 {
		t.Errorf("enriched offsets = %v, want [0]", offsets)
	}
	if out, offsets := renderList(tab{status: model.StatusPending}, 60); offsets != nil || !strings.Contains(out, "no postings") {
		t.Errorf("empty tab rendered %q", out)
	}
}

func TestAuditModel_SwitchTabs(t *testing.T) {
	m := sized(newAuditModel("greenhouse", sampleEntries(), nil))

	m, _ = press(m, "shift+tab")
	if m.active != 2 {
		t.Errorf("shift+tab from first tab: active = %d, want 2", m.active)
	}
	m, _ = press(m, "tab")
	if m.active != 0 {
		t.Errorf("tab from last tab: active = %d, want 0", m.active)
	}
	m, _ = press(m, "2")
	if m.active != 1 {
		t.Errorf("2: active = %d, want 1", m.active)
	}

	m, _ = press(m, "1")
	m, _ = press(m, "G")
	if m.tabs[0].cursor != 1 {
		t.Errorf("G: cursor = %d, want 1", m.tabs[0].cursor)
	}
	m, _ = press(m, "j")
	if m.tabs[0].cursor != 1 {
		t.Errorf("j past the end: cursor = %d, want 1", m.tabs[0].cursor)
	}
}

func TestAuditModel_OpenDetailLoadsEnrichedJob(t *testing.T) {
	lookup := &stubLookup{jobs: map[string]model.EnrichedJob{
		"job:Backend Engineer": {
			IdentityKey:  "job:Backend Engineer",
			JobFamily:    "software_engineering",
			JobSubfamily: "backend_engineering",
			Source:       "lever",
			Skills:       []model.Skill{{Name: "Go"}, {Name: "PostgreSQL"}},
		},
	}}
	m := sized(newAuditModel("greenhouse", sampleEntries(), lookup))

	m, _ = press(m, "tab") // enriched
	m, cmd := press(m, "enter")

	if m.screen != screenDetail || !m.detail.loading {
		t.Fatalf("screen=%v loading=%v, want detail screen loading", m.screen, m.detail.loading)
	}
	if cmd == nil {
		t.Fatal("expected a lookup command")
	}

	next, _ := m.Update(cmd())
	m = next.(auditModel)
	if m.detail.loading || m.detail.job == nil {
		t.Fatalf("enriched job not loaded: %q", m.detail.err)
	}
	out := m.renderDetail()
	for _, want := range []string{"backend_engineering", "Go, PostgreSQL", "content owned by another source"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q", want)
		}
	}

	// Second visit is served from the cache.
	m, _ = press(m, "esc")
	_, cmd = press(m, "enter")
	if cmd != nil || lookup.calls != 1 {
		t.Errorf("expected cached job, calls=%d", lookup.calls)
	}
}

func TestAuditModel_StaleLookupIgnored(t *testing.T) {
	m := sized(newAuditModel("greenhouse", sampleEntries(), &stubLookup{}))
	m, _ = press(m, "tab")
	m, _ = press(m, "enter")

	next, _ := m.Update(jobLoadedMsg{key: "job:Other", job: model.EnrichedJob{JobFamily: "x"}})
	m = next.(auditModel)
	if m.detail.job != nil || !m.detail.loading {
		t.Error("a result for another row should not change the detail screen")
	}
}

func TestAuditModel_BlockedDetailSkipsLookup(t *testing.T) {
	lookup := &stubLookup{}
	m := sized(newAuditModel("greenhouse", sampleEntries(), lookup))

	m, cmd := press(m, "enter")
	if cmd != nil {
		t.Error("blocked rows should not trigger a lookup")
	}
	if !strings.Contains(m.renderDetail(), string(model.BlockAgency)) {
		t.Error("detail should show the blocked reason")
	}
}

func TestAuditModel_PendingNotFoundIsQuiet(t *testing.T) {
	m := sized(newAuditModel("greenhouse", sampleEntries(), &stubLookup{}))
	m, _ = press(m, "3")
	m, cmd := press(m, "enter")

	next, _ := m.Update(cmd())
	m = next.(auditModel)
	if m.detail.err != "" || m.detail.job != nil {
		t.Errorf("not-found should leave no error and no job, got %q", m.detail.err)
	}
}

func TestAuditModel_LookupError(t *testing.T) {
	m := sized(newAuditModel("greenhouse", sampleEntries(), &stubLookup{}))
	m, _ = press(m, "3")
	m, _ = press(m, "enter")

	next, _ := m.Update(jobLoadedMsg{key: "job:Data Engineer", err: errors.New("db closed")})
	m = next.(auditModel)
	if !strings.Contains(m.renderDetail(), "db closed") {
		t.Error("lookup error should be shown")
	}
}

func TestAuditModel_QuitAndBack(t *testing.T) {
	m := sized(newAuditModel("greenhouse", sampleEntries(), nil))

	back, _ := press(m, "esc")
	if back.wantQuit {
		t.Error("esc should return to the picker")
	}
	quit, _ := press(m, "q")
	if !quit.wantQuit {
		t.Error("q should quit")
	}
}

func TestLoadEntries(t *testing.T) {
	ledger := &stubLedger{
		postings: []model.RawPosting{{Title: "A"}, {Title: "B"}},
		statuses: []model.PostingStatus{model.StatusBlocked, model.StatusPending},
	}
	entries, err := LoadEntries(context.Background(), ledger, "lever", 50)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 2 || entries[1].Status != model.StatusPending {
		t.Errorf("entries = %+v", entries)
	}
	if ledger.query.Source != "lever" || ledger.query.Limit != 50 {
		t.Errorf("query = %+v", ledger.query)
	}

	ledger.err = errors.New("db closed")
	if _, err := LoadEntries(context.Background(), ledger, "lever", 50); err == nil {
		t.Error("expected error")
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		text  string
		width int
		want  string
	}{
		{"one two three four", 9, "one two\nthree\nfour"},
		{"  spaced   out  ", 20, "spaced out"},
		{"", 10, ""},
		{"überlong", 3, "überlong"},
	}
	for _, tt := range tests {
		if got := wrap(tt.text, tt.width); got != tt.want {
			t.Errorf("wrap(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestPickerModel(t *testing.T) {
	m := pickerModel{
		sources: []SourceItem{
			{Name: "greenhouse", Kind: "api", Counts: model.LedgerCount{Total: 10, Blocked: 7, Enriched: 2, Pending: 1}},
			{Name: "careers", Kind: "browser"},
		},
		chosen: PickNone,
	}

	view := m.View()
	for _, want := range []string{"greenhouse", "browser", "blocked", "enriched"} {
		if !strings.Contains(view, want) {
			t.Errorf("picker view missing %q", want)
		}
	}

	key := func(m pickerModel, k string) pickerModel {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		return next.(pickerModel)
	}
	m = key(key(key(m, "j"), "j"), "j")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := next.(pickerModel).chosen; got != 1 || cmd == nil {
		t.Errorf("chosen = %d, want 1 and a quit command", got)
	}
	if got := key(m, "q").chosen; got != PickQuit {
		t.Errorf("q chosen = %d, want PickQuit", got)
	}
}

func TestPickerModel_EmptyEnterDoesNothing(t *testing.T) {
	m := pickerModel{chosen: PickNone}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if next.(pickerModel).chosen != PickNone || cmd != nil {
		t.Error("enter with no sources should be ignored")
	}
}

func TestLoaderModel(t *testing.T) {
	m := newLoaderModel("lever", nil)
	next, cmd := m.Update(loadDoneMsg{entries: []Entry{{Status: model.StatusPending}}})
	lm := next.(loaderModel)
	if !lm.done || len(lm.entries) != 1 || cmd == nil {
		t.Errorf("loader after done: %+v", lm)
	}
	if lm.View() != "" {
		t.Error("finished loader should render nothing")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !errors.Is(next.(loaderModel).err, errLoadCancelled) {
		t.Error("ctrl+c should cancel the load")
	}
}
