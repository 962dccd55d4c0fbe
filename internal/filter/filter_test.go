package filter

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/amishk599/jobsweep/internal/model"
)

func posting(employer, title, location string) model.RawPosting {
	return model.RawPosting{Employer: employer, Title: title, Location: location}
}

func mustTitle(t *testing.T, allow, deny []string) *TitleFilter {
	t.Helper()
	f, err := NewTitleFilter(allow, deny)
	if err != nil {
		t.Fatalf("NewTitleFilter: %v", err)
	}
	return f
}

func mustLocation(t *testing.T, targets []string, allowMissing bool) *LocationFilter {
	t.Helper()
	f, err := NewLocationFilter(targets, allowMissing)
	if err != nil {
		t.Fatalf("NewLocationFilter: %v", err)
	}
	return f
}

func TestTitleFilter(t *testing.T) {
	f := mustTitle(t, []string{`\bengineer\b`, `\bdata\b`}, []string{`\bintern\b`, `\bsales\b`})

	tests := []struct {
		name  string
		title string
		want  model.BlockReason
	}{
		{"allowed", "Senior Data Engineer", model.BlockNone},
		{"case insensitive", "BACKEND ENGINEER", model.BlockNone},
		{"deny wins over allow", "Software Engineer Intern", model.BlockTitle},
		{"no allow match", "Account Executive", model.BlockTitle},
		{"deny only", "Sales Engineer", model.BlockTitle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Check(posting("Acme", tt.title, "Remote")); got.Reason != tt.want {
				t.Errorf("Check(%q) = %q (%s), want %q", tt.title, got.Reason, got.Detail, tt.want)
			}
		})
	}
}

func TestTitleFilter_EmptyAllowPassesAll(t *testing.T) {
	f := mustTitle(t, nil, nil)
	if v := f.Check(posting("Acme", "Anything", "")); !v.Passed() {
		t.Errorf("expected pass, got %+v", v)
	}
}

func TestNewTitleFilter_BadPattern(t *testing.T) {
	if _, err := NewTitleFilter([]string{"("}, nil); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestLocationFilter(t *testing.T) {
	f := mustLocation(t, []string{`new york|\bnyc\b`, `\bremote\b`}, false)

	tests := []struct {
		location string
		want     model.BlockReason
	}{
		{"New York, NY", model.BlockNone},
		{"Remote - US", model.BlockNone},
		{"London, UK", model.BlockLocation},
		{"", model.BlockLocation},
	}
	for _, tt := range tests {
		if got := f.Check(posting("Acme", "Engineer", tt.location)); got.Reason != tt.want {
			t.Errorf("Check(%q) = %q, want %q", tt.location, got.Reason, tt.want)
		}
	}

	lenient := mustLocation(t, []string{`remote`}, true)
	if v := lenient.Check(posting("Acme", "Engineer", "  ")); !v.Passed() {
		t.Errorf("allowMissing: expected pass for empty location, got %+v", v)
	}
}

func TestAgencyFilter(t *testing.T) {
	f := NewAgencyFilter([]string{"Robert Half", "Hays plc", "TEKsystems"})

	tests := []struct {
		employer string
		want     model.BlockReason
	}{
		{"Robert Half", model.BlockAgency},
		{"robert half, inc.", model.BlockAgency},
		{"Robert Half Technology", model.BlockAgency},
		{"Hays", model.BlockAgency},
		{"Hayston Labs", model.BlockNone},
		{"TEKsystems", model.BlockAgency},
		{"Acme", model.BlockNone},
		{"", model.BlockNone},
	}
	for _, tt := range tests {
		if got := f.Check(posting(tt.employer, "Engineer", "Remote")); got.Reason != tt.want {
			t.Errorf("Check(%q) = %q, want %q", tt.employer, got.Reason, tt.want)
		}
	}
}

func TestChain_FirstBlockWins(t *testing.T) {
	chain := NewChain(
		mustTitle(t, []string{`engineer`}, nil),
		mustLocation(t, []string{`remote`}, false),
		nil,
		NewAgencyFilter([]string{"Robert Half"}),
	)

	tests := []struct {
		p    model.RawPosting
		want model.BlockReason
	}{
		{posting("Acme", "Engineer", "Remote"), model.BlockNone},
		{posting("Acme", "Recruiter", "London"), model.BlockTitle},
		{posting("Acme", "Engineer", "London"), model.BlockLocation},
		// An exact blocklist match never reaches the oracle.
		{posting("Robert Half", "Engineer", "Remote"), model.BlockAgency},
	}
	for _, tt := range tests {
		if got := chain.Check(tt.p); got.Reason != tt.want {
			t.Errorf("Check(%+v) = %q, want %q", tt.p, got.Reason, tt.want)
		}
	}
}

func TestChain_ConcurrentChecks(t *testing.T) {
	chain := NewChain(mustTitle(t, []string{`engineer`}, nil))

	var (
		wg     sync.WaitGroup
		passed atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := "Engineer"
			if i%2 == 0 {
				title = "Designer"
			}
			if chain.Check(posting("Acme", title, "")).Passed() {
				passed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := passed.Load(); got != 25 {
		t.Errorf("passed = %d, want 25", got)
	}
}

func TestAgencySignal(t *testing.T) {
	s := NewAgencySignal(0)

	clean := s.Score("We build data pipelines in Go and Spark. Remote friendly.")
	if clean.Flagged || clean.Score != 0 || len(clean.Signals) != 0 {
		t.Errorf("clean description scored %+v", clean)
	}

	agency := s.Score("Our client, a leading fintech, is hiring. We are a recruitment agency acting on behalf of the employer.")
	if !agency.Flagged {
		t.Errorf("expected agency text to be flagged, got %+v", agency)
	}
	if agency.Score > 1 {
		t.Errorf("score %v exceeds 1", agency.Score)
	}
	if len(agency.Signals) != 3 {
		t.Errorf("signals = %v, want 3", agency.Signals)
	}

	weak := s.Score("Contract to hire opportunity.")
	if weak.Flagged {
		t.Errorf("single weak signal should not flag, got %+v", weak)
	}
}
