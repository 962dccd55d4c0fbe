package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func posting(id, hash string, seen time.Time) model.RawPosting {
	return model.RawPosting{
		Source:      "lever",
		SourceJobID: id,
		Company:     "acme",
		Employer:    "Acme",
		Title:       "Data Engineer",
		Location:    "New York, NY",
		Description: "Build pipelines.",
		URL:         "https://jobs.lever.co/acme/" + id,
		FirstSeen:   seen,
		LastSeen:    seen,
		ContentHash: hash,
		IdentityKey: "job:" + id,
	}
}

func TestRecordSighting_InsertThenAdvance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := posting("1", "h1", base)
	p.Compensation = &model.Compensation{Min: 1, Max: 2, Currency: "USD", Period: "year"}
	posted := base.Add(-24 * time.Hour)
	p.PostedAt = &posted

	stored, err := s.RecordSighting(ctx, p)
	if err != nil {
		t.Fatalf("RecordSighting: %v", err)
	}
	if !stored.FirstSeen.Equal(base) || stored.Compensation == nil || stored.PostedAt == nil {
		t.Errorf("stored = %+v", stored)
	}

	again := posting("1", "h1", base.Add(time.Hour))
	stored, err = s.RecordSighting(ctx, again)
	if err != nil {
		t.Fatalf("second RecordSighting: %v", err)
	}
	if !stored.FirstSeen.Equal(base) {
		t.Errorf("FirstSeen moved to %v", stored.FirstSeen)
	}
	if !stored.LastSeen.Equal(base.Add(time.Hour)) {
		t.Errorf("LastSeen = %v", stored.LastSeen)
	}

	// An out-of-order older sighting never moves last_seen back.
	stored, _ = s.RecordSighting(ctx, posting("1", "h1", base.Add(-time.Hour)))
	if !stored.LastSeen.Equal(base.Add(time.Hour)) {
		t.Errorf("LastSeen went backwards: %v", stored.LastSeen)
	}
}

func TestRecordSighting_ChangedContentIsNewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.RecordSighting(ctx, posting("1", "h1", base)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordSighting(ctx, posting("1", "h2", base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	rows, _, err := s.ListPostings(ctx, model.LedgerQuery{Source: "lever"})
	if err != nil {
		t.Fatalf("ListPostings: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("rows = %d, want 2", len(rows))
	}
}

func TestLedgerStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	blocked := posting("b", "h", base)
	enriched := posting("e", "h", base.Add(time.Minute))
	pending := posting("p", "h", base.Add(2*time.Minute))
	for _, p := range []model.RawPosting{blocked, enriched, pending} {
		if _, err := s.RecordSighting(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetBlockedReason(ctx, blocked, model.BlockAgency); err != nil {
		t.Fatalf("SetBlockedReason: %v", err)
	}
	_, err := s.UpsertJob(ctx, enriched.IdentityKey, func(*model.EnrichedJob) (model.EnrichedJob, bool) {
		return model.EnrichedJob{IdentityKey: enriched.IdentityKey, Source: "lever", FirstSeen: base, LastSeen: base}, true
	})
	if err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}

	got, err := s.PendingEnrichment(ctx, "", 0)
	if err != nil {
		t.Fatalf("PendingEnrichment: %v", err)
	}
	if len(got) != 1 || got[0].SourceJobID != "p" {
		t.Errorf("pending = %+v", got)
	}

	rows, statuses, err := s.ListPostings(ctx, model.LedgerQuery{Status: model.StatusBlocked})
	if err != nil {
		t.Fatalf("ListPostings: %v", err)
	}
	if len(rows) != 1 || rows[0].BlockedReason != model.BlockAgency || statuses[0] != model.StatusBlocked {
		t.Errorf("blocked rows = %+v %v", rows, statuses)
	}

	counts, err := s.LedgerCounts(ctx)
	if err != nil {
		t.Fatalf("LedgerCounts: %v", err)
	}
	want := model.LedgerCount{Source: "lever", Total: 3, Blocked: 1, Enriched: 1, Pending: 1}
	if len(counts) != 1 || counts[0] != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func TestUpsertJob_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := model.EnrichedJob{
		IdentityKey:        "job:k",
		Employer:           "Acme",
		Title:              "Data Engineer",
		JobFamily:          "engineering",
		JobSubfamily:       "data_engineering",
		Seniority:          "senior",
		Track:              "ic",
		WorkingArrangement: model.ArrangementHybrid,
		Skills:             []model.Skill{{Name: "Go", Family: "programming_language", Domain: "software"}},
		Compensation:       &model.Compensation{Min: 150000, Max: 180000, Currency: "USD", Period: "year"},
		Source:             "greenhouse",
		ContentHash:        "h1",
		ContentSeenAt:      base,
		AgencyScore:        0.25,
		AgencySignals:      []string{"on behalf of our client"},
		Model:              "primary",
		TaxonomyVersion:    "2026.10",
		FirstSeen:          base,
		LastSeen:           base,
	}
	inserted, err := s.UpsertJob(ctx, job.IdentityKey, func(existing *model.EnrichedJob) (model.EnrichedJob, bool) {
		if existing != nil {
			t.Error("expected no existing row")
		}
		return job, true
	})
	if err != nil || !inserted {
		t.Fatalf("UpsertJob = %v, %v", inserted, err)
	}

	got, err := s.GetJob(ctx, job.IdentityKey)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Compensation == nil || got.Compensation.Max != 180000 || len(got.Skills) != 1 ||
		got.WorkingArrangement != model.ArrangementHybrid || got.AgencySignals[0] != "on behalf of our client" {
		t.Errorf("GetJob = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	inserted, err = s.UpsertJob(ctx, job.IdentityKey, func(existing *model.EnrichedJob) (model.EnrichedJob, bool) {
		if existing == nil {
			t.Fatal("expected existing row")
		}
		m := *existing
		m.LastSeen = base.Add(time.Hour)
		return m, true
	})
	if err != nil || inserted {
		t.Fatalf("update UpsertJob = %v, %v", inserted, err)
	}
	got, _ = s.GetJob(ctx, job.IdentityKey)
	if !got.LastSeen.Equal(base.Add(time.Hour)) {
		t.Errorf("LastSeen = %v", got.LastSeen)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetJob(context.Background(), "job:none"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestTouchJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.TouchJob(ctx, "job:none", base); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("touch missing = %v, want ErrNotFound", err)
	}

	_, err := s.UpsertJob(ctx, "job:k", func(*model.EnrichedJob) (model.EnrichedJob, bool) {
		return model.EnrichedJob{FirstSeen: base, LastSeen: base.Add(time.Hour)}, true
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.TouchJob(ctx, "job:k", base); err != nil {
		t.Fatalf("TouchJob: %v", err)
	}
	got, _ := s.GetJob(ctx, "job:k")
	if !got.LastSeen.Equal(base.Add(time.Hour)) {
		t.Errorf("older touch moved LastSeen to %v", got.LastSeen)
	}
	if err := s.TouchJob(ctx, "job:k", base.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(ctx, "job:k")
	if !got.LastSeen.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("LastSeen = %v", got.LastSeen)
	}
}

func TestWatermarks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Watermark(ctx, "lever", "acme"); err != nil || ok {
		t.Fatalf("empty watermark = %v, %v", ok, err)
	}
	if err := s.SetWatermark(ctx, "lever", "acme", base); err != nil {
		t.Fatal(err)
	}
	if err := s.SetWatermark(ctx, "lever", "acme", base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Watermark(ctx, "lever", "acme")
	if err != nil || !ok || !got.Equal(base.Add(time.Hour)) {
		t.Errorf("Watermark = %v, %v, %v", got, ok, err)
	}
}

func TestRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"old", "new"} {
		sum := model.RunSummary{
			RunID:     id,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Fetched:   i + 1,
			Blocked:   map[model.BlockReason]int{model.BlockTitle: i},
		}
		if err := s.SaveRun(ctx, sum); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "new" || runs[0].Fetched != 2 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestNopStore(t *testing.T) {
	s := NewNopStore()
	ctx := context.Background()

	p := posting("1", "h", base)
	got, err := s.RecordSighting(ctx, p)
	if err != nil || got.SourceJobID != "1" {
		t.Errorf("RecordSighting = %+v, %v", got, err)
	}
	if _, err := s.GetJob(ctx, "k"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetJob err = %v", err)
	}
	inserted, err := s.UpsertJob(ctx, "k", func(*model.EnrichedJob) (model.EnrichedJob, bool) {
		return model.EnrichedJob{}, true
	})
	if err != nil || !inserted {
		t.Errorf("UpsertJob = %v, %v", inserted, err)
	}
	if _, ok, _ := s.Watermark(ctx, "s", "c"); ok {
		t.Error("NopStore should never report a watermark")
	}
}
