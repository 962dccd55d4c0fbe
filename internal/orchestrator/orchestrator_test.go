package orchestrator

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/poller"
)

// --- Mock implementations ---

type nopConnector struct{}

func (nopConnector) Fetch(_ context.Context, _ model.Scope) iter.Seq2[model.RawPosting, error] {
	return func(func(model.RawPosting, error) bool) {}
}

// fakeRunner returns canned reports per unit and records what it ran.
type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	reports map[string]poller.UnitReport
	delay   time.Duration

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (r *fakeRunner) RunUnit(_ context.Context, _ model.Connector, scope model.Scope, _ *poller.ItemCap) poller.UnitReport {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	unit := model.UnitKey(scope.Source, scope.Company)
	r.mu.Lock()
	r.ran = append(r.ran, unit)
	rep, ok := r.reports[unit]
	r.mu.Unlock()
	if !ok {
		rep = poller.UnitReport{Fetched: 1}
	}
	rep.Source, rep.Company = scope.Source, scope.Company
	return rep
}

func (r *fakeRunner) didRun(unit string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.ran {
		if u == unit {
			return true
		}
	}
	return false
}

type memWatermarks struct {
	mu   sync.Mutex
	data map[string]time.Time
}

func newMemWatermarks() *memWatermarks {
	return &memWatermarks{data: make(map[string]time.Time)}
}

func (m *memWatermarks) Watermark(_ context.Context, source, company string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[model.UnitKey(source, company)]
	return t, ok, nil
}

func (m *memWatermarks) SetWatermark(_ context.Context, source, company string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[model.UnitKey(source, company)] = at
	return nil
}

func (m *memWatermarks) get(unit string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.data[unit]
	return t, ok
}

type memRuns struct {
	saved []model.RunSummary
}

func (m *memRuns) SaveRun(_ context.Context, s model.RunSummary) error {
	m.saved = append(m.saved, s)
	return nil
}

func (m *memRuns) RecentRuns(_ context.Context, _ int) ([]model.RunSummary, error) {
	return m.saved, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestOrchestrator(sources []Source, runner UnitRunner, wm model.WatermarkStore, runs model.RunStore) *Orchestrator {
	o := New(sources, runner, wm, runs, discardLogger())
	o.now = func() time.Time { return t0 }
	return o
}

// slowConnector yields one posting, then waits for its context to end.
type slowConnector struct{}

func (slowConnector) Fetch(ctx context.Context, _ model.Scope) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		if !yield(model.RawPosting{Title: "Data Engineer"}, nil) {
			return
		}
		<-ctx.Done()
		yield(model.RawPosting{}, ctx.Err())
	}
}

// drainRunner ranges over the connector like the pipeline does and takes
// longer than the unit timeout on the first posting.
type drainRunner struct {
	work          time.Duration
	hadDeadline   bool
	processCtxErr error
}

func (r *drainRunner) RunUnit(ctx context.Context, conn model.Connector, scope model.Scope, _ *poller.ItemCap) poller.UnitReport {
	_, r.hadDeadline = ctx.Deadline()
	rep := poller.UnitReport{Source: scope.Source, Company: scope.Company}
	for _, err := range conn.Fetch(ctx, scope) {
		if err != nil {
			rep.Err = err
			break
		}
		rep.Fetched++
		time.Sleep(r.work)
		r.processCtxErr = ctx.Err()
	}
	return rep
}

// --- Tests ---

func TestRun_SkipsUnitsInsideResumeWindow(t *testing.T) {
	wm := newMemWatermarks()
	wm.data["greenhouse/x"] = t0.Add(-10 * time.Hour)
	runner := &fakeRunner{}
	sources := []Source{{Name: "greenhouse", Connector: nopConnector{}, Companies: []string{"x", "y"}}}

	sum := newTestOrchestrator(sources, runner, wm, nil).Run(context.Background(), Options{ResumeWindow: 24 * time.Hour})

	if runner.didRun("greenhouse/x") {
		t.Error("unit inside resume window was fetched")
	}
	if !runner.didRun("greenhouse/y") {
		t.Error("unit without watermark was not fetched")
	}
	if len(sum.SkippedResume) != 1 || sum.SkippedResume[0] != "greenhouse/x" {
		t.Errorf("SkippedResume = %v, want [greenhouse/x]", sum.SkippedResume)
	}
	if got, _ := wm.get("greenhouse/x"); !got.Equal(t0.Add(-10 * time.Hour)) {
		t.Errorf("skipped unit watermark changed to %v", got)
	}
	if got, ok := wm.get("greenhouse/y"); !ok || !got.Equal(t0) {
		t.Errorf("watermark for y = %v, %v; want %v", got, ok, t0)
	}
}

func TestRun_ReprocessesAfterResumeWindow(t *testing.T) {
	wm := newMemWatermarks()
	wm.data["lever/x"] = t0.Add(-25 * time.Hour)
	runner := &fakeRunner{}
	sources := []Source{{Name: "lever", Connector: nopConnector{}, Companies: []string{"x"}}}

	sum := newTestOrchestrator(sources, runner, wm, nil).Run(context.Background(), Options{ResumeWindow: 24 * time.Hour})

	if !runner.didRun("lever/x") {
		t.Fatal("unit past the resume window was not fetched")
	}
	if len(sum.SkippedResume) != 0 {
		t.Errorf("SkippedResume = %v, want empty", sum.SkippedResume)
	}
	if sum.UnitsCompleted != 1 {
		t.Errorf("UnitsCompleted = %d, want 1", sum.UnitsCompleted)
	}
}

func TestRun_ZeroWindowIgnoresWatermarks(t *testing.T) {
	wm := newMemWatermarks()
	wm.data["lever/x"] = t0.Add(-time.Minute)
	runner := &fakeRunner{}
	sources := []Source{{Name: "lever", Connector: nopConnector{}, Companies: []string{"x"}}}

	newTestOrchestrator(sources, runner, wm, nil).Run(context.Background(), Options{})

	if !runner.didRun("lever/x") {
		t.Error("unit should run when no resume window is set")
	}
}

func TestRun_FailedUnitKeepsWatermarkAndOthersContinue(t *testing.T) {
	wm := newMemWatermarks()
	runner := &fakeRunner{reports: map[string]poller.UnitReport{
		"greenhouse/broken": {Fetched: 2, Err: errors.New("listing: status 500")},
	}}
	sources := []Source{
		{Name: "greenhouse", Connector: nopConnector{}, Companies: []string{"broken", "ok"}},
		{Name: "lever", Connector: nopConnector{}, Companies: []string{"other"}},
	}

	sum := newTestOrchestrator(sources, runner, wm, nil).Run(context.Background(), Options{})

	if _, ok := wm.get("greenhouse/broken"); ok {
		t.Error("watermark written for a failed unit")
	}
	if _, ok := wm.get("greenhouse/ok"); !ok {
		t.Error("watermark missing for a clean unit")
	}
	if !runner.didRun("lever/other") {
		t.Error("other source did not run after a unit failure")
	}
	if msg := sum.UnitErrors["greenhouse/broken"]; msg != "listing: status 500" {
		t.Errorf("UnitErrors = %v", sum.UnitErrors)
	}
	if sum.Fetched != 4 {
		t.Errorf("Fetched = %d, want 4", sum.Fetched)
	}
	if sum.UnitsCompleted != 2 {
		t.Errorf("UnitsCompleted = %d, want 2", sum.UnitsCompleted)
	}
}

func TestRun_CappedUnitHasNoWatermark(t *testing.T) {
	wm := newMemWatermarks()
	runner := &fakeRunner{reports: map[string]poller.UnitReport{
		"ashby/x": {Fetched: 3, Capped: true},
	}}
	sources := []Source{{Name: "ashby", Connector: nopConnector{}, Companies: []string{"x"}}}

	sum := newTestOrchestrator(sources, runner, wm, nil).Run(context.Background(), Options{MaxItems: 3})

	if !sum.Capped {
		t.Error("summary should be marked capped")
	}
	if _, ok := wm.get("ashby/x"); ok {
		t.Error("watermark written for a capped unit")
	}
	if len(sum.UnitErrors) != 0 {
		t.Errorf("capping is not an error, got %v", sum.UnitErrors)
	}
}

func TestRun_BudgetSkipsUnstartedUnits(t *testing.T) {
	runner := &fakeRunner{}
	sources := []Source{{Name: "greenhouse", Connector: nopConnector{}, Companies: []string{"a", "b"}}}
	o := newTestOrchestrator(sources, runner, newMemWatermarks(), nil)

	var calls atomic.Int32
	o.now = func() time.Time {
		if calls.Add(1) == 1 {
			return t0
		}
		return t0.Add(time.Hour)
	}

	sum := o.Run(context.Background(), Options{Budget: 30 * time.Minute})

	if runner.didRun("greenhouse/a") || runner.didRun("greenhouse/b") {
		t.Error("units started after the budget elapsed")
	}
	want := []string{"greenhouse/a", "greenhouse/b"}
	if len(sum.SkippedBudget) != 2 || sum.SkippedBudget[0] != want[0] || sum.SkippedBudget[1] != want[1] {
		t.Errorf("SkippedBudget = %v, want %v", sum.SkippedBudget, want)
	}
}

func TestRun_ConcurrencyLimitPerSource(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	sources := []Source{{
		Name:        "greenhouse",
		Connector:   nopConnector{},
		Companies:   []string{"a", "b", "c", "d", "e", "f"},
		Concurrency: 2,
	}}

	sum := newTestOrchestrator(sources, runner, newMemWatermarks(), nil).Run(context.Background(), Options{})

	if got := runner.maxSeen.Load(); got > 2 {
		t.Errorf("max in-flight units = %d, want <= 2", got)
	}
	if sum.UnitsCompleted != 6 {
		t.Errorf("UnitsCompleted = %d, want 6", sum.UnitsCompleted)
	}
}

func TestRun_FiltersSourcesAndCompanies(t *testing.T) {
	runner := &fakeRunner{}
	sources := []Source{
		{Name: "greenhouse", Connector: nopConnector{}, Companies: []string{"a", "b"}},
		{Name: "lever", Connector: nopConnector{}, Companies: []string{"a"}},
	}

	newTestOrchestrator(sources, runner, newMemWatermarks(), nil).Run(context.Background(), Options{
		Sources:   []string{"greenhouse"},
		Companies: []string{"b"},
	})

	if len(runner.ran) != 1 || runner.ran[0] != "greenhouse/b" {
		t.Errorf("ran = %v, want [greenhouse/b]", runner.ran)
	}
}

func TestRun_AggregatesAndSavesSummary(t *testing.T) {
	runs := &memRuns{}
	runner := &fakeRunner{reports: map[string]poller.UnitReport{
		"greenhouse/a": {
			Fetched:     5,
			Prefiltered: 5,
			Blocked:     map[model.BlockReason]int{model.BlockTitle: 2},
			Classified:  3,
			Upserted:    3,
		},
		"greenhouse/b": {
			Fetched:          4,
			Prefiltered:      3,
			Blocked:          map[model.BlockReason]int{model.BlockTitle: 1, model.BlockAgency: 1},
			Classified:       1,
			EnrichmentFailed: 1,
			FallbackUsed:     1,
			Upserted:         1,
			Touched:          1,
		},
	}}
	sources := []Source{{Name: "greenhouse", Connector: nopConnector{}, Companies: []string{"a", "b"}, Concurrency: 2}}

	sum := newTestOrchestrator(sources, runner, newMemWatermarks(), runs).Run(context.Background(), Options{})

	if sum.RunID == "" {
		t.Error("RunID should be set")
	}
	if sum.Fetched != 9 || sum.Classified != 4 || sum.Upserted != 4 || sum.Touched != 1 {
		t.Errorf("counts = %+v", sum)
	}
	if sum.Blocked[model.BlockTitle] != 3 || sum.Blocked[model.BlockAgency] != 1 {
		t.Errorf("Blocked = %v", sum.Blocked)
	}
	if sum.Prefiltered != 8 || sum.PrefilterReduction() != 0.5 {
		t.Errorf("Prefiltered = %d, reduction = %v", sum.Prefiltered, sum.PrefilterReduction())
	}
	if sum.EnrichmentFailed != 1 || sum.FallbackUsed != 1 {
		t.Errorf("EnrichmentFailed = %d FallbackUsed = %d", sum.EnrichmentFailed, sum.FallbackUsed)
	}
	if len(runs.saved) != 1 || runs.saved[0].RunID != sum.RunID {
		t.Errorf("saved runs = %+v", runs.saved)
	}
}

func TestRun_CancelledContextRecordsUnitErrors(t *testing.T) {
	runner := &fakeRunner{}
	sources := []Source{{Name: "greenhouse", Connector: nopConnector{}, Companies: []string{"a"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := newTestOrchestrator(sources, runner, newMemWatermarks(), nil).Run(ctx, Options{})

	if runner.didRun("greenhouse/a") {
		t.Error("unit ran after cancellation")
	}
	if _, ok := sum.UnitErrors["greenhouse/a"]; !ok {
		t.Errorf("UnitErrors = %v, want entry for greenhouse/a", sum.UnitErrors)
	}
}

type deadlineRunner struct {
	hadDeadline bool
}

func (r *deadlineRunner) RunUnit(ctx context.Context, _ model.Connector, _ model.Scope, _ *poller.ItemCap) poller.UnitReport {
	_, r.hadDeadline = ctx.Deadline()
	return poller.UnitReport{}
}

func TestRun_UnitTimeoutBoundsContext(t *testing.T) {
	runner := &deadlineRunner{}
	sources := []Source{{Name: "workday", Connector: nopConnector{}, Companies: []string{"a"}, UnitTimeout: time.Minute}}

	newTestOrchestrator(sources, runner, newMemWatermarks(), nil).Run(context.Background(), Options{})

	if !runner.hadDeadline {
		t.Error("unit context should carry the unit timeout")
	}
}

func TestRun_UnitTimeoutBoundsFetchingOnly(t *testing.T) {
	runner := &drainRunner{work: 60 * time.Millisecond}
	sources := []Source{{
		Name:        "greenhouse",
		Connector:   slowConnector{},
		Companies:   []string{"acme"},
		UnitTimeout: 20 * time.Millisecond,
	}}

	sum := newTestOrchestrator(sources, runner, newMemWatermarks(), nil).Run(context.Background(), Options{})

	if runner.hadDeadline {
		t.Error("processing context should carry no unit deadline")
	}
	if runner.processCtxErr != nil {
		t.Errorf("processing context ended early: %v", runner.processCtxErr)
	}
	if sum.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", sum.Fetched)
	}
	if msg, ok := sum.UnitErrors["greenhouse/acme"]; !ok || msg != context.DeadlineExceeded.Error() {
		t.Errorf("UnitErrors = %v, want the fetch deadline", sum.UnitErrors)
	}
}
