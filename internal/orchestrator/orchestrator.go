// Package orchestrator runs every configured unit once: bounded pools per
// source, resume watermarks, a wall-clock budget and a global item cap. Unit
// failures end up in the run summary and never stop the run.
package orchestrator

import (
	"context"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/poller"
)

// DefaultConcurrency is used for sources that do not set one.
const DefaultConcurrency = 1

// Source is one upstream source and the units to fetch from it.
type Source struct {
	Name        string
	Connector   model.Connector
	Companies   []string
	Concurrency int
	UnitTimeout time.Duration // bounds fetching only, 0 for none
}

// UnitRunner runs a single unit. *poller.Pipeline satisfies it.
type UnitRunner interface {
	RunUnit(ctx context.Context, conn model.Connector, scope model.Scope, limit *poller.ItemCap) poller.UnitReport
}

// Options are the per-invocation knobs supplied by the caller.
type Options struct {
	Sources      []string      // empty means every source
	Companies    []string      // empty means every company
	ResumeWindow time.Duration // skip units completed more recently than this
	MaxItems     int           // global posting cap, 0 for none
	Budget       time.Duration // stop starting units after this long, 0 for none
}

// Orchestrator schedules units across sources.
type Orchestrator struct {
	sources    []Source
	runner     UnitRunner
	watermarks model.WatermarkStore
	runs       model.RunStore
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Orchestrator. runs may be nil.
func New(sources []Source, runner UnitRunner, watermarks model.WatermarkStore, runs model.RunStore, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sources:    sources,
		runner:     runner,
		watermarks: watermarks,
		runs:       runs,
		logger:     logger,
		now:        time.Now,
	}
}

// run is the mutable state of one invocation.
type run struct {
	opts     Options
	deadline time.Time
	limit    *poller.ItemCap

	mu      sync.Mutex
	summary model.RunSummary
}

func (r *run) overBudget(now time.Time) bool {
	return !r.deadline.IsZero() && !now.Before(r.deadline)
}

// Run executes one sweep and returns its summary. The summary is also saved
// to the run store when one is configured.
func (o *Orchestrator) Run(ctx context.Context, opts Options) model.RunSummary {
	start := o.now()
	r := &run{
		opts:  opts,
		limit: poller.NewItemCap(opts.MaxItems),
		summary: model.RunSummary{
			RunID:      uuid.NewString(),
			StartedAt:  start.UTC(),
			Blocked:    make(map[model.BlockReason]int),
			UnitErrors: make(map[string]string),
		},
	}
	if opts.Budget > 0 {
		r.deadline = start.Add(opts.Budget)
	}

	o.logger.Info("run started",
		"run_id", r.summary.RunID,
		"sources", len(o.sources),
		"resume_window", opts.ResumeWindow.String(),
		"max_items", opts.MaxItems,
		"budget", opts.Budget.String(),
	)

	var g errgroup.Group
	for _, src := range o.sources {
		if !selected(opts.Sources, src.Name) {
			continue
		}
		g.Go(func() error {
			o.runSource(ctx, src, r)
			return nil
		})
	}
	_ = g.Wait()

	sum := r.summary
	sort.Strings(sum.SkippedResume)
	sort.Strings(sum.SkippedBudget)
	sum.FinishedAt = o.now().UTC()

	if o.runs != nil {
		if err := o.runs.SaveRun(context.WithoutCancel(ctx), sum); err != nil {
			o.logger.Error("saving run summary", "run_id", sum.RunID, "error", err)
		}
	}

	o.logger.Info("run finished",
		"run_id", sum.RunID,
		"duration", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond).String(),
		"fetched", sum.Fetched,
		"blocked", sum.BlockedTotal(),
		"classified", sum.Classified,
		"failed", sum.EnrichmentFailed,
		"upserted", sum.Upserted,
		"skipped_resume", len(sum.SkippedResume),
		"skipped_budget", len(sum.SkippedBudget),
		"unit_errors", len(sum.UnitErrors),
	)
	return sum
}

// runSource runs one source's units on a bounded pool.
func (o *Orchestrator) runSource(ctx context.Context, src Source, r *run) {
	limit := src.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, company := range src.Companies {
		if !selected(r.opts.Companies, company) {
			continue
		}
		scope := model.Scope{Source: src.Name, Company: company}
		unit := model.UnitKey(src.Name, company)

		if o.skipResume(ctx, scope, r) {
			r.mu.Lock()
			r.summary.SkippedResume = append(r.summary.SkippedResume, unit)
			r.mu.Unlock()
			o.logger.Debug("unit skipped by resume window", "source", src.Name, "company", company)
			continue
		}

		// Go blocks while the pool is full, so the budget is checked again
		// when the unit actually starts.
		g.Go(func() error {
			if ctx.Err() != nil {
				r.record(unit, "", poller.UnitReport{Err: ctx.Err()})
				return nil
			}
			if r.overBudget(o.now()) || r.limit.Spent() {
				r.mu.Lock()
				r.summary.SkippedBudget = append(r.summary.SkippedBudget, unit)
				r.mu.Unlock()
				return nil
			}

			conn := src.Connector
			if src.UnitTimeout > 0 {
				conn = fetchDeadline{Connector: conn, timeout: src.UnitTimeout}
			}
			report := o.runner.RunUnit(ctx, conn, scope, r.limit)
			var completed time.Time
			if report.Clean() {
				completed = o.now()
				if err := o.watermarks.SetWatermark(ctx, src.Name, company, completed); err != nil {
					o.logger.Error("writing watermark", "source", src.Name, "company", company, "error", err)
				}
			}
			r.record(unit, completedLabel(completed), report)
			return nil
		})
	}
	_ = g.Wait()
}

// skipResume reports whether the unit finished within the resume window. A
// watermark that cannot be read does not skip the unit.
func (o *Orchestrator) skipResume(ctx context.Context, scope model.Scope, r *run) bool {
	if r.opts.ResumeWindow <= 0 {
		return false
	}
	at, ok, err := o.watermarks.Watermark(ctx, scope.Source, scope.Company)
	if err != nil {
		o.logger.Warn("reading watermark", "source", scope.Source, "company", scope.Company, "error", err)
		return false
	}
	return ok && o.now().Sub(at) < r.opts.ResumeWindow
}

func completedLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// fetchDeadline bounds a unit's connector calls. Classification and store
// writes run on the caller's context, so an in-flight oracle call is never
// cut off by the unit deadline; the clock still runs while a posting is
// processed.
type fetchDeadline struct {
	model.Connector
	timeout time.Duration
}

func (f fetchDeadline) Fetch(ctx context.Context, scope model.Scope) iter.Seq2[model.RawPosting, error] {
	return func(yield func(model.RawPosting, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		for p, err := range f.Connector.Fetch(ctx, scope) {
			if !yield(p, err) {
				return
			}
		}
	}
}

// record folds a unit report into the summary.
func (r *run) record(unit, completed string, rep poller.UnitReport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.summary
	s.Fetched += rep.Fetched
	s.Prefiltered += rep.Prefiltered
	for reason, n := range rep.Blocked {
		s.Blocked[reason] += n
	}
	s.Classified += rep.Classified
	s.EnrichmentFailed += rep.EnrichmentFailed
	s.FallbackUsed += rep.FallbackUsed
	s.Upserted += rep.Upserted
	s.Touched += rep.Touched
	s.UpsertAnomalies += rep.Anomalies
	s.AgencyFlagged += rep.AgencyFlagged
	s.UnmappedSkills += rep.UnmappedSkills
	if rep.Capped {
		s.Capped = true
	}
	if rep.Err != nil {
		s.UnitErrors[unit] = rep.Err.Error()
	}
	if completed != "" {
		s.UnitsCompleted++
	}
}

func selected(filter []string, name string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == name {
			return true
		}
	}
	return false
}
