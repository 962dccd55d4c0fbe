// Package poller runs the per-unit pipeline: fetch, record in the ledger,
// prefilter, classify, map onto the taxonomy and merge into enriched jobs.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/amishk599/jobsweep/internal/dedup"
	"github.com/amishk599/jobsweep/internal/filter"
	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/oracle"
	"github.com/amishk599/jobsweep/internal/taxonomy"
)

// Prefilter decides whether a posting may reach the classifier.
type Prefilter interface {
	Check(p model.RawPosting) filter.Verdict
}

// Classifier is the oracle boundary.
type Classifier interface {
	Classify(ctx context.Context, req oracle.Request) oracle.Outcome
}

// Mapper turns oracle output into taxonomy values. *taxonomy.Taxonomy
// satisfies it.
type Mapper interface {
	MapSkills(names []string) ([]model.Skill, []string)
	FamilyFor(subfamily string) (string, bool)
	CanonicalEmployer(name string) string
	Subfamilies() []string
	Version() string
}

// AgencyScorer computes the soft agency heuristic stored on enriched jobs.
type AgencyScorer interface {
	Score(text string) filter.AgencyScore
}

// Keyer computes identity keys.
type Keyer interface {
	Key(p model.RawPosting) string
}

// Upserter is the dedup engine.
type Upserter interface {
	NeedsClassification(ctx context.Context, key string, p model.RawPosting) (bool, error)
	Upsert(ctx context.Context, job model.EnrichedJob) dedup.UpsertResult
	Touch(ctx context.Context, key string, seenAt time.Time) dedup.UpsertResult
}

// Deps wires a Pipeline.
type Deps struct {
	Ledger     model.Ledger
	Prefilter  Prefilter
	Classifier Classifier
	Mapper     Mapper
	Agency     AgencyScorer
	Keyer      Keyer
	Engine     Upserter
}

// Pipeline processes postings one at a time, persisting each as soon as it
// is handled so an interrupted unit keeps everything written before.
type Pipeline struct {
	Deps
	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{Deps: deps, logger: logger, now: time.Now}
}

// UnitReport counts what happened to one unit's postings.
type UnitReport struct {
	Source           string
	Company          string
	Fetched          int
	Prefiltered      int
	Blocked          map[model.BlockReason]int
	Classified       int
	EnrichmentFailed int
	FallbackUsed     int
	Upserted         int
	Touched          int
	Anomalies        int
	AgencyFlagged    int
	UnmappedSkills   int
	Capped           bool
	Duration         time.Duration
	Err              error // connector failure that ended the unit early
}

func newReport(source, company string) UnitReport {
	return UnitReport{Source: source, Company: company, Blocked: make(map[model.BlockReason]int)}
}

// Clean reports whether the unit ran to the end of its connector sequence.
func (r UnitReport) Clean() bool {
	return r.Err == nil && !r.Capped
}

// ItemCap is a run-wide limit on fetched postings shared by all units.
type ItemCap struct {
	remaining atomic.Int64
	limited   bool
}

// NewItemCap creates a cap of n postings; n <= 0 means no limit.
func NewItemCap(n int) *ItemCap {
	c := &ItemCap{limited: n > 0}
	c.remaining.Store(int64(n))
	return c
}

// Spent reports whether no postings are left.
func (c *ItemCap) Spent() bool {
	return c != nil && c.limited && c.remaining.Load() <= 0
}

// Take claims one posting, reporting false once the cap is spent.
func (c *ItemCap) Take() bool {
	if c == nil || !c.limited {
		return true
	}
	return c.remaining.Add(-1) >= 0
}

// RunUnit drains conn for scope. A connector error ends the unit; postings
// already yielded are kept.
func (p *Pipeline) RunUnit(ctx context.Context, conn model.Connector, scope model.Scope, limit *ItemCap) UnitReport {
	start := p.now()
	report := newReport(scope.Source, scope.Company)

	for posting, err := range conn.Fetch(ctx, scope) {
		if err != nil {
			report.Err = err
			break
		}
		if !limit.Take() {
			report.Capped = true
			break
		}
		report.Fetched++
		p.process(ctx, posting, &report)
	}

	report.Duration = p.now().Sub(start)
	level := slog.LevelInfo
	if report.Err != nil {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "unit finished",
		"source", scope.Source,
		"company", scope.Company,
		"fetched", report.Fetched,
		"blocked", sum(report.Blocked),
		"classified", report.Classified,
		"failed", report.EnrichmentFailed,
		"upserted", report.Upserted,
		"touched", report.Touched,
		"capped", report.Capped,
		"error", report.Err,
	)
	return report
}

// Backfill re-attempts enrichment for unblocked ledger rows that have no
// enriched job. Blocked rows are never returned by the ledger.
func (p *Pipeline) Backfill(ctx context.Context, source string, limit int) (UnitReport, error) {
	report := newReport(source, "backfill")
	pending, err := p.Ledger.PendingEnrichment(ctx, source, limit)
	if err != nil {
		return report, err
	}
	for _, posting := range pending {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
		report.Fetched++
		p.enrich(ctx, posting, &report)
	}
	p.logger.Info("backfill finished",
		"source", source,
		"pending", len(pending),
		"classified", report.Classified,
		"failed", report.EnrichmentFailed,
	)
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, posting model.RawPosting, report *UnitReport) {
	now := p.now().UTC()
	posting.FirstSeen = now
	posting.LastSeen = now
	posting.ContentHash = dedup.ContentHash(posting)
	posting.IdentityKey = p.Keyer.Key(posting)

	stored, err := p.Ledger.RecordSighting(ctx, posting)
	if err != nil {
		p.logger.Error("recording sighting", "source", posting.Source, "job_id", posting.SourceJobID, "error", err)
		report.Anomalies++
		return
	}

	verdict := p.Prefilter.Check(stored)
	report.Prefiltered++
	if verdict.Reason != stored.BlockedReason {
		if err := p.Ledger.SetBlockedReason(ctx, stored, verdict.Reason); err != nil {
			p.logger.Error("recording prefilter verdict", "source", stored.Source, "job_id", stored.SourceJobID, "error", err)
			report.Anomalies++
			return
		}
		stored.BlockedReason = verdict.Reason
	}
	if !verdict.Passed() {
		report.Blocked[verdict.Reason]++
		p.logger.Debug("posting blocked",
			"source", stored.Source,
			"job_id", stored.SourceJobID,
			"reason", verdict.Reason,
			"detail", verdict.Detail,
		)
		return
	}

	p.enrich(ctx, stored, report)
}

func (p *Pipeline) enrich(ctx context.Context, stored model.RawPosting, report *UnitReport) {
	need, err := p.Engine.NeedsClassification(ctx, stored.IdentityKey, stored)
	if err != nil {
		p.logger.Error("checking enriched job", "key", stored.IdentityKey, "error", err)
		report.Anomalies++
		return
	}
	if !need {
		res := p.Engine.Touch(ctx, stored.IdentityKey, stored.LastSeen)
		p.count(res, report)
		return
	}

	out := p.Classifier.Classify(ctx, oracle.Request{
		Source:          stored.Source,
		Title:           stored.Title,
		Description:     stored.Description,
		TaxonomyVersion: p.Mapper.Version(),
		Subfamilies:     p.Mapper.Subfamilies(),
	})
	if out.FallbackUsed {
		report.FallbackUsed++
	}
	if out.Kind != oracle.KindSuccess {
		report.EnrichmentFailed++
		p.logger.Warn("classification failed",
			"source", stored.Source,
			"job_id", stored.SourceJobID,
			"kind", out.Kind,
			"model", out.Model,
			"attempts", out.Attempts,
			"error", out.Err,
		)
		return
	}
	report.Classified++

	job := p.buildJob(stored, out, report)
	p.count(p.Engine.Upsert(ctx, job), report)
}

// buildJob combines the posting, the oracle result and the taxonomy.
// Families always come from the taxonomy, never from the oracle.
func (p *Pipeline) buildJob(stored model.RawPosting, out oracle.Outcome, report *UnitReport) model.EnrichedJob {
	res := out.Result

	skills, unmapped := p.Mapper.MapSkills(res.Skills)
	if len(unmapped) > 0 {
		report.UnmappedSkills += len(unmapped)
		p.logger.Info("unmapped skills",
			"source", stored.Source,
			"job_id", stored.SourceJobID,
			"skills", strings.Join(unmapped, ", "),
			"taxonomy_version", p.Mapper.Version(),
		)
	}

	family, ok := p.Mapper.FamilyFor(res.JobSubfamily)
	if !ok && res.JobSubfamily != "" {
		p.logger.Warn("subfamily missing from taxonomy",
			"subfamily", res.JobSubfamily,
			"taxonomy_version", p.Mapper.Version(),
		)
	}

	evidence := stored.Title + "\n" + stored.Location + "\n" + stored.Description
	arrangement := taxonomy.NormalizeArrangement(res.WorkingArrangement, evidence)

	comp := stored.Compensation
	if comp == nil {
		comp = res.Compensation
	}

	var agency filter.AgencyScore
	if p.Agency != nil {
		agency = p.Agency.Score(stored.Employer + "\n" + stored.Description)
		if agency.Flagged {
			report.AgencyFlagged++
		}
	}

	return model.EnrichedJob{
		IdentityKey:        stored.IdentityKey,
		Employer:           p.Mapper.CanonicalEmployer(stored.Employer),
		Title:              stored.Title,
		JobFamily:          family,
		JobSubfamily:       res.JobSubfamily,
		Seniority:          res.Seniority,
		Track:              res.Track,
		WorkingArrangement: arrangement,
		Skills:             skills,
		Compensation:       comp,
		Summary:            res.Summary,
		Source:             stored.Source,
		ContentHash:        stored.ContentHash,
		ContentSeenAt:      stored.FirstSeen,
		AgencyScore:        agency.Score,
		AgencySignals:      agency.Signals,
		Model:              out.Model,
		TaxonomyVersion:    p.Mapper.Version(),
		FirstSeen:          stored.FirstSeen,
		LastSeen:           stored.LastSeen,
	}
}

func (p *Pipeline) count(res dedup.UpsertResult, report *UnitReport) {
	switch res.Action {
	case dedup.ActionInserted, dedup.ActionUpdated:
		report.Upserted++
	case dedup.ActionTouched, dedup.ActionUnchanged:
		report.Touched++
	case dedup.ActionAnomaly:
		report.Anomalies++
		if errors.Is(res.Err, model.ErrNotFound) {
			p.logger.Warn("touched job disappeared", "key", res.Key)
		}
	}
}

func sum(m map[model.BlockReason]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}
