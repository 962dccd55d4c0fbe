package model

import (
	"context"
	"time"
)

// RunSummary is the only user-visible failure report of a run.
type RunSummary struct {
	RunID            string              `json:"run_id"`
	StartedAt        time.Time           `json:"started_at"`
	FinishedAt       time.Time           `json:"finished_at"`
	Fetched          int                 `json:"fetched"`
	Prefiltered      int                 `json:"prefiltered"`
	Blocked          map[BlockReason]int `json:"blocked"`
	Classified       int                 `json:"classified"`
	EnrichmentFailed int                 `json:"enrichment_failed"`
	FallbackUsed     int                 `json:"fallback_used"`
	Upserted         int                 `json:"upserted"`
	Touched          int                 `json:"touched"`
	UpsertAnomalies  int                 `json:"upsert_anomalies"`
	SkippedResume    []string            `json:"skipped_resume"`
	SkippedBudget    []string            `json:"skipped_budget"`
	UnitErrors       map[string]string   `json:"unit_errors"`
	AgencyFlagged    int                 `json:"agency_flagged"`
	UnmappedSkills   int                 `json:"unmapped_skills"`
	UnitsCompleted   int                 `json:"units_completed"`
	Capped           bool                `json:"capped"`
}

// BlockedTotal sums blocked postings over all reasons.
func (s RunSummary) BlockedTotal() int {
	n := 0
	for _, c := range s.Blocked {
		n += c
	}
	return n
}

// PrefilterReduction is the fraction of prefiltered postings that were
// blocked before reaching the oracle.
func (s RunSummary) PrefilterReduction() float64 {
	if s.Prefiltered == 0 {
		return 0
	}
	return float64(s.BlockedTotal()) / float64(s.Prefiltered)
}

// UnitKey formats the (source, company) pair used in summaries.
func UnitKey(source, company string) string {
	return source + "/" + company
}

// Notifier delivers a finished run summary somewhere a human will see it.
type Notifier interface {
	Notify(ctx context.Context, s RunSummary) error
}
