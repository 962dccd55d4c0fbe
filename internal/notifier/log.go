package notifier

import (
	"context"
	"log/slog"
	"sort"

	"github.com/amishk599/jobsweep/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes run summaries to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each summary via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the summary counters, then one warning per failed unit.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, s model.RunSummary) error {
	args := []any{
		"run_id", s.RunID,
		"fetched", s.Fetched,
		"blocked", s.BlockedTotal(),
		"prefilter_reduction", s.PrefilterReduction(),
		"classified", s.Classified,
		"enrichment_failed", s.EnrichmentFailed,
		"fallback_used", s.FallbackUsed,
		"upserted", s.Upserted,
		"touched", s.Touched,
		"upsert_anomalies", s.UpsertAnomalies,
		"agency_flagged", s.AgencyFlagged,
		"unmapped_skills", s.UnmappedSkills,
		"skipped_resume", len(s.SkippedResume),
		"skipped_budget", len(s.SkippedBudget),
		"capped", s.Capped,
	}
	if !s.FinishedAt.IsZero() {
		args = append(args, "duration", s.FinishedAt.Sub(s.StartedAt).String())
	}
	n.logger.Info("run summary", args...)

	for _, unit := range sortedKeys(s.UnitErrors) {
		n.logger.Warn("unit failed", "run_id", s.RunID, "unit", unit, "error", s.UnitErrors[unit])
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
