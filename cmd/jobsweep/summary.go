package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsweep/internal/model"
	"github.com/amishk599/jobsweep/internal/notifier"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Run summary subcommands",
}

var summaryTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a sample run summary",
	Long:  "Delivers a sample run summary through the configured notifier.",
	RunE:  runSummaryTest,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.AddCommand(summaryTestCmd)
}

func runSummaryTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := setupNotifier(cfg, httpClient, logger)

	if err := notifier.SendTestMessage(context.Background(), n); err != nil {
		logger.Error("test summary failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test summary sent successfully")
	return nil
}

// printSummary writes a human-readable run summary.
func printSummary(w io.Writer, s model.RunSummary) {
	fmt.Fprintf(w, "Run %s\n", s.RunID)
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  took               %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  units completed    %d\n", s.UnitsCompleted)
	fmt.Fprintf(w, "  fetched            %d\n", s.Fetched)
	fmt.Fprintf(w, "  blocked            %d\n", s.BlockedTotal())
	for _, reason := range sortedReasons(s.Blocked) {
		fmt.Fprintf(w, "    %-16s %d\n", reason, s.Blocked[reason])
	}
	if s.Prefiltered > 0 {
		fmt.Fprintf(w, "  prefilter cut      %.1f%% of %d\n", 100*s.PrefilterReduction(), s.Prefiltered)
	}
	fmt.Fprintf(w, "  classified         %d (fallback %d)\n", s.Classified, s.FallbackUsed)
	fmt.Fprintf(w, "  enrichment failed  %d\n", s.EnrichmentFailed)
	fmt.Fprintf(w, "  upserted           %d (touched %d)\n", s.Upserted, s.Touched)
	fmt.Fprintf(w, "  upsert anomalies   %d\n", s.UpsertAnomalies)
	fmt.Fprintf(w, "  agency flagged     %d\n", s.AgencyFlagged)
	fmt.Fprintf(w, "  unmapped skills    %d\n", s.UnmappedSkills)
	if s.Capped {
		fmt.Fprintln(w, "  item cap reached")
	}
	printUnits(w, "skipped (resume)", s.SkippedResume)
	printUnits(w, "skipped (budget)", s.SkippedBudget)

	if len(s.UnitErrors) > 0 {
		units := make([]string, 0, len(s.UnitErrors))
		for u := range s.UnitErrors {
			units = append(units, u)
		}
		sort.Strings(units)
		fmt.Fprintf(w, "  unit errors        %d\n", len(units))
		for _, u := range units {
			fmt.Fprintf(w, "    %s: %s\n", u, s.UnitErrors[u])
		}
	}
}

func printUnits(w io.Writer, label string, units []string) {
	if len(units) == 0 {
		return
	}
	fmt.Fprintf(w, "  %-18s %d: %s\n", label, len(units), strings.Join(units, ", "))
}

func sortedReasons(m map[model.BlockReason]int) []model.BlockReason {
	out := make([]model.BlockReason, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
