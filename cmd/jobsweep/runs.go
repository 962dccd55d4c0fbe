package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsweep/internal/model"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run summaries",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	ctx := context.Background()
	st, err := openStore(ctx, cfg, false)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	runs, err := st.RecentRuns(ctx, runsLimit)
	if err != nil {
		logger.Error("failed to read runs", "error", err)
		os.Exit(1)
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func printRuns(w io.Writer, runs []model.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	fmt.Fprintf(w, "%-10s %-20s %-9s %7s %7s %10s %6s %8s %6s\n",
		"Run", "Started", "Took", "Fetched", "Blocked", "Classified", "Failed", "Upserted", "Errors")
	fmt.Fprintln(w, strings.Repeat("─", 92))
	for _, r := range runs {
		took := "-"
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%-10s %-20s %-9s %7d %7d %10d %6d %8d %6d\n",
			shortRunID(r.RunID),
			r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			took,
			r.Fetched,
			r.BlockedTotal(),
			r.Classified,
			r.EnrichmentFailed,
			r.Upserted,
			len(r.UnitErrors),
		)
	}
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
