package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var backfillFlags struct {
	source string
	limit  int
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Retry enrichment for pending ledger rows",
	Long:  "Re-attempts classification for ledger rows that passed the prefilter but have no enriched job. Blocked rows are never retried.",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFlags.source, "source", "", "only backfill this source (default: all)")
	backfillCmd.Flags().IntVar(&backfillFlags.limit, "limit", 200, "maximum rows to retry")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	report, err := a.pipeline.Backfill(ctx, backfillFlags.source, backfillFlags.limit)
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "retried %d, classified %d, failed %d, upserted %d\n",
		report.Fetched, report.Classified, report.EnrichmentFailed, report.Upserted)
	return nil
}
