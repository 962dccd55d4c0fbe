package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsweep/internal/orchestrator"
)

var runFlags struct {
	sources     []string
	companies   []string
	resumeHours float64
	maxItems    int
	budget      time.Duration
	dryRun      bool
	json        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion sweep",
	Long: "Fetches every configured unit once, filters, classifies and merges the postings, " +
		"then prints the run summary. Unit failures are reported in the summary, not as an exit code.",
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVar(&runFlags.sources, "source", nil, "only run these sources")
	f.StringSliceVar(&runFlags.companies, "company", nil, "only run these companies")
	f.Float64Var(&runFlags.resumeHours, "resume-hours", 0, "skip units completed within this many hours (default: run.resume_window)")
	f.IntVar(&runFlags.maxItems, "max-items", 0, "stop after this many postings across all units (default: run.max_items)")
	f.DurationVar(&runFlags.budget, "budget", 0, "stop starting units after this long (default: run.budget)")
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "classify but persist nothing")
	f.BoolVar(&runFlags.json, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	opts := orchestrator.Options{
		Sources:      runFlags.sources,
		Companies:    runFlags.companies,
		ResumeWindow: cfg.Run.ResumeWindow,
		MaxItems:     cfg.Run.MaxItems,
		Budget:       cfg.Run.Budget,
	}
	flags := cmd.Flags()
	if flags.Changed("resume-hours") {
		opts.ResumeWindow = time.Duration(runFlags.resumeHours * float64(time.Hour))
	}
	if flags.Changed("max-items") {
		opts.MaxItems = runFlags.maxItems
	}
	if flags.Changed("budget") {
		opts.Budget = runFlags.budget
	}
	if runFlags.dryRun {
		logger.Info("dry-run mode enabled, nothing will be persisted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, runFlags.dryRun, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if len(a.sources) == 0 {
		logger.Error("no sources to run")
		os.Exit(1)
	}

	summary := a.orchestrator().Run(ctx, opts)

	n := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	if err := n.Notify(context.WithoutCancel(ctx), summary); err != nil {
		logger.Error("delivering run summary", "error", err)
	}

	out := cmd.OutOrStdout()
	if runFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(out, summary)
	return nil
}
