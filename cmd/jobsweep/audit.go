package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsweep/internal/audit"
	"github.com/amishk599/jobsweep/internal/config"
	"github.com/amishk599/jobsweep/internal/model"
)

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse the posting ledger interactively (TUI)",
	Long:  "Shows the source picker, then a split-pane view of blocked and passed postings with a detail pane.",
	RunE:  runAuditCmd,
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 500, "maximum ledger rows to load per source")
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)

	ctx := context.Background()
	st, err := openStore(ctx, cfg, false)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	runAudit(ctx, cfg, st)
	return nil
}

func runAudit(ctx context.Context, cfg *config.Config, st model.Store) {
	counts, err := st.LedgerCounts(ctx)
	if err != nil {
		fmt.Printf("Error reading ledger: %v\n", err)
		return
	}
	items := sourceItems(cfg, counts)
	if len(items) == 0 {
		fmt.Println("No sources configured and the ledger is empty.")
		return
	}

	for {
		choice, err := audit.RunSourcePicker(items)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		src := items[choice].Name

		entries, err := audit.RunLoader(src, func(ctx context.Context) ([]audit.Entry, error) {
			return audit.LoadEntries(ctx, st, src, auditLimit)
		})
		if err != nil {
			fmt.Printf("Error loading ledger: %v\n", err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(src, entries, st)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
		// else: loop → back to picker
	}
}

// sourceItems lists configured sources first, then any source that only
// exists in the ledger.
func sourceItems(cfg *config.Config, counts []model.LedgerCount) []audit.SourceItem {
	byName := make(map[string]model.LedgerCount, len(counts))
	for _, c := range counts {
		byName[c.Source] = c
	}

	var items []audit.SourceItem
	listed := make(map[string]bool)
	for _, s := range cfg.Sources {
		c := byName[s.Name]
		c.Source = s.Name
		items = append(items, audit.SourceItem{Name: s.Name, Kind: s.Kind, Counts: c})
		listed[s.Name] = true
	}
	for _, c := range counts {
		if !listed[c.Source] {
			items = append(items, audit.SourceItem{Name: c.Source, Kind: "unconfigured", Counts: c})
		}
	}
	return items
}
