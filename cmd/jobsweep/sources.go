package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsweep/internal/config"
	"github.com/amishk599/jobsweep/internal/dedup"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and companies",
	Long:  "Reads the config and prints a table of sources with their priority, connector kind and companies.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	cfg := mustLoad(logger)
	printSources(cmd.OutOrStdout(), cfg)
	return nil
}

func printSources(w io.Writer, cfg *config.Config) {
	prio := dedup.NewPriorities(cfg.Priorities)

	fmt.Fprintf(w, "%-16s %-11s %-8s %-9s %-6s %s\n", "Source", "Type", "Kind", "Priority", "Pool", "Companies")
	fmt.Fprintln(w, strings.Repeat("─", 72))

	enabled, total := 0, 0
	for _, s := range cfg.Sources {
		rank := "-"
		if r := prio.Rank(s.Name); r != math.MaxInt {
			rank = fmt.Sprint(r)
		}
		on := s.EnabledCompanies()
		names := make([]string, 0, len(on))
		for _, c := range on {
			names = append(names, c.Name)
		}
		fmt.Fprintf(w, "%-16s %-11s %-8s %-9s %-6d %s\n", s.Name, s.Type, s.Kind, rank, s.Concurrency, strings.Join(names, ", "))
		enabled += len(on)
		total += len(s.Companies)
	}

	fmt.Fprintf(w, "\nTotal: %d sources, %d companies (%d enabled, %d disabled)\n",
		len(cfg.Sources), total, enabled, total-enabled)
}
