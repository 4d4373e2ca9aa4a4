package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"ghostprompt/internal/usage"

	"github.com/spf13/cobra"
)

var usageJSON bool

// usageCmd prints aggregated prompt statistics
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show aggregated prompt statistics",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageJSON, "json", false, "Print raw JSON")
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tracker, err := usage.NewTracker(cfg.WorkspacePath(cfg.Usage.Dir))
	if err != nil {
		return err
	}
	defer tracker.Close()

	stats := tracker.Stats()
	if usageJSON {
		return writeJSON(cmd.OutOrStdout(), stats)
	}
	printUsage(cmd.OutOrStdout(), stats)
	return nil
}

func printUsage(w io.Writer, s usage.AggregatedStats) {
	fmt.Fprintf(w, "Prompts: %d\n", s.TotalPrompts)
	if s.TotalPrompts == 0 {
		return
	}
	fmt.Fprintf(w, "Tokens:  %d prefix, %d suffix (%d prompts)\n", s.Tokens.Prefix, s.Tokens.Suffix, s.Tokens.Prompts)
	fmt.Fprintf(w, "Compute: %.1fms mean, %.1fms max\n", s.ComputeTime.MeanMs(), s.ComputeTime.MaxMs)

	fmt.Fprintln(w, "\nResults:")
	for _, k := range slices.Sorted(maps.Keys(s.ByResult)) {
		fmt.Fprintf(w, "  %-24s %d\n", k, s.ByResult[k])
	}
	if len(s.ByLanguage) > 0 {
		fmt.Fprintln(w, "\nLanguages:")
		for _, k := range slices.Sorted(maps.Keys(s.ByLanguage)) {
			tc := s.ByLanguage[k]
			fmt.Fprintf(w, "  %-24s %d prompts, %d tokens\n", k, tc.Prompts, tc.Total)
		}
	}
	if len(s.ByProvider) > 0 {
		fmt.Fprintln(w, "\nContext providers:")
		for _, k := range slices.Sorted(maps.Keys(s.ByProvider)) {
			pc := s.ByProvider[k]
			fmt.Fprintf(w, "  %-24s %d resolved, %d used, %d partial\n", k, pc.ResolvedItems, pc.UsedItems, pc.PartialItems)
		}
	}
}
