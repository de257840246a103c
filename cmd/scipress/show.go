package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showArtifactOnly bool

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a refinement run's history and selected artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		runID := args[0]

		if showArtifactOnly {
			best, err := store.GetBest(ctx, runID)
			if err != nil {
				return err
			}
			pretty, err := json.MarshalIndent(json.RawMessage(best.Candidate.Raw()), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			return nil
		}

		run, err := store.GetRun(ctx, runID)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== Run %s ===", run.RunID)))
		fmt.Printf("Stage:    %s\n", run.Stage)
		fmt.Printf("Document: %s\n", run.DocumentID)
		fmt.Printf("Status:   %s\n", run.FinalStatus)
		if run.SelectionReason != "" {
			fmt.Printf("Selected: iteration %d (%s)\n", run.BestIteration, run.SelectionReason)
		}
		if run.Warning != "" {
			fmt.Printf("Warning:  %s\n", yellow(run.Warning))
		}
		if run.Elapsed > 0 {
			fmt.Printf("Elapsed:  %v\n", run.Elapsed)
		}
		fmt.Println()

		recs, err := store.GetIterations(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", yellow("Iterations:"))
		for _, rec := range recs {
			if rec.Report == nil {
				fmt.Printf("  %d: %s\n", rec.Index, gray("no report (failed structural pre-check)"))
				continue
			}
			fmt.Printf("  %d: gate=%s composite=%.3f criticals=%d\n",
				rec.Index, rec.Report.Status, rec.Report.CompositeScore, rec.Report.CriticalCount())
			dims := make([]string, 0, len(rec.Report.Scores))
			for dim := range rec.Report.Scores {
				dims = append(dims, dim)
			}
			sort.Strings(dims)
			for _, dim := range dims {
				fmt.Printf("     %s: %.3f\n", dim, rec.Report.Scores[dim])
			}
			for _, issue := range rec.Report.Issues {
				fmt.Printf("     %s [%s/%s] %s\n", gray("-"), issue.Severity, issue.Category, issue.Description)
			}
		}
		fmt.Println()
		fmt.Printf("Run 'scipress show --artifact %s' to print the selected artifact\n\n", runID)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showArtifactOnly, "artifact", false, "Print only the selected artifact JSON")
	rootCmd.AddCommand(showCmd)
}
