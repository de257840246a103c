package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scipress/scipress/internal/ai"
	"github.com/scipress/scipress/internal/events"
	"github.com/scipress/scipress/internal/pipeline"
	"github.com/scipress/scipress/internal/refine"
)

var processQuiet bool

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Run documents through the refinement pipeline",
	Long: `Process one or more documents (pre-extracted text) through
classification, extraction, appraisal, and report generation. Each content
stage runs a quality-gated refinement loop; artifacts and iteration history
are persisted to the database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		client, err := ai.NewClient(&ai.Config{
			APIKey:             cfg.AI.APIKey,
			Model:              cfg.AI.Model,
			MaxConcurrentCalls: cfg.AI.MaxConcurrentCalls,
			RequestsPerSecond:  cfg.AI.RequestsPerSecond,
		})
		if err != nil {
			return err
		}

		var observer events.Observer
		if !processQuiet {
			observer = events.NewConsoleObserver(os.Stdout)
		}
		collector := refine.NewInMemoryCollector()

		p, err := pipeline.New(cfg, client, store, observer, collector)
		if err != nil {
			return err
		}

		outcomes, err := p.ProcessAll(ctx, args)
		if err != nil {
			return err
		}

		printSummary(outcomes, collector)
		for _, outcome := range outcomes {
			if outcome.FailedStage != "" {
				os.Exit(1)
			}
		}
		return nil
	},
}

func printSummary(outcomes []*pipeline.Outcome, collector *refine.InMemoryCollector) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Processing Summary ==="))

	for _, outcome := range outcomes {
		if outcome.FailedStage != "" {
			fmt.Printf("%s %s (failed at %s)\n", red("✗"), outcome.Path, outcome.FailedStage)
		} else {
			fmt.Printf("%s %s\n", green("✓"), outcome.Path)
		}
		fmt.Printf("  Document: %s\n", outcome.DocumentID)
		for _, so := range outcome.Stages {
			marker := green("✓")
			if so.Result.FinalStatus.IsFailure() {
				marker = red("✗")
			} else if so.Result.Warning != "" {
				marker = yellow("⚠")
			}
			fmt.Printf("  %s %-10s %s  (%d iterations)", marker, so.Stage, so.Result.FinalStatus, len(so.Result.History))
			if so.Result.Warning != "" {
				fmt.Printf("  %s", yellow(so.Result.Warning))
			}
			fmt.Println()
		}
		fmt.Println()
	}

	agg := collector.Aggregate()
	if agg.TotalRuns > 0 {
		fmt.Printf("%s\n", yellow("Refinement Metrics:"))
		fmt.Printf("  Runs:            %d passed, %d maxed out, %d early stopped, %d failed\n",
			agg.PassedRuns, agg.MaxedOutRuns, agg.EarlyStoppedRuns, agg.FailedRuns)
		fmt.Printf("  Iterations:      %.1f mean (p50=%d p95=%d)\n",
			agg.MeanIterations, agg.P50Iterations, agg.P95Iterations)
		fmt.Printf("  Mean best score: %.2f\n", agg.MeanBestScore)
		fmt.Printf("  Model time:      %v\n", agg.TotalDuration.Round(time.Millisecond))
		fmt.Println()
	}
}

func init() {
	processCmd.Flags().BoolVarP(&processQuiet, "quiet", "q", false, "Suppress per-step progress output")
	rootCmd.AddCommand(processCmd)
}
