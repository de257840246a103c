package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scipress/scipress/internal/storage"
	"github.com/scipress/scipress/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processed documents and their pipeline outcomes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== scipress Status ==="))

		docs, err := store.ListDocuments(ctx)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		if len(docs) == 0 {
			fmt.Printf("  %s\n\n", gray("No documents processed yet"))
			return nil
		}

		completed, failed, processing := 0, 0, 0
		for _, doc := range docs {
			var marker string
			switch doc.Status {
			case storage.DocumentCompleted:
				marker = green("●")
				completed++
			case storage.DocumentFailed:
				marker = red("✗")
				failed++
			default:
				marker = gray("○")
				processing++
			}
			fmt.Printf("%s %s\n", marker, doc.Path)
			fmt.Printf("  Document: %s\n", doc.DocumentID)
			fmt.Printf("  Ingested: %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))

			runs, err := store.ListRuns(ctx, doc.DocumentID)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			for _, run := range runs {
				runMarker := green("✓")
				switch {
				case run.FinalStatus.IsFailure():
					runMarker = red("✗")
				case run.FinalStatus == types.StatusMaxIterationsReached,
					run.FinalStatus == types.StatusEarlyStoppedDegrading:
					runMarker = yellow("⚠")
				case run.FinalStatus == "running":
					runMarker = gray("○")
				}
				fmt.Printf("  %s %-10s %s  (%d iterations, run %s)\n",
					runMarker, run.Stage, run.FinalStatus, run.Iterations, run.RunID)
			}
			fmt.Println()
		}

		fmt.Printf("Total: %s completed", green(fmt.Sprintf("%d", completed)))
		if failed > 0 {
			fmt.Printf(", %s failed", red(fmt.Sprintf("%d", failed)))
		}
		if processing > 0 {
			fmt.Printf(", %s in progress", gray(fmt.Sprintf("%d", processing)))
		}
		fmt.Println()
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
