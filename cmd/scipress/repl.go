package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scipress/scipress/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start interactive shell",
	Long: `Start an interactive shell for browsing processed documents,
refinement runs, iteration history, and selected artifacts.

Type 'help' in the shell for available commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repl.New(&repl.Config{Store: store})
		if err != nil {
			return err
		}
		return r.Run(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
