package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scipress/scipress/internal/config"
	"github.com/scipress/scipress/internal/storage"
	"github.com/scipress/scipress/internal/storage/sqlite"
)

var (
	configPath string
	dbPath     string

	cfg   *config.Config
	store storage.Storage
)

var rootCmd = &cobra.Command{
	Use:   "scipress",
	Short: "Quality-gated scientific document processing",
	Long: `scipress turns scientific papers into structured JSON artifacts through
iterative generate-validate-correct refinement with quality gates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		store, err = sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
