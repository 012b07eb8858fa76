package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/config"
	"github.com/accordhq/accord/internal/storage"
)

var (
	// store is the shared storage backend, opened by the root command's
	// PersistentPreRunE and used by every subcommand.
	store storage.Storage

	// cfg is the loaded engine configuration.
	cfg *config.Config

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "accord",
	Short: "Recommendation consensus and plan lifecycle engine",
	Long: `Accord runs multiple AI analyzers over source documents, clusters their
recommendations into consensus, reconciles the consensus against the plan
repository, and applies the resulting plan mutations behind a
confidence-gated approval workflow.

State lives in a .accord/ directory (SQLite database plus config file).
Run 'accord init' once per project, then 'accord run' to execute the
pipeline.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init creates the database; everything else requires it.
		switch cmd.Name() {
		case "init", "help", "completion":
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		if _, statErr := os.Stat(cfg.DatabasePath); os.IsNotExist(statErr) {
			return fmt.Errorf("database not found at %s (run 'accord init' first)", cfg.DatabasePath)
		}

		store, err = storage.NewStorage(&storage.Config{Path: cfg.DatabasePath})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".accord/config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
