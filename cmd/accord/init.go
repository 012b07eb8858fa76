package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/config"
	"github.com/accordhq/accord/internal/storage"
)

const defaultConfigTemplate = `# accord engine configuration. Unset keys use built-in defaults;
# ACCORD_* environment variables override everything here.

# similarity_threshold: 0.85
# coverage_threshold: 0.5
# duplicate_threshold: 0.85
# auto_approve_threshold: 0.85
# approval_timeout: 10m
# max_workers: 4
# cache_ttl: 168h
# analyzer_retries: 3
# analyzer_backoff: 1s
# analyzer_rate_limit: 2
# budget_usd: 0
# database_path: .accord/accord.db
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an accord project in the current directory",
	Long: `Initialize an accord project by creating a .accord/ directory with a
SQLite database and a commented config file.

This creates:
  - .accord/ directory
  - .accord/accord.db (SQLite database, schema applied)
  - .accord/config.yaml (config template, all defaults)

Example:
  cd ~/myproject
  accord init
  accord run --doc design.md`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := os.MkdirAll(filepath.Dir(loaded.DatabasePath), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create directory: %v\n", err)
			os.Exit(1)
		}

		// Write the config template only if none exists.
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0644); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
				os.Exit(1)
			}
		}

		// Opening the database applies the schema.
		db, err := storage.NewStorage(&storage.Config{Path: loaded.DatabasePath})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to initialize database: %v\n", err)
			os.Exit(1)
		}
		_ = db.Close()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized accord project\n", green("✓"))
		fmt.Printf("  Database: %s\n", loaded.DatabasePath)
		fmt.Printf("  Config:   %s\n", configPath)
		fmt.Println()
		fmt.Println("Next: set ANTHROPIC_API_KEY and run 'accord run --doc <file>'")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
