package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/editor"
	"github.com/accordhq/accord/internal/events"
)

var (
	journalRunID    string
	journalRollback bool
	journalYes      bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show or roll back a run's mutation journal",
	Long: `Show the journal of plan mutations a run applied, oldest first.

With --rollback, every entry not already rolled back is reversed in
reverse chronological order, restoring the repository to its state
before the run.

Examples:
  accord journal --run-id nightly-42
  accord journal --run-id nightly-42 --rollback`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if journalRunID == "" {
			fmt.Fprintf(os.Stderr, "Error: --run-id is required\n")
			os.Exit(1)
		}

		entries, err := store.GetJournal(ctx, journalRunID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(entries) == 0 {
			fmt.Printf("%s\n", gray("No journal entries for run "+journalRunID))
			return
		}

		green := color.New(color.FgGreen).SprintFunc()
		remaining := 0
		for _, entry := range entries {
			marker := green("●")
			note := ""
			if entry.RolledBack {
				marker = gray("○")
				note = gray(" (rolled back)")
			} else {
				remaining++
			}
			fmt.Printf("%s %s %s %s%s\n", marker,
				gray(entry.CreatedAt.Format("2006-01-02 15:04:05")),
				entry.ID, entry.Proposal.Summary(), note)
		}
		fmt.Printf("\n%d entr%s, %d reversible\n", len(entries), pluralY(len(entries)), remaining)

		if !journalRollback {
			return
		}
		if remaining == 0 {
			fmt.Printf("%s\n", gray("Nothing to roll back"))
			return
		}

		if !journalYes && !confirm(fmt.Sprintf("Roll back %d entr%s from run %s?", remaining, pluralY(remaining), journalRunID)) {
			fmt.Println("Aborted")
			return
		}

		ed, err := editor.New(&editor.Config{
			Store:                store,
			AutoApproveThreshold: cfg.AutoApproveThreshold,
			RunID:                journalRunID,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		reversed, err := ed.RollbackRun(ctx, journalRunID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: rollback failed after %d entr%s: %v\n", reversed, pluralY(reversed), err)
			os.Exit(1)
		}

		_ = store.StoreEvent(ctx, events.New(events.EventTypeRunRolledBack, journalRunID, "",
			events.SeverityWarning,
			fmt.Sprintf("Rolled back %d journal entr%s", reversed, pluralY(reversed)), nil))

		fmt.Printf("%s Rolled back %d entr%s\n", green("✓"), reversed, pluralY(reversed))
	},
}

func init() {
	journalCmd.Flags().StringVar(&journalRunID, "run-id", "", "Run whose journal to show (required)")
	journalCmd.Flags().BoolVar(&journalRollback, "rollback", false, "Reverse all mutations from this run")
	journalCmd.Flags().BoolVar(&journalYes, "yes", false, "Skip the rollback confirmation prompt")
	rootCmd.AddCommand(journalCmd)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
