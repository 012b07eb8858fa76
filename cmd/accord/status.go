package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/events"
	"github.com/accordhq/accord/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository, approval, and budget status",
	Long:  `Display plan repository counts, pending approvals, budget settings, and recent engine activity.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== Accord Status ==="))

		// Plan repository
		fmt.Printf("%s\n", yellow("Plans:"))
		counts := make(map[types.PlanStatus]int)
		for _, status := range []types.PlanStatus{types.PlanActive, types.PlanMerged, types.PlanDeleted} {
			s := status
			plans, err := store.ListPlans(ctx, types.PlanFilter{Status: &s})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to list plans: %v\n", err)
				os.Exit(1)
			}
			counts[status] = len(plans)
		}
		fmt.Printf("  %s active, %s merged, %s deleted\n",
			green(fmt.Sprintf("%d", counts[types.PlanActive])),
			yellow(fmt.Sprintf("%d", counts[types.PlanMerged])),
			gray(fmt.Sprintf("%d", counts[types.PlanDeleted])))
		fmt.Println()

		// Approvals
		fmt.Printf("%s\n", yellow("Approvals:"))
		pending, err := store.ListPendingApprovals(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to list approvals: %v\n", err)
			os.Exit(1)
		}
		if len(pending) == 0 {
			fmt.Printf("  %s\n", gray("Nothing pending"))
		} else {
			fmt.Printf("  %s pending (run 'accord pending')\n", yellow(fmt.Sprintf("%d", len(pending))))
		}
		fmt.Println()

		// Budget
		fmt.Printf("%s\n", yellow("Budget:"))
		if cfg.BudgetUSD <= 0 {
			fmt.Printf("  %s\n", gray("Unlimited (set budget_usd to cap analyzer spend)"))
		} else {
			fmt.Printf("  $%.2f per run\n", cfg.BudgetUSD)
		}
		fmt.Println()

		// Recent activity
		fmt.Printf("%s\n", yellow("Recent activity:"))
		recent, err := store.GetEvents(ctx, events.EventFilter{Limit: 10})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to get events: %v\n", err)
			os.Exit(1)
		}
		if len(recent) == 0 {
			fmt.Printf("  %s\n", gray("No activity yet"))
		}
		for _, evt := range recent {
			marker := gray("·")
			switch evt.Severity {
			case events.SeverityWarning:
				marker = yellow("!")
			case events.SeverityError:
				marker = red("✗")
			}
			fmt.Printf("  %s %s %s\n", marker,
				gray(evt.Timestamp.Format("01-02 15:04:05")), evt.Message)
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
