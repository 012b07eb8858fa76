package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/types"
)

var (
	plansStatus string
	plansLimit  int
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "List plans in the repository",
	Long: `List plans in the repository, newest first.

Examples:
  accord plans
  accord plans --status active
  accord plans --status deleted --limit 10`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		filter := types.PlanFilter{Limit: plansLimit}
		if plansStatus != "" {
			status := types.PlanStatus(strings.ToLower(plansStatus))
			if !status.IsValid() {
				fmt.Fprintf(os.Stderr, "Error: invalid status %q (active, merged, deleted)\n", plansStatus)
				os.Exit(1)
			}
			filter.Status = &status
		}

		plans, err := store.ListPlans(ctx, filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(plans) == 0 {
			fmt.Printf("%s\n", gray("No plans found"))
			return
		}

		for _, plan := range plans {
			fmt.Printf("%s %s v%d %-6s %s\n",
				planStatusBadge(plan.Status), plan.ID, plan.Version, plan.Priority, plan.Title)
			if len(plan.SourceRecommendationIDs) > 0 {
				fmt.Printf("    %s\n", gray("from "+strings.Join(plan.SourceRecommendationIDs, ", ")))
			}
		}
		fmt.Printf("\n%d plan(s)\n", len(plans))
	},
}

func init() {
	plansCmd.Flags().StringVar(&plansStatus, "status", "", "Filter by status (active, merged, deleted)")
	plansCmd.Flags().IntVar(&plansLimit, "limit", 0, "Maximum number of plans to show (0 = all)")
	rootCmd.AddCommand(plansCmd)
}

func planStatusBadge(status types.PlanStatus) string {
	switch status {
	case types.PlanActive:
		return color.New(color.FgGreen).Sprint("●")
	case types.PlanMerged:
		return color.New(color.FgYellow).Sprint("◐")
	case types.PlanDeleted:
		return color.New(color.FgHiBlack).Sprint("○")
	default:
		return "?"
	}
}
