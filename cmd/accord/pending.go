package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/types"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List proposals awaiting approval",
	Long: `List staged proposals awaiting a human decision, highest confidence
first. Resolve them with 'accord approve <request-id>' or
'accord reject <request-id>'.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		requests, err := store.ListPendingApprovals(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		if len(requests) == 0 {
			fmt.Printf("%s\n", gray("No proposals pending approval"))
			return
		}

		bold := color.New(color.Bold).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		fmt.Printf("%s\n", bold(fmt.Sprintf("%d proposal(s) pending approval", len(requests))))
		fmt.Println()
		for _, req := range requests {
			summary := req.Proposal.Summary()
			if req.Proposal.Op == types.OpDelete {
				summary = red(summary)
			}
			fmt.Printf("  %s  conf=%.2f  %s\n", req.ID, req.Proposal.Confidence, summary)
			fmt.Printf("    %s\n", gray(fmt.Sprintf("run %s, requested %s",
				req.RunID, req.RequestedAt.Format("2006-01-02 15:04:05"))))
		}
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
