package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/approval"
	"github.com/accordhq/accord/internal/editor"
)

var approveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending proposal and apply it",
	Long: `Approve a proposal that was staged for human review and apply it to the
plan repository. The mutation is journaled under the run that staged it,
so 'accord journal --rollback' on that run also reverses approvals.

Use 'accord pending' to list request IDs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resolveRequest(args[0], approval.DecisionApprove)
	},
}

func init() {
	rootCmd.AddCommand(approveCmd)
}

// resolveRequest applies an offline approve/reject decision to a staged
// request. Shared with the reject command.
func resolveRequest(requestID string, decision approval.Decision) {
	ctx := context.Background()

	req, err := store.GetApprovalRequest(ctx, requestID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Journal the mutation under the run that staged the request.
	ed, err := editor.New(&editor.Config{
		Store:                store,
		AutoApproveThreshold: cfg.AutoApproveThreshold,
		RunID:                req.RunID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	gate, err := approval.New(&approval.Config{
		Store:    store,
		Editor:   ed,
		Reviewer: approval.NewTerminalReviewer(),
		Timeout:  cfg.ApprovalTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	result, err := gate.Resolve(ctx, requestID, decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	switch decision {
	case approval.DecisionApprove:
		if result != nil && result.NoOp {
			fmt.Printf("%s Approved %s (already in effect, nothing changed)\n", green("✓"), requestID)
		} else if result != nil {
			fmt.Printf("%s Approved and applied: %s\n", green("✓"), req.Proposal.Summary())
			if result.PlanID != "" {
				fmt.Printf("  Plan: %s\n", result.PlanID)
			}
		}
	case approval.DecisionReject:
		fmt.Printf("%s Rejected %s: %s\n", gray("✗"), requestID, req.Proposal.Summary())
	}
}
