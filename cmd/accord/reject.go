package main

import (
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/approval"
)

var rejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending proposal",
	Long: `Reject a proposal that was staged for human review. The plan repository
is left untouched and the request is resolved permanently.

Use 'accord pending' to list request IDs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resolveRequest(args[0], approval.DecisionReject)
	},
}

func init() {
	rootCmd.AddCommand(rejectCmd)
}
