package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/accordhq/accord/internal/types"
)

// TerminalReviewer prompts a human at the terminal for each request
type TerminalReviewer struct{}

// NewTerminalReviewer creates an interactive reviewer
func NewTerminalReviewer() *TerminalReviewer {
	return &TerminalReviewer{}
}

// Review presents the proposal and reads a verdict. Supports an
// auto-approve escape hatch for unattended runs.
func (r *TerminalReviewer) Review(ctx context.Context, req *types.ApprovalRequest) (Decision, error) {
	if os.Getenv("ACCORD_AUTO_APPROVE") == "true" {
		return DecisionApprove, nil
	}

	r.printRequest(req)

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("approve? [y/n/d=details]: "),
		InterruptPrompt: "^C",
		EOFPrompt:       "n",
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return DecisionReject, nil
			}
			return "", err
		}

		switch strings.TrimSpace(strings.ToLower(line)) {
		case "y", "yes":
			return DecisionApprove, nil
		case "n", "no":
			return DecisionReject, nil
		case "d", "details":
			r.printDetails(req)
		default:
			fmt.Println("Please enter y, n, or d.")
		}
	}
}

func (r *TerminalReviewer) printRequest(req *types.ApprovalRequest) {
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Println()
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("%s %s\n", bold("Pending proposal:"), req.Proposal.Summary())
	fmt.Printf("  Operation:  %s\n", req.Proposal.Op)
	fmt.Printf("  Confidence: %s\n", yellow(fmt.Sprintf("%.2f", req.Proposal.Confidence)))
	if req.Proposal.Rationale != "" {
		fmt.Printf("  Rationale:  %s\n", req.Proposal.Rationale)
	}
	if req.Proposal.Op == types.OpDelete {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("  %s\n", red("Deletions are never applied without approval."))
	}
	fmt.Println(strings.Repeat("=", 72))
}

func (r *TerminalReviewer) printDetails(req *types.ApprovalRequest) {
	data, err := json.MarshalIndent(req.Proposal, "", "  ")
	if err != nil {
		fmt.Printf("Error rendering proposal: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
