package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/analyzer"
	"github.com/accordhq/accord/internal/approval"
	"github.com/accordhq/accord/internal/cost"
	"github.com/accordhq/accord/internal/engine"
	"github.com/accordhq/accord/internal/phase"
	"github.com/accordhq/accord/internal/types"
)

var (
	runID        string
	runGraphPath string
	runDocPaths  []string
	runAnalyzers []string
	runModel     string
	runNoInput   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analyze, consensus, reconcile pipeline",
	Long: `Run the full pipeline: fan the documents out to every analyzer, cluster
the recommendations into consensus, reconcile the consensus against the
plan repository, and apply the resulting proposals.

Proposals at or above the auto-approve threshold are applied immediately.
Everything below it (and every DELETE) is presented for interactive
approval, highest confidence first. With --no-input, staged proposals are
left pending for later 'accord approve' / 'accord reject'.

Interrupting the run (Ctrl-C) stops scheduling new phases; completed
phases are checkpointed and a rerun with the same --run-id resumes where
it left off.

Examples:
  accord run --doc design.md
  accord run --doc design.md --doc api.md --analyzer claude-opus --model claude-opus-4
  accord run --run-id nightly-42 --graph phases.yaml --no-input`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if len(runDocPaths) == 0 {
			fmt.Fprintf(os.Stderr, "Error: at least one --doc is required\n")
			os.Exit(1)
		}

		docs, err := loadDocuments(runDocPaths)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var graph *phase.Graph
		if runGraphPath != "" {
			graph, err = phase.LoadGraph(runGraphPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

		if runID == "" {
			runID = "run-" + uuid.New().String()[:8]
		}

		tracker, err := cost.NewTracker(&cost.Config{
			Enabled:         cfg.BudgetUSD > 0,
			MaxCostPerRun:   cfg.BudgetUSD,
			AlertThreshold:  0.80,
			InputTokenCost:  3.00,
			OutputTokenCost: 15.00,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		analyzers, err := buildAnalyzers(runAnalyzers, tracker)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		var reviewer approval.Reviewer
		if !runNoInput {
			reviewer = approval.NewTerminalReviewer()
		}

		orch, err := engine.New(&engine.Config{
			Store:     store,
			Cfg:       cfg,
			Reviewer:  reviewer,
			Documents: docs,
			Tracker:   tracker,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("%s %s (%d document(s), %d analyzer(s))\n\n",
			cyan("Starting run"), runID, len(docs), len(analyzers))

		result, err := orch.RunOnce(ctx, runID, graph, analyzers)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: run failed: %v\n", err)
			os.Exit(1)
		}

		printRunResult(result, tracker)
	},
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated if empty; reuse to resume)")
	runCmd.Flags().StringVar(&runGraphPath, "graph", "", "Path to a YAML phase graph (default: analyze -> consensus -> reconcile)")
	runCmd.Flags().StringArrayVar(&runDocPaths, "doc", nil, "Document file to analyze (repeatable)")
	runCmd.Flags().StringArrayVar(&runAnalyzers, "analyzer", []string{"claude"}, "Analyzer ID to run (repeatable)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model for Claude-backed analyzers (default: engine default)")
	runCmd.Flags().BoolVar(&runNoInput, "no-input", false, "Never prompt; leave low-confidence proposals pending")
	rootCmd.AddCommand(runCmd)
}

// loadDocuments reads each file into a Document whose ID is the
// filename without extension. Duplicate IDs are rejected because the
// analyzer cache is keyed on document ID.
func loadDocuments(paths []string) ([]*types.Document, error) {
	seen := make(map[string]string)
	docs := make([]*types.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
		base := filepath.Base(p)
		id := strings.TrimSuffix(base, filepath.Ext(base))
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("documents %s and %s share id %q", prev, p, id)
		}
		seen[id] = p
		docs = append(docs, &types.Document{ID: id, Content: string(data)})
	}
	return docs, nil
}

// buildAnalyzers creates one Claude-backed analyzer per requested ID,
// each wrapped with retry/circuit-breaker resilience and the
// read-through result cache.
func buildAnalyzers(ids []string, tracker *cost.Tracker) ([]analyzer.Analyzer, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	retryCfg := analyzer.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.AnalyzerRetries
	retryCfg.InitialBackoff = cfg.AnalyzerBackoff
	retryCfg.RequestsPerSecond = cfg.AnalyzerRateLimit

	analyzers := make([]analyzer.Analyzer, 0, len(ids))
	for _, id := range ids {
		claude, err := analyzer.NewClaude(&analyzer.ClaudeConfig{
			AnalyzerID: id,
			APIKey:     apiKey,
			Model:      runModel,
			Tracker:    tracker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create analyzer %s: %w", id, err)
		}
		wrapped := analyzer.WithCache(analyzer.WithRetry(claude, retryCfg), store, cfg.CacheTTL)
		analyzers = append(analyzers, wrapped)
	}
	return analyzers, nil
}

func printRunResult(result *types.RunResult, tracker *cost.Tracker) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("\n%s\n", bold("Run "+result.RunID))
	fmt.Printf("  Phases completed:  %d\n", result.PhasesCompleted)
	fmt.Printf("  Proposals applied: %s\n", green(fmt.Sprintf("%d", result.ProposalsApplied)))
	if result.ProposalsPendingApproval > 0 {
		fmt.Printf("  Pending approval:  %s (use 'accord pending')\n",
			yellow(fmt.Sprintf("%d", result.ProposalsPendingApproval)))
	}
	fmt.Printf("  Duration:          %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))

	if tracker != nil && tracker.TotalTokens() > 0 {
		fmt.Printf("  Tokens / cost:     %d / $%.4f\n", tracker.TotalTokens(), tracker.TotalCost())
	}

	if len(result.Errors) > 0 {
		fmt.Printf("\n%s\n", red(fmt.Sprintf("%d error(s):", len(result.Errors))))
		for _, e := range result.Errors {
			fmt.Printf("  %s %s\n", red("✗"), e.Error())
		}
	}
}
