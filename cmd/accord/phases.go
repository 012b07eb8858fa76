package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/accordhq/accord/internal/engine"
	"github.com/accordhq/accord/internal/events"
	"github.com/accordhq/accord/internal/phase"
	"github.com/accordhq/accord/internal/types"
)

var (
	phasesRunID string
	phasesJSON  bool
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "Show per-phase status for a run",
	Long: `Reconstruct the phase timeline of a run from its stored events and
checkpoints: how often each phase ran, how it ended, and which phases
were marked for rerun by a cascade.

Examples:
  accord phases --run-id nightly-42
  accord phases --run-id nightly-42 --json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		if phasesRunID == "" {
			fmt.Fprintf(os.Stderr, "Error: --run-id is required\n")
			os.Exit(1)
		}

		records, err := reconstructPhases(ctx, phasesRunID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No phase activity recorded for run "+phasesRunID))
			return
		}

		if phasesJSON {
			if err := phase.WriteReportJSON(os.Stdout, records); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
		phase.WriteReport(os.Stdout, records)
	},
}

func init() {
	phasesCmd.Flags().StringVar(&phasesRunID, "run-id", "", "Run to report on (required)")
	phasesCmd.Flags().BoolVar(&phasesJSON, "json", false, "Emit one JSON record per phase")
	rootCmd.AddCommand(phasesCmd)
}

// reconstructPhases rebuilds phase records from the run's event log,
// then overlays completion checkpoints. Events come back newest first,
// so they are replayed in reverse to apply transitions in order.
func reconstructPhases(ctx context.Context, runID string) ([]*types.PhaseRecord, error) {
	evts, err := store.GetEvents(ctx, events.EventFilter{RunID: runID})
	if err != nil {
		return nil, err
	}
	checkpoints, err := store.LoadCheckpoints(ctx, runID)
	if err != nil {
		return nil, err
	}

	recs := make(map[string]*types.PhaseRecord)
	record := func(phaseID string) *types.PhaseRecord {
		if rec, ok := recs[phaseID]; ok {
			return rec
		}
		rec := &types.PhaseRecord{PhaseID: phaseID, Status: types.PhaseNotStarted}
		recs[phaseID] = rec
		return rec
	}

	for i := len(evts) - 1; i >= 0; i-- {
		evt := evts[i]
		if evt.PhaseID == "" {
			continue
		}
		switch evt.Type {
		case events.EventTypePhaseStarted:
			rec := record(evt.PhaseID)
			rec.Status = types.PhaseInProgress
			rec.RunCount++
		case events.EventTypePhaseCompleted:
			record(evt.PhaseID).Status = types.PhaseCompleted
		case events.EventTypePhaseFailed:
			record(evt.PhaseID).Status = types.PhaseFailed
		case events.EventTypePhaseSkipped:
			record(evt.PhaseID).Status = types.PhaseSkipped
		case events.EventTypeCascadeMarked:
			if marked, ok := evt.Data["marked"].([]interface{}); ok {
				for _, m := range marked {
					if id, ok := m.(string); ok {
						record(id).Status = types.PhaseNeedsRerun
					}
				}
			}
		}
	}

	// Checkpoints outlive the event log retention, so a phase known
	// only from its checkpoint still shows up as completed.
	for phaseID, cp := range checkpoints {
		if engine.CheckpointCompleted(cp.Progress) {
			rec := record(phaseID)
			if rec.Status == types.PhaseNotStarted {
				rec.Status = types.PhaseCompleted
			}
		}
	}

	ids := make([]string, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ordered := make([]*types.PhaseRecord, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, recs[id])
	}
	return ordered, nil
}
