package phase

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/accordhq/accord/internal/types"
)

// WriteReport prints a human-readable phase status summary
func WriteReport(w io.Writer, records []*types.PhaseRecord) {
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "%s\n", bold("Phase Status"))
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 56))
	for _, rec := range records {
		line := fmt.Sprintf("%-20s %-14s runs=%d", rec.PhaseID, colorStatus(rec.Status), rec.RunCount)
		if rec.LastDuration > 0 {
			line += fmt.Sprintf(" last=%s", rec.LastDuration.Round(time.Millisecond))
		}
		if len(rec.Prerequisites) > 0 {
			line += fmt.Sprintf(" after=%s", strings.Join(rec.Prerequisites, ","))
		}
		fmt.Fprintln(w, line)
	}
}

// WriteReportJSON prints one JSON record per phase
func WriteReportJSON(w io.Writer, records []*types.PhaseRecord) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func colorStatus(status types.PhaseStatus) string {
	switch status {
	case types.PhaseCompleted:
		return color.GreenString(string(status))
	case types.PhaseFailed:
		return color.RedString(string(status))
	case types.PhaseInProgress:
		return color.CyanString(string(status))
	case types.PhaseNeedsRerun:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}
