// Package phase tracks execution state for the named phases of a run.
// The machine enforces prerequisite satisfaction, records transitions,
// and cascades rerun marks to downstream phases when an upstream phase
// mutates shared artifacts.
package phase

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/accordhq/accord/internal/types"
)

var (
	// ErrPrerequisiteViolation indicates an attempt to start a phase
	// whose prerequisites are not all completed or skipped. This is a
	// programming error in the scheduler, never retried.
	ErrPrerequisiteViolation = errors.New("prerequisite not satisfied")

	// ErrInvalidTransition indicates a transition the state machine
	// does not permit
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrUnknownPhase indicates a phase ID absent from the graph
	ErrUnknownPhase = errors.New("unknown phase")
)

// Machine owns the PhaseRecords of one run. All mutation goes through
// its methods; records handed out are copies.
type Machine struct {
	mu      sync.Mutex
	records map[string]*types.PhaseRecord
	order   []string
}

// NewMachine builds a state machine from a validated graph. Phases
// marked skip start out Skipped, everything else NotStarted.
func NewMachine(graph *Graph) *Machine {
	records := make(map[string]*types.PhaseRecord, len(graph.Phases))
	for _, def := range graph.Phases {
		status := types.PhaseNotStarted
		if def.Skip {
			status = types.PhaseSkipped
		}
		records[def.ID] = &types.PhaseRecord{
			PhaseID:       def.ID,
			Status:        status,
			Prerequisites: append([]string{}, def.Prerequisites...),
			Dependents:    append([]string{}, graph.dependents[def.ID]...),
		}
	}
	return &Machine{records: records, order: graph.order}
}

// Start transitions a phase to InProgress. Every prerequisite must be
// Completed or Skipped.
func (m *Machine) Start(phaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[phaseID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}
	switch rec.Status {
	case types.PhaseNotStarted, types.PhaseNeedsRerun, types.PhaseFailed:
	default:
		return fmt.Errorf("%w: cannot start phase %s from %s", ErrInvalidTransition, phaseID, rec.Status)
	}
	for _, pre := range rec.Prerequisites {
		preRec, ok := m.records[pre]
		if !ok {
			return fmt.Errorf("%w: prerequisite %s of %s", ErrUnknownPhase, pre, phaseID)
		}
		if !preRec.Status.SatisfiesPrerequisite() {
			return fmt.Errorf("%w: phase %s requires %s (currently %s)",
				ErrPrerequisiteViolation, phaseID, pre, preRec.Status)
		}
	}
	rec.Status = types.PhaseInProgress
	rec.RunCount++
	return nil
}

// Complete transitions an InProgress phase to Completed
func (m *Machine) Complete(phaseID string, duration time.Duration) error {
	return m.finish(phaseID, types.PhaseCompleted, duration)
}

// Fail transitions an InProgress phase to Failed
func (m *Machine) Fail(phaseID string, duration time.Duration) error {
	return m.finish(phaseID, types.PhaseFailed, duration)
}

func (m *Machine) finish(phaseID string, status types.PhaseStatus, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[phaseID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}
	if rec.Status != types.PhaseInProgress {
		return fmt.Errorf("%w: cannot finish phase %s from %s", ErrInvalidTransition, phaseID, rec.Status)
	}
	rec.Status = status
	rec.LastDuration = duration
	return nil
}

// Cascade marks every transitive dependent of phaseID NeedsRerun.
// Phases still NotStarted are left alone since they will run with the
// mutated state anyway. Returns the IDs marked, sorted.
func (m *Machine) Cascade(phaseID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[phaseID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}

	var marked []string
	visited := map[string]bool{phaseID: true}
	queue := append([]string{}, m.records[phaseID].Dependents...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		rec := m.records[id]
		switch rec.Status {
		case types.PhaseNotStarted, types.PhaseNeedsRerun, types.PhaseInProgress:
			// NotStarted runs with the mutated state anyway, and an
			// InProgress dependent finishes its current transition
			// before the scheduler consults Ready again.
		default:
			rec.Status = types.PhaseNeedsRerun
			marked = append(marked, id)
		}
		queue = append(queue, rec.Dependents...)
	}
	sort.Strings(marked)
	return marked, nil
}

// MarkSkipped forces a phase to Skipped regardless of current state
func (m *Machine) MarkSkipped(phaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[phaseID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}
	rec.Status = types.PhaseSkipped
	return nil
}

// MarkCompleted restores a phase to Completed without running it. Used
// when resuming a run whose checkpoint shows the phase already done.
func (m *Machine) MarkCompleted(phaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[phaseID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}
	rec.Status = types.PhaseCompleted
	return nil
}

// Ready returns, in dependency order, the phases that can start now:
// status NotStarted or NeedsRerun with every prerequisite satisfied.
// Failed phases are terminal within a run; a later run may restart
// them via Start.
func (m *Machine) Ready() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []string
	for _, id := range m.order {
		rec := m.records[id]
		switch rec.Status {
		case types.PhaseNotStarted, types.PhaseNeedsRerun:
		default:
			continue
		}
		ok := true
		for _, pre := range rec.Prerequisites {
			if !m.records[pre].Status.SatisfiesPrerequisite() {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// Pending reports whether any phase still needs to run
func (m *Machine) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		switch rec.Status {
		case types.PhaseNotStarted, types.PhaseInProgress, types.PhaseNeedsRerun:
			return true
		}
	}
	return false
}

// Record returns a copy of one phase's record
func (m *Machine) Record(phaseID string) (*types.PhaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[phaseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, phaseID)
	}
	cp := *rec
	return &cp, nil
}

// Records returns copies of all records in dependency order
func (m *Machine) Records() []*types.PhaseRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.PhaseRecord, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.records[id]
		out = append(out, &cp)
	}
	return out
}
