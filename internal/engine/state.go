package engine

import (
	"sync"

	"github.com/accordhq/accord/internal/consensus"
	"github.com/accordhq/accord/internal/cost"
	"github.com/accordhq/accord/internal/phase"
	"github.com/accordhq/accord/internal/types"
)

// EngineState is the shared mutable state of one run: the phase
// machine, the cost tracker, pipeline intermediates, and accumulated
// counters. Owned by the orchestrator and passed by handle; no
// package-level state.
type EngineState struct {
	RunID   string
	Machine *phase.Machine
	Tracker *cost.Tracker

	mu               sync.Mutex
	outputs          [][]types.Recommendation
	totalAnalyzers   int
	consensus        *consensus.Result
	proposalsApplied int
	errors           []types.RunError
}

// SetAnalysis records the analyzer outputs feeding consensus
func (s *EngineState) SetAnalysis(outputs [][]types.Recommendation, totalAnalyzers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = outputs
	s.totalAnalyzers = totalAnalyzers
}

// Analysis returns the recorded analyzer outputs
func (s *EngineState) Analysis() ([][]types.Recommendation, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs, s.totalAnalyzers
}

// SetConsensus records the consensus result
func (s *EngineState) SetConsensus(res *consensus.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consensus = res
}

// Consensus returns the recorded consensus result, nil before the
// consensus phase has run
func (s *EngineState) Consensus() *consensus.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consensus
}

// AddApplied increments the applied-proposal counter
func (s *EngineState) AddApplied() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposalsApplied++
}

// Applied returns the applied-proposal count
func (s *EngineState) Applied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proposalsApplied
}

// AddError accumulates a non-fatal error
func (s *EngineState) AddError(phaseID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, types.RunError{PhaseID: phaseID, Message: err.Error()})
}

// Errors returns the accumulated non-fatal errors
func (s *EngineState) Errors() []types.RunError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RunError{}, s.errors...)
}
