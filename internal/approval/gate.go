// Package approval routes below-threshold proposals through a human
// decision. Pending requests are processed highest confidence first,
// and a request that receives no decision inside the timeout counts as
// a rejection.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/accordhq/accord/internal/editor"
	"github.com/accordhq/accord/internal/storage"
	"github.com/accordhq/accord/internal/types"
)

// Decision is a reviewer's verdict on one request
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ErrRequestResolved indicates the request already has a verdict
var ErrRequestResolved = errors.New("approval request already resolved")

// Reviewer produces a decision for one approval request. Implementations
// include the interactive terminal reviewer and test fakes.
type Reviewer interface {
	Review(ctx context.Context, req *types.ApprovalRequest) (Decision, error)
}

// Gate drains the pending approval queue through a reviewer
type Gate struct {
	store    storage.Storage
	editor   *editor.Editor
	reviewer Reviewer
	timeout  time.Duration
	runID    string
}

// Config holds gate configuration
type Config struct {
	Store    storage.Storage
	Editor   *editor.Editor
	Reviewer Reviewer
	// Timeout bounds the wait for each decision. Zero means wait
	// forever.
	Timeout time.Duration
	// RunID restricts ProcessPending to requests staged by one run.
	// Empty drains the whole backlog.
	RunID string
}

// New creates an approval gate
func New(cfg *Config) (*Gate, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Editor == nil {
		return nil, fmt.Errorf("editor is required")
	}
	if cfg.Reviewer == nil {
		return nil, fmt.Errorf("reviewer is required")
	}
	return &Gate{
		store:    cfg.Store,
		editor:   cfg.Editor,
		reviewer: cfg.Reviewer,
		timeout:  cfg.Timeout,
		runID:    cfg.RunID,
	}, nil
}

// Summary reports the outcome of one ProcessPending pass
type Summary struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	TimedOut int `json:"timed_out"`
	Applied  int `json:"applied"`
}

// ProcessPending reviews every pending request for the gate's run (or
// the whole backlog when no run is set), highest confidence first.
// Approved proposals are re-submitted to the editor with the
// confidence gate bypassed. A reviewer error aborts the pass; timeouts
// do not.
func (g *Gate) ProcessPending(ctx context.Context) (*Summary, error) {
	pending, err := g.store.ListPendingApprovals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	summary := &Summary{}
	for _, req := range pending {
		if g.runID != "" && req.RunID != g.runID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		decision, err := g.review(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return summary, err
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// No decision is a rejection, recorded distinctly so
				// the journal shows nobody said yes.
				if err := g.resolve(ctx, req.ID, types.ApprovalTimedOut); err != nil {
					return summary, err
				}
				summary.TimedOut++
				continue
			}
			return summary, fmt.Errorf("reviewer failed on request %s: %w", req.ID, err)
		}

		switch decision {
		case DecisionApprove:
			if err := g.resolve(ctx, req.ID, types.ApprovalApproved); err != nil {
				return summary, err
			}
			summary.Approved++
			res, err := g.editor.ApplyApproved(ctx, &req.Proposal)
			if err != nil {
				return summary, fmt.Errorf("failed to apply approved proposal %s: %w", req.Proposal.ID, err)
			}
			if res.Applied {
				summary.Applied++
			}
		case DecisionReject:
			if err := g.resolve(ctx, req.ID, types.ApprovalRejected); err != nil {
				return summary, err
			}
			summary.Rejected++
		default:
			return summary, fmt.Errorf("reviewer returned unknown decision %q", decision)
		}
	}
	return summary, nil
}

// Resolve records a verdict for one request outside an interactive
// pass. Approved proposals are applied immediately.
func (g *Gate) Resolve(ctx context.Context, requestID string, decision Decision) (*editor.Result, error) {
	req, err := g.store.GetApprovalRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status.IsResolved() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRequestResolved, requestID, req.Status)
	}

	switch decision {
	case DecisionApprove:
		if err := g.resolve(ctx, req.ID, types.ApprovalApproved); err != nil {
			return nil, err
		}
		return g.editor.ApplyApproved(ctx, &req.Proposal)
	case DecisionReject:
		if err := g.resolve(ctx, req.ID, types.ApprovalRejected); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}
}

// review runs the reviewer under the per-request timeout. The reviewer
// runs in its own goroutine so a stuck terminal cannot wedge the gate.
func (g *Gate) review(ctx context.Context, req *types.ApprovalRequest) (Decision, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type outcome struct {
		decision Decision
		err      error
	}
	ch := make(chan outcome, 1)
	go func() {
		d, err := g.reviewer.Review(ctx, req)
		ch <- outcome{decision: d, err: err}
	}()

	select {
	case out := <-ch:
		return out.decision, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *Gate) resolve(ctx context.Context, requestID string, status types.ApprovalStatus) error {
	if err := g.store.ResolveApprovalRequest(ctx, requestID, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to resolve request %s: %w", requestID, err)
	}
	return nil
}
