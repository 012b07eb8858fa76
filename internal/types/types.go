package types

import (
	"fmt"
	"strings"
	"time"
)

// Document is the unit of input handed to analyzers. The engine never
// interprets the content; it only needs a stable identity for caching.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Validate checks if the document has valid field values
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	return nil
}

// Recommendation is a single candidate recommendation emitted by one
// analyzer examining one document. Immutable once emitted.
type Recommendation struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Body             string  `json:"body"`
	SourceAnalyzerID string  `json:"source_analyzer_id"`
	RawConfidence    float64 `json:"raw_confidence"`
}

// Validate checks if the recommendation has valid field values
func (r *Recommendation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("recommendation id is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.SourceAnalyzerID == "" {
		return fmt.Errorf("source_analyzer_id is required")
	}
	if r.RawConfidence < 0.0 || r.RawConfidence > 1.0 {
		return fmt.Errorf("raw_confidence must be between 0.0 and 1.0 (got %.2f)", r.RawConfidence)
	}
	return nil
}

// Text returns the combined title and body used for similarity scoring.
func (r *Recommendation) Text() string {
	if r.Body == "" {
		return r.Title
	}
	return r.Title + "\n" + r.Body
}

// ConsensusRecommendation is one deduplicated recommendation formed by
// clustering near-identical outputs from multiple analyzers.
type ConsensusRecommendation struct {
	ClusterID           string   `json:"cluster_id"`
	MemberIDs           []string `json:"member_recommendation_ids"`
	ChosenText          string   `json:"chosen_text"`
	AgreementRatio      float64  `json:"agreement_ratio"`
	SupportingAnalyzers []string `json:"supporting_analyzers"`
}

// Validate checks the consensus invariants
func (c *ConsensusRecommendation) Validate() error {
	if c.ClusterID == "" {
		return fmt.Errorf("cluster_id is required")
	}
	if len(c.MemberIDs) == 0 {
		return fmt.Errorf("cluster must have at least one member")
	}
	if len(c.SupportingAnalyzers) == 0 {
		return fmt.Errorf("cluster must have at least one supporting analyzer")
	}
	if c.AgreementRatio <= 0.0 || c.AgreementRatio > 1.0 {
		return fmt.Errorf("agreement_ratio must be in (0.0, 1.0] (got %.3f)", c.AgreementRatio)
	}
	if c.ChosenText == "" {
		return fmt.Errorf("chosen_text is required")
	}
	return nil
}

// PlanStatus represents the lifecycle state of a plan
type PlanStatus string

const (
	PlanActive  PlanStatus = "active"
	PlanMerged  PlanStatus = "merged"
	PlanDeleted PlanStatus = "deleted"
)

// IsValid checks if the plan status value is valid
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanActive, PlanMerged, PlanDeleted:
		return true
	}
	return false
}

// Priority represents the relative importance of a plan
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Plan is a persistent unit of proposed work tracked by the repository,
// independent of any single analysis run. Plans are owned exclusively by
// the repository; all mutation goes through the editor so every change
// can be journaled. Deletion is soft: the record is retained with
// status flipped to support rollback.
type Plan struct {
	ID                      string     `json:"plan_id"`
	Title                   string     `json:"title"`
	Body                    string     `json:"body"`
	Priority                Priority   `json:"priority"`
	Version                 int        `json:"version"`
	Status                  PlanStatus `json:"status"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	SourceRecommendationIDs []string   `json:"source_recommendation_ids,omitempty"`
}

// Validate checks if the plan has valid field values
func (p *Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan_id is required")
	}
	if len(p.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(p.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(p.Title))
	}
	if !p.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", p.Priority)
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.Version < 1 {
		return fmt.Errorf("version must be at least 1 (got %d)", p.Version)
	}
	return nil
}

// Text returns the combined title and body used for similarity scoring.
func (p *Plan) Text() string {
	if p.Body == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Body
}

// Clone returns a deep copy of the plan. Used by the editor to snapshot
// prior state into the journal before mutating.
func (p *Plan) Clone() *Plan {
	cp := *p
	if p.SourceRecommendationIDs != nil {
		cp.SourceRecommendationIDs = make([]string, len(p.SourceRecommendationIDs))
		copy(cp.SourceRecommendationIDs, p.SourceRecommendationIDs)
	}
	return &cp
}

// PlanDraft carries the fields for a plan that does not exist yet.
// The repository assigns ID, version, and timestamps on insert.
type PlanDraft struct {
	Title                   string   `json:"title"`
	Body                    string   `json:"body"`
	Priority                Priority `json:"priority"`
	SourceRecommendationIDs []string `json:"source_recommendation_ids,omitempty"`
}

// Validate checks if the draft has valid field values
func (d *PlanDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !d.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", d.Priority)
	}
	return nil
}

// PlanPatch describes a partial update to an existing plan. Nil fields
// are left unchanged.
type PlanPatch struct {
	Title                   *string   `json:"title,omitempty"`
	Body                    *string   `json:"body,omitempty"`
	Priority                *Priority `json:"priority,omitempty"`
	SourceRecommendationIDs []string  `json:"source_recommendation_ids,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *PlanPatch) IsEmpty() bool {
	return p.Title == nil && p.Body == nil && p.Priority == nil && p.SourceRecommendationIDs == nil
}

// PlanFilter controls which plans are returned by list queries
type PlanFilter struct {
	Status   *PlanStatus `json:"status,omitempty"`
	Priority *Priority   `json:"priority,omitempty"`
	Limit    int         `json:"limit,omitempty"`
}
