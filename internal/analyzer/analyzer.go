// Package analyzer defines the analyzer abstraction and the resilience
// wrappers (retry, circuit breaking, rate limiting, caching) applied to
// remote analyzers.
package analyzer

import (
	"context"

	"github.com/accordhq/accord/internal/types"
)

// Analyzer examines a source document and proposes recommendations.
// Implementations must be safe for concurrent use; the orchestrator may
// run one analyzer against several documents in parallel.
type Analyzer interface {
	// ID returns the stable analyzer identifier used for attribution
	// and cache keys
	ID() string

	// Analyze examines the document and returns zero or more
	// recommendations. Returned recommendations must carry the
	// analyzer's ID in SourceAnalyzerID.
	Analyze(ctx context.Context, doc *types.Document) ([]types.Recommendation, error)
}
