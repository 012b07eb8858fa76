package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/accordhq/accord/internal/storage"
	"github.com/accordhq/accord/internal/types"
)

// Cached wraps an analyzer with a read-through result cache keyed by
// analyzer ID and document ID. A hit skips the underlying call
// entirely, which is what makes re-running an interrupted batch cheap.
type Cached struct {
	inner Analyzer
	store storage.Storage
	ttl   time.Duration
}

// WithCache wraps an analyzer in the result cache. TTL zero means
// entries never expire.
func WithCache(inner Analyzer, store storage.Storage, ttl time.Duration) *Cached {
	return &Cached{inner: inner, store: store, ttl: ttl}
}

// ID returns the wrapped analyzer's ID
func (c *Cached) ID() string {
	return c.inner.ID()
}

// Analyze returns cached recommendations when present, otherwise calls
// the wrapped analyzer and stores its output. Cache failures fall back
// to the live call; a broken cache must not fail the run.
func (c *Cached) Analyze(ctx context.Context, doc *types.Document) ([]types.Recommendation, error) {
	key := CacheKey(c.inner.ID(), doc.ID)

	if raw, found, err := c.store.CacheGet(ctx, key); err == nil && found {
		var recs []types.Recommendation
		if err := json.Unmarshal([]byte(raw), &recs); err == nil {
			return recs, nil
		}
		// Unreadable entry, treat as a miss and overwrite below.
	}

	recs, err := c.inner.Analyze(ctx, doc)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(recs); err == nil {
		_ = c.store.CachePut(ctx, key, string(data), c.ttl)
	}
	return recs, nil
}

// CacheKey derives the content-addressed cache key for an analyzer and
// document pair.
func CacheKey(analyzerID, documentID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s", analyzerID, documentID)))
	return hex.EncodeToString(sum[:])
}
