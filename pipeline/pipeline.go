// Package pipeline stages fetched feed entries and promotes them to production.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"threatfeed/deduplication"
	"threatfeed/enrichment"
	"threatfeed/rssfeeds"
	"threatfeed/types"
)

// StagingStore is the persistence used by the Stager
type StagingStore interface {
	ListSources(ctx context.Context, activeOnly bool) ([]types.Source, error)
	ClearStagingExcept(ctx context.Context, runID string) (int64, error)
	InsertStaging(ctx context.Context, articles []types.StagingArticle) (int64, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
}

// PromotionStore is the persistence used by the Promoter
type PromotionStore interface {
	UnprocessedStaging(ctx context.Context, runID string, limit int) ([]types.StagingArticle, error)
	MarkProcessed(ctx context.Context, id string) error
	InsertArticle(ctx context.Context, a types.Article) error
	UpdateArticleCache(ctx context.Context, id, cachedURL string, at time.Time) error
	PurgeProcessedStaging(ctx context.Context, cutoff time.Time) (int64, error)
}

// FeedSource fetches feeds for many sources at once
type FeedSource interface {
	FetchAll(ctx context.Context, sources []types.Source, maxCount, workers int) []rssfeeds.FeedResult
}

// DuplicateChecker decides whether a candidate already exists in production
type DuplicateChecker interface {
	CheckForDuplicates(ctx context.Context, candidate types.Candidate) (*deduplication.DeduplicationResult, error)
	Remember(ctx context.Context, candidate types.Candidate)
}

// Describer produces a description for an article, falling back to a template
type Describer interface {
	Describe(ctx context.Context, req enrichment.Request) (string, bool)
}

// BlobStore persists cached article blobs
type BlobStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	PublicURL(key string) string
}

// errorList keeps the total error count and the first few messages
type errorList struct {
	max      int
	count    int
	messages []string
}

func (e *errorList) add(format string, args ...interface{}) {
	e.count++
	if len(e.messages) < e.max {
		e.messages = append(e.messages, fmt.Sprintf(format, args...))
	}
}
