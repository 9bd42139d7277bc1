package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"threatfeed/config"
	"threatfeed/content"
	"threatfeed/enrichment"
	"threatfeed/store"
	"threatfeed/types"
)

// PromoterConfig tunes promotion. Zero values fall back to the package defaults in config.
type PromoterConfig struct {
	BatchSize int
	Retention time.Duration
}

// PromoteOptions are per-run overrides
type PromoteOptions struct {
	// BatchSize overrides the configured batch size when positive
	BatchSize int
	// RunID restricts promotion to one staging run when set
	RunID string
}

// Promoter moves unprocessed staging rows into production
type Promoter struct {
	store     PromotionStore
	dedup     DuplicateChecker
	describer Describer
	blobs     BlobStore
	cfg       PromoterConfig
	now       func() time.Time
}

// NewPromoter creates a Promoter. blobs may be nil, in which case nothing is cached.
func NewPromoter(articles PromotionStore, dedup DuplicateChecker, describer Describer, blobs BlobStore, cfg PromoterConfig) *Promoter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.PromotionBatchSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = config.StagingRetention
	}
	return &Promoter{store: articles, dedup: dedup, describer: describer, blobs: blobs, cfg: cfg, now: time.Now}
}

// cachePayload is the blob uploaded for each promoted article
type cachePayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CachedAt    time.Time `json:"cached_at"`
}

type rowOutcome int

const (
	outcomeMoved rowOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

// Run evaluates one batch of unprocessed staging rows, oldest first, then purges old processed rows.
// Every evaluated row is marked processed whatever its outcome.
func (p *Promoter) Run(ctx context.Context, opts PromoteOptions) (*types.PromotionSummary, error) {
	batchSize := p.cfg.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	summary := &types.PromotionSummary{StartedAt: p.now()}
	errs := &errorList{max: config.MaxErrorDetails}

	rows, err := p.store.UnprocessedStaging(ctx, opts.RunID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load staging rows: %w", err)
	}
	summary.TotalStaged = len(rows)
	log.Printf("Promoting %d staging rows", len(rows))

	for i := range rows {
		if err := ctx.Err(); err != nil {
			errs.add("promotion interrupted: %v", err)
			break
		}
		row := &rows[i]

		switch p.promoteRow(ctx, row, errs) {
		case outcomeMoved:
			summary.MovedToProduction++
		case outcomeDuplicate:
			summary.DuplicatesRemoved++
		}

		if err := p.store.MarkProcessed(ctx, row.ID); err != nil {
			errs.add("%s: failed to mark processed: %v", row.Title, err)
		}
		summary.Processed++
	}

	purged, err := p.store.PurgeProcessedStaging(ctx, p.now().Add(-p.cfg.Retention))
	if err != nil {
		errs.add("failed to purge staging: %v", err)
	} else {
		summary.Purged = purged
	}

	summary.ErrorCount = errs.count
	summary.Errors = errs.messages
	summary.FinishedAt = p.now()
	log.Printf("Promotion: %d processed, %d moved, %d duplicates, %d errors, %d purged",
		summary.Processed, summary.MovedToProduction, summary.DuplicatesRemoved, summary.ErrorCount, summary.Purged)
	return summary, nil
}

func (p *Promoter) promoteRow(ctx context.Context, row *types.StagingArticle, errs *errorList) rowOutcome {
	candidate := row.Candidate()

	res, err := p.dedup.CheckForDuplicates(ctx, candidate)
	if err != nil {
		errs.add("%s: duplicate check failed: %v", row.Title, err)
		return outcomeFailed
	}
	if res.IsDuplicate {
		log.Printf("Skipping duplicate (%s): %s", res.Reason, row.Title)
		return outcomeDuplicate
	}

	description := row.Description
	if !row.HasValidDescription || !content.IsValidDescription(description) {
		desc, usedFallback := p.describer.Describe(ctx, enrichment.Request{Title: row.Title, URL: row.URL, Source: row.Source})
		if usedFallback {
			log.Printf("Warning: using fallback description for %q", row.Title)
		}
		description = desc
	}

	now := p.now()
	article := types.Article{
		ID:               row.ID,
		Title:            row.Title,
		Description:      description,
		Source:           row.Source,
		URL:              row.URL,
		Category:         row.Category,
		PublishedAt:      row.PublishedAt,
		CachedContentURL: row.CachedContentURL,
		CachedImageURL:   row.ImageURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.store.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Printf("Skipping duplicate (insert conflict): %s", row.Title)
			return outcomeDuplicate
		}
		errs.add("%s: %v", row.Title, err)
		return outcomeFailed
	}
	p.dedup.Remember(ctx, candidate)

	if article.CachedContentURL == "" && p.blobs != nil {
		if err := p.cacheArticle(ctx, article); err != nil {
			log.Printf("Warning: failed to cache %s: %v", article.ID, err)
		}
	}
	return outcomeMoved
}

// cacheArticle uploads the article's cache blob and records its URL on the production row
func (p *Promoter) cacheArticle(ctx context.Context, a types.Article) error {
	ctx, cancel := context.WithTimeout(ctx, config.CacheUploadTimeout)
	defer cancel()

	key := "articles/" + a.ID + ".json"
	cachedAt := p.now()

	exists, err := p.blobs.Exists(ctx, key)
	if err != nil {
		log.Printf("Warning: cache lookup for %s failed: %v", key, err)
	}

	var publicURL string
	if exists {
		publicURL = p.blobs.PublicURL(key)
	} else {
		body, err := json.Marshal(cachePayload{ID: a.ID, Title: a.Title, Description: a.Description, CachedAt: cachedAt})
		if err != nil {
			return fmt.Errorf("failed to encode cache blob: %w", err)
		}
		publicURL, err = p.blobs.Upload(ctx, key, body, "application/json")
		if err != nil {
			return err
		}
	}

	return p.store.UpdateArticleCache(ctx, a.ID, publicURL, cachedAt)
}
