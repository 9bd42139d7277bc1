package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"threatfeed/classify"
	"threatfeed/config"
	"threatfeed/content"
	"threatfeed/rssfeeds"
	"threatfeed/types"

	"github.com/google/uuid"
)

// StagerConfig tunes a staging run. Zero values fall back to the package defaults in config.
type StagerConfig struct {
	MaxSources           int
	MaxArticlesPerSource int
	FlushSize            int
	Workers              int
}

// StageOptions are per-run overrides
type StageOptions struct {
	// RunID tags the staged rows; generated when empty
	RunID string
	// MaxArticles overrides the per-source item cap when positive
	MaxArticles int
}

// Stager fetches active sources and fills the staging table
type Stager struct {
	store StagingStore
	feeds FeedSource
	cfg   StagerConfig
	now   func() time.Time
}

// NewStager creates a Stager
func NewStager(store StagingStore, feeds FeedSource, cfg StagerConfig) *Stager {
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = config.MaxSourcesPerRun
	}
	if cfg.MaxArticlesPerSource <= 0 {
		cfg.MaxArticlesPerSource = config.MaxArticlesPerSource
	}
	if cfg.FlushSize <= 0 {
		cfg.FlushSize = config.StagingFlushSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.FetchWorkers
	}
	return &Stager{store: store, feeds: feeds, cfg: cfg, now: time.Now}
}

// Run clears staging of other runs, fetches up to MaxSources active feeds and stages their entries.
// Failing to load sources or clear staging aborts the run; anything narrower is recorded and skipped.
func (s *Stager) Run(ctx context.Context, opts StageOptions) (*types.FetchSummary, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	maxArticles := s.cfg.MaxArticlesPerSource
	if opts.MaxArticles > 0 {
		maxArticles = opts.MaxArticles
	}

	summary := &types.FetchSummary{RunID: runID, StartedAt: s.now()}
	errs := &errorList{max: config.MaxErrorDetails}

	sources, err := s.store.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	sources = s.selectSources(sources)

	cleared, err := s.store.ClearStagingExcept(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear staging: %w", err)
	}
	if cleared > 0 {
		log.Printf("Cleared %d staging rows from previous runs", cleared)
	}

	log.Printf("Fetching %d sources (run %s, max %d articles each)", len(sources), runID, maxArticles)
	results := s.feeds.FetchAll(ctx, sources, maxArticles, s.cfg.Workers)

	var batch []types.StagingArticle
	seen := make(map[string]struct{})

	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, err := s.store.InsertStaging(ctx, batch)
		if err != nil {
			errs.add("failed to stage %d articles: %v", len(batch), err)
			log.Printf("Warning: failed to stage batch of %d: %v", len(batch), err)
		} else {
			summary.ArticlesStaged += int(n)
		}
		batch = batch[:0]
	}

	for i, res := range results {
		log.Printf("[%d/%d] Processing: %s", i+1, len(results), res.Source.Name)
		if res.Err != nil {
			summary.SourcesFailed++
			if !errors.Is(res.Err, rssfeeds.ErrNotXML) {
				errs.add("%s: %v", res.Source.Name, res.Err)
			}
			continue
		}
		summary.SourcesProcessed++

		for _, item := range res.Items {
			summary.ArticlesFetched++

			article, reason := s.buildStagingArticle(runID, res.Source, item)
			if reason != "" {
				summary.ArticlesSkipped++
				continue
			}
			if _, dup := seen[article.ID]; dup {
				summary.ArticlesSkipped++
				continue
			}

			if article.URL != "" {
				exists, err := s.store.ExistsByURL(ctx, article.URL)
				if err != nil {
					errs.add("%s: failed to check %s: %v", res.Source.Name, article.URL, err)
					summary.ArticlesSkipped++
					continue
				}
				if exists {
					summary.ArticlesSkipped++
					continue
				}
			}

			seen[article.ID] = struct{}{}
			batch = append(batch, article)
			if len(batch) >= s.cfg.FlushSize {
				flush()
			}
		}
	}
	flush()

	summary.Success = true
	summary.Errors = errs.messages
	summary.FinishedAt = s.now()
	log.Printf("Staging run %s: %d sources ok, %d failed, %d fetched, %d staged, %d skipped",
		runID, summary.SourcesProcessed, summary.SourcesFailed, summary.ArticlesFetched, summary.ArticlesStaged, summary.ArticlesSkipped)
	return summary, nil
}

// selectSources keeps feed-type sources, capped at MaxSources
func (s *Stager) selectSources(sources []types.Source) []types.Source {
	out := make([]types.Source, 0, len(sources))
	for _, src := range sources {
		if src.Type != "" && src.Type != types.SourceTypeRSS {
			log.Printf("Skipping source %s: type %s is not fetched by this pipeline", src.Name, src.Type)
			continue
		}
		if len(out) == s.cfg.MaxSources {
			break
		}
		out = append(out, src)
	}
	return out
}

// buildStagingArticle normalizes and classifies a feed entry.
// A non-empty reason means the entry is not staged.
func (s *Stager) buildStagingArticle(runID string, src types.Source, item rssfeeds.FeedItem) (types.StagingArticle, string) {
	title := content.Normalize(item.Title)
	if utf8.RuneCountInString(title) < config.MinTitleLength {
		return types.StagingArticle{}, "title too short"
	}
	description := content.Normalize(item.Description)

	now := s.now()
	published, fallback := resolvePublished(item.PublishedAt, now)

	return types.StagingArticle{
		ID:                  types.ArticleID(item.Link, src.Name, title),
		RunID:               runID,
		Title:               title,
		Description:         description,
		Source:              src.Name,
		URL:                 item.Link,
		Category:            string(classify.Classify(title, description, src.DefaultCategory)),
		PublishedAt:         published,
		PublishedFallback:   fallback,
		HasValidDescription: content.IsValidDescription(description),
		ImageURL:            item.ImageURL,
		CreatedAt:           now,
	}, ""
}

// resolvePublished replaces missing or implausible dates with now
func resolvePublished(published *time.Time, now time.Time) (time.Time, bool) {
	if published == nil || published.IsZero() {
		return now, true
	}
	if published.Before(now.Add(-config.MaxPublishedAge)) || published.After(now.Add(config.MaxPublishedSkew)) {
		return now, true
	}
	return *published, false
}
