package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"threatfeed/deduplication"
	"threatfeed/enrichment"
	"threatfeed/rssfeeds"
	"threatfeed/store"
	"threatfeed/types"
)

type fakeFeeds struct {
	items   map[string][]rssfeeds.FeedItem
	errs    map[string]error
	fetched []string
}

func (f *fakeFeeds) FetchAll(_ context.Context, sources []types.Source, maxCount, _ int) []rssfeeds.FeedResult {
	out := make([]rssfeeds.FeedResult, 0, len(sources))
	for _, src := range sources {
		f.fetched = append(f.fetched, src.Name)
		items := f.items[src.Name]
		if maxCount > 0 && len(items) > maxCount {
			items = items[:maxCount]
		}
		out = append(out, rssfeeds.FeedResult{Source: src, Items: items, Err: f.errs[src.Name]})
	}
	return out
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: map[string][]byte{}} }

func (f *fakeBlobs) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	return f.PublicURL(key), nil
}

func (f *fakeBlobs) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBlobs) PublicURL(key string) string { return "https://cdn.example/" + key }

type failingEnricher struct{}

func (failingEnricher) Name() string { return "failing" }

func (failingEnricher) Enrich(context.Context, enrichment.Request) (string, error) {
	return "", errors.New("service unavailable")
}

type neverDuplicate struct{}

func (neverDuplicate) CheckForDuplicates(context.Context, types.Candidate) (*deduplication.DeduplicationResult, error) {
	return &deduplication.DeduplicationResult{}, nil
}

func (neverDuplicate) Remember(context.Context, types.Candidate) {}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSources(t *testing.T, s *store.Store, sources ...types.Source) {
	t.Helper()
	for i := range sources {
		if sources[i].Type == "" {
			sources[i].Type = types.SourceTypeRSS
		}
		sources[i].Active = true
	}
	if err := s.UpsertSources(context.Background(), sources); err != nil {
		t.Fatalf("UpsertSources: %v", err)
	}
}

func newDedup(t *testing.T, s *store.Store) *deduplication.Deduplicator {
	t.Helper()
	d, err := deduplication.NewDeduplicator(s, deduplication.DeduplicatorConfig{})
	if err != nil {
		t.Fatalf("NewDeduplicator: %v", err)
	}
	return d
}

func item(title, link, desc string) rssfeeds.FeedItem {
	now := time.Now().Add(-time.Hour)
	return rssfeeds.FeedItem{Title: title, Link: link, Description: desc, PublishedAt: &now}
}

const proseDescription = "Investigators say attackers abused stolen VPN credentials before deploying encryption tools across servers."

func TestStagingTruncateThenFill(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedSources(t, s, types.Source{Name: "Krebs", URL: "https://krebs.example/feed"})

	// Leftovers from a run that never reached promotion.
	if _, err := s.InsertStaging(ctx, []types.StagingArticle{{
		ID: "stale", RunID: "previous", Title: "Stale staged article", Source: "Krebs", PublishedAt: time.Now(),
	}}); err != nil {
		t.Fatalf("InsertStaging: %v", err)
	}

	feeds := &fakeFeeds{items: map[string][]rssfeeds.FeedItem{
		"Krebs": {item("Fresh article about a breach", "https://krebs.example/fresh", proseDescription)},
	}}
	summary, err := NewStager(s, feeds, StagerConfig{}).Run(ctx, StageOptions{RunID: "current"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !summary.Success || summary.RunID != "current" || summary.ArticlesStaged != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	rows, err := s.ListStaging(ctx)
	if err != nil {
		t.Fatalf("ListStaging: %v", err)
	}
	if len(rows) != 1 || rows[0].RunID != "current" || rows[0].Title != "Fresh article about a breach" {
		t.Fatalf("staging should only hold the current run, got %+v", rows)
	}
	if !rows[0].HasValidDescription || rows[0].Category != "Breaches" {
		t.Fatalf("unexpected staged row: %+v", rows[0])
	}
}

// countingStore records the size of every staging insert
type countingStore struct {
	*store.Store
	inserts []int
}

func (c *countingStore) InsertStaging(ctx context.Context, articles []types.StagingArticle) (int64, error) {
	c.inserts = append(c.inserts, len(articles))
	return c.Store.InsertStaging(ctx, articles)
}

func TestStagerFlushesInBatches(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	seedSources(t, s, types.Source{Name: "NVD", URL: "https://nvd.example/feed"})

	var items []rssfeeds.FeedItem
	for i := 0; i < 250; i++ {
		items = append(items, item(
			fmt.Sprintf("Advisory %03d patches a remote code execution flaw", i),
			fmt.Sprintf("https://nvd.example/advisory/%03d", i),
			proseDescription))
	}
	feeds := &fakeFeeds{items: map[string][]rssfeeds.FeedItem{"NVD": items}}

	counting := &countingStore{Store: s}
	summary, err := NewStager(counting, feeds, StagerConfig{FlushSize: 100, MaxArticlesPerSource: 300}).Run(ctx, StageOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int{100, 100, 50}
	if fmt.Sprint(counting.inserts) != fmt.Sprint(want) {
		t.Fatalf("insert batch sizes = %v, want %v", counting.inserts, want)
	}
	if summary.ArticlesStaged != 250 {
		t.Fatalf("ArticlesStaged = %d, want 250", summary.ArticlesStaged)
	}
	rows, err := s.ListStaging(ctx)
	if err != nil {
		t.Fatalf("ListStaging: %v", err)
	}
	if len(rows) != 250 {
		t.Fatalf("staged rows = %d, want 250", len(rows))
	}
}

func TestStagerSkipsAndCaps(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var sources []types.Source
	for i := 0; i < 12; i++ {
		sources = append(sources, types.Source{Name: fmt.Sprintf("src-%02d", i), URL: fmt.Sprintf("https://src%d.example/feed", i)})
	}
	seedSources(t, s, sources...)

	if err := s.InsertArticle(ctx, types.Article{ID: "p1", Title: "Already published story", Source: "src-00", URL: "https://src0.example/published", PublishedAt: time.Now()}); err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}

	feeds := &fakeFeeds{
		items: map[string][]rssfeeds.FeedItem{
			"src-00": {
				item("Already published story", "https://src0.example/published", proseDescription),
				item("Short", "https://src0.example/short", proseDescription),
				item("First new story from source zero", "https://src0.example/one", proseDescription),
				item("First new story from source zero", "https://src0.example/one", proseDescription),
				item("Second new story from source zero", "https://src0.example/two", "Read more"),
				item("Third story is beyond the cap", "https://src0.example/three", proseDescription),
			},
			"src-03": {item("Story from source three", "https://src3.example/a", proseDescription)},
		},
		errs: map[string]error{
			"src-01": fmt.Errorf("wrapped: %w", rssfeeds.ErrNotXML),
			"src-02": errors.New("connection refused"),
		},
	}

	stager := NewStager(s, feeds, StagerConfig{FlushSize: 1})
	summary, err := stager.Run(ctx, StageOptions{MaxArticles: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(feeds.fetched) != 10 {
		t.Fatalf("expected 10 sources fetched, got %d", len(feeds.fetched))
	}
	if summary.SourcesFailed != 2 || summary.SourcesProcessed != 8 {
		t.Fatalf("unexpected source counts: %+v", summary)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "connection refused") {
		t.Fatalf("non-XML sources should be skipped quietly, got %v", summary.Errors)
	}
	if summary.ArticlesFetched != 6 || summary.ArticlesStaged != 3 || summary.ArticlesSkipped != 3 {
		t.Fatalf("unexpected article counts: %+v", summary)
	}

	rows, err := s.ListStaging(ctx)
	if err != nil {
		t.Fatalf("ListStaging: %v", err)
	}
	valid := map[string]bool{}
	for _, r := range rows {
		valid[r.Title] = r.HasValidDescription
	}
	if valid["Second new story from source zero"] {
		t.Fatalf("boilerplate description should be flagged invalid")
	}
	if !valid["Story from source three"] {
		t.Fatalf("expected source three row to be staged and valid: %+v", rows)
	}
}

func TestStagerFailsWhenSourcesUnavailable(t *testing.T) {
	s := openStore(t)
	_ = s.Close()

	if _, err := NewStager(s, &fakeFeeds{}, StagerConfig{}).Run(context.Background(), StageOptions{}); err == nil {
		t.Fatalf("expected batch-level failure when the store is unavailable")
	}
}

func TestResolvePublished(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-48 * time.Hour)
	ancient := now.Add(-400 * 24 * time.Hour)
	future := now.Add(10 * 24 * time.Hour)
	nearFuture := now.Add(24 * time.Hour)

	cases := []struct {
		name     string
		in       *time.Time
		want     time.Time
		fallback bool
	}{
		{"missing", nil, now, true},
		{"recent", &recent, recent, false},
		{"too old", &ancient, now, true},
		{"too far ahead", &future, now, true},
		{"slightly ahead", &nearFuture, nearFuture, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, fb := resolvePublished(c.in, now)
			if !got.Equal(c.want) || fb != c.fallback {
				t.Fatalf("resolvePublished = %v, %v; want %v, %v", got, fb, c.want, c.fallback)
			}
		})
	}
}

func TestPromotionIdempotentOnReprocessing(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	row := types.StagingArticle{
		ID: "a1", RunID: "run-1", Title: "Major Breach at Acme", Description: proseDescription, Source: "Krebs",
		URL: "https://krebs.example/acme", Category: "Breaches", PublishedAt: time.Now(), HasValidDescription: true,
	}
	if _, err := s.InsertStaging(ctx, []types.StagingArticle{row}); err != nil {
		t.Fatalf("InsertStaging: %v", err)
	}

	promoter := NewPromoter(s, newDedup(t, s), enrichment.NewChain(), nil, PromoterConfig{})
	first, err := promoter.Run(ctx, PromoteOptions{})
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.MovedToProduction != 1 {
		t.Fatalf("expected 1 moved, got %+v", first)
	}

	// The same article is staged again by a later run.
	if _, err := s.ClearStagingExcept(ctx, "run-2"); err != nil {
		t.Fatalf("ClearStagingExcept: %v", err)
	}
	row.RunID = "run-2"
	if _, err := s.InsertStaging(ctx, []types.StagingArticle{row}); err != nil {
		t.Fatalf("InsertStaging: %v", err)
	}

	second, err := promoter.Run(ctx, PromoteOptions{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.MovedToProduction != 0 || second.DuplicatesRemoved != 1 {
		t.Fatalf("expected the re-staged row to be a duplicate, got %+v", second)
	}

	articles, err := s.ListArticles(ctx, store.ArticleFilter{})
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected exactly one production row, got %d", len(articles))
	}
}

func TestPromotionInsertConflictCountsAsDuplicate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.InsertArticle(ctx, types.Article{ID: "x", Title: "Existing title here", Source: "Krebs", URL: "https://krebs.example/x", PublishedAt: time.Now()}); err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}
	if _, err := s.InsertStaging(ctx, []types.StagingArticle{{
		ID: "y", RunID: "r", Title: "Different title entirely", Description: proseDescription, Source: "Other",
		URL: "https://krebs.example/x", PublishedAt: time.Now(), HasValidDescription: true,
	}}); err != nil {
		t.Fatalf("InsertStaging: %v", err)
	}

	// The checker misses it, as a concurrent promotion could; the unique index still holds.
	summary, err := NewPromoter(s, neverDuplicate{}, enrichment.NewChain(), nil, PromoterConfig{}).Run(ctx, PromoteOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.DuplicatesRemoved != 1 || summary.ErrorCount != 0 {
		t.Fatalf("expected conflict counted as duplicate, got %+v", summary)
	}
}

type brokenInsertStore struct {
	rows   []types.StagingArticle
	marked map[string]bool
	purged bool
}

func (b *brokenInsertStore) UnprocessedStaging(_ context.Context, _ string, limit int) ([]types.StagingArticle, error) {
	if limit < len(b.rows) {
		return b.rows[:limit], nil
	}
	return b.rows, nil
}

func (b *brokenInsertStore) MarkProcessed(_ context.Context, id string) error {
	b.marked[id] = true
	return nil
}

func (b *brokenInsertStore) InsertArticle(context.Context, types.Article) error {
	return errors.New("disk full")
}

func (b *brokenInsertStore) UpdateArticleCache(context.Context, string, string, time.Time) error {
	return nil
}

func (b *brokenInsertStore) PurgeProcessedStaging(context.Context, time.Time) (int64, error) {
	b.purged = true
	return 4, nil
}

func TestPromotionErrorsAreCappedAndRowsStillProcessed(t *testing.T) {
	fake := &brokenInsertStore{marked: map[string]bool{}}
	for i := 0; i < 12; i++ {
		fake.rows = append(fake.rows, types.StagingArticle{
			ID: fmt.Sprintf("r%d", i), Title: fmt.Sprintf("Article number %d", i), Source: "Krebs",
			Description: proseDescription, HasValidDescription: true,
		})
	}

	summary, err := NewPromoter(fake, neverDuplicate{}, enrichment.NewChain(), nil, PromoterConfig{}).Run(context.Background(), PromoteOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.TotalStaged != 12 || summary.Processed != 12 || summary.MovedToProduction != 0 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	if summary.ErrorCount != 12 || len(summary.Errors) != 10 {
		t.Fatalf("expected 12 errors with 10 details, got %d / %d", summary.ErrorCount, len(summary.Errors))
	}
	if len(fake.marked) != 12 {
		t.Fatalf("every row must be marked processed, got %d", len(fake.marked))
	}
	if !fake.purged || summary.Purged != 4 {
		t.Fatalf("expected purge to run, got %+v", summary)
	}
}

func TestEndToEndTestFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>TestFeed</title>
<item>
  <title>Ransomware Hits Hospital Network</title>
  <link>https://testfeed.example/ransomware-hospital</link>
  <description>Click here</description>
  <pubDate>%s</pubDate>
</item>
</channel></rss>`, time.Now().Add(-2*time.Hour).UTC().Format(time.RFC1123Z))
	}))
	defer srv.Close()

	s := openStore(t)
	ctx := context.Background()
	seedSources(t, s, types.Source{Name: "TestFeed", URL: srv.URL, DefaultCategory: "General"})

	stager := NewStager(s, rssfeeds.NewFetcher(srv.Client(), 5*time.Second), StagerConfig{})
	fetch, err := stager.Run(ctx, StageOptions{})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if fetch.ArticlesStaged != 1 {
		t.Fatalf("expected 1 staged article, got %+v", fetch)
	}

	staged, err := s.ListStaging(ctx)
	if err != nil || len(staged) != 1 {
		t.Fatalf("ListStaging = %+v, %v", staged, err)
	}
	row := staged[0]
	if row.Title != "Ransomware Hits Hospital Network" {
		t.Fatalf("title changed by normalization: %q", row.Title)
	}
	if row.Category != "Ransomware" {
		t.Fatalf("expected Ransomware category, got %q", row.Category)
	}
	if row.HasValidDescription {
		t.Fatalf("\"Click here\" must not be a valid description")
	}
	if row.PublishedFallback {
		t.Fatalf("feed date should have been used")
	}

	blobs := newFakeBlobs()
	promoter := NewPromoter(s, newDedup(t, s), enrichment.NewChain(failingEnricher{}), blobs, PromoterConfig{})
	promo, err := promoter.Run(ctx, PromoteOptions{RunID: fetch.RunID})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promo.MovedToProduction != 1 || promo.ErrorCount != 0 {
		t.Fatalf("unexpected promotion summary: %+v", promo)
	}

	articles, err := s.ListArticles(ctx, store.ArticleFilter{})
	if err != nil || len(articles) != 1 {
		t.Fatalf("ListArticles = %+v, %v", articles, err)
	}
	a := articles[0]
	if a.Description != enrichment.Fallback("TestFeed") || !strings.Contains(a.Description, "TestFeed") {
		t.Fatalf("expected templated fallback naming TestFeed, got %q", a.Description)
	}
	if a.Category != "Ransomware" {
		t.Fatalf("production category = %q", a.Category)
	}
	if a.CachedContentURL != "https://cdn.example/articles/"+a.ID+".json" || a.CacheUpdatedAt == nil {
		t.Fatalf("expected cache URL to be recorded, got %+v", a)
	}
	if _, ok := blobs.objects["articles/"+a.ID+".json"]; !ok {
		t.Fatalf("cache blob not uploaded")
	}

	staged, err = s.ListStaging(ctx)
	if err != nil || len(staged) != 1 || !staged[0].IsProcessed {
		t.Fatalf("staging row should be processed, got %+v, %v", staged, err)
	}
}
