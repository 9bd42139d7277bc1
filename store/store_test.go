package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"threatfeed/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stagingRow(id, runID, title string, created time.Time) types.StagingArticle {
	return types.StagingArticle{
		ID:          id,
		RunID:       runID,
		Title:       title,
		Description: "desc",
		Source:      "Krebs",
		URL:         "https://krebs.example/" + id,
		Category:    "General",
		PublishedAt: created,
		CreatedAt:   created,
	}
}

func TestSourcesUpsertAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sources := []types.Source{
		{Name: "Krebs", URL: "https://krebs.example/feed", Type: types.SourceTypeRSS, DefaultCategory: "Breaches", Active: true},
		{Name: "Paused", URL: "https://paused.example/feed", Type: types.SourceTypeRSS, Active: false},
	}
	if err := s.UpsertSources(ctx, sources); err != nil {
		t.Fatalf("UpsertSources: %v", err)
	}

	sources[0].URL = "https://krebs.example/rss"
	if err := s.UpsertSources(ctx, sources[:1]); err != nil {
		t.Fatalf("UpsertSources again: %v", err)
	}

	all, err := s.ListSources(ctx, false)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(all))
	}
	if all[0].URL != "https://krebs.example/rss" || all[0].DefaultCategory != "Breaches" {
		t.Fatalf("upsert did not refresh source: %+v", all[0])
	}

	active, err := s.ListSources(ctx, true)
	if err != nil {
		t.Fatalf("ListSources active: %v", err)
	}
	if len(active) != 1 || active[0].Name != "Krebs" {
		t.Fatalf("expected only Krebs active, got %+v", active)
	}
}

func TestStagingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-10 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)

	n, err := s.InsertStaging(ctx, []types.StagingArticle{
		stagingRow("a", "run-1", "Old processed article", old),
		stagingRow("b", "run-1", "Old pending article", old),
		stagingRow("c", "run-2", "Recent article", recent),
	})
	if err != nil || n != 3 {
		t.Fatalf("InsertStaging = %d, %v", n, err)
	}

	// Re-staging an existing id is ignored.
	n, err = s.InsertStaging(ctx, []types.StagingArticle{stagingRow("c", "run-2", "Recent article", recent)})
	if err != nil || n != 0 {
		t.Fatalf("InsertStaging duplicate = %d, %v", n, err)
	}

	if err := s.MarkProcessed(ctx, "a"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	pending, err := s.UnprocessedStaging(ctx, "", 10)
	if err != nil {
		t.Fatalf("UnprocessedStaging: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "b" || pending[1].ID != "c" {
		t.Fatalf("expected b then c, got %+v", pending)
	}

	byRun, err := s.UnprocessedStaging(ctx, "run-2", 10)
	if err != nil || len(byRun) != 1 || byRun[0].ID != "c" {
		t.Fatalf("UnprocessedStaging by run = %+v, %v", byRun, err)
	}

	p, d, err := s.StagingCounts(ctx)
	if err != nil || p != 2 || d != 1 {
		t.Fatalf("StagingCounts = %d, %d, %v", p, d, err)
	}

	purged, err := s.PurgeProcessedStaging(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("PurgeProcessedStaging = %d, %v", purged, err)
	}

	cleared, err := s.ClearStagingExcept(ctx, "run-2")
	if err != nil || cleared != 1 {
		t.Fatalf("ClearStagingExcept = %d, %v", cleared, err)
	}
	rest, err := s.ListStaging(ctx)
	if err != nil || len(rest) != 1 || rest[0].RunID != "run-2" {
		t.Fatalf("ListStaging = %+v, %v", rest, err)
	}
}

func TestInsertArticleUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := types.Article{
		ID:          "1",
		Title:       "Major Breach at Acme",
		Description: "Acme confirmed a breach affecting customer records across several regions.",
		Source:      "Krebs",
		URL:         "https://krebs.example/acme",
		Category:    "Breaches",
		PublishedAt: time.Now(),
	}
	if err := s.InsertArticle(ctx, base); err != nil {
		t.Fatalf("InsertArticle: %v", err)
	}

	sameTitle := base
	sameTitle.ID, sameTitle.URL = "2", "https://krebs.example/acme-2"
	if err := s.InsertArticle(ctx, sameTitle); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on title+source, got %v", err)
	}

	sameURL := base
	sameURL.ID, sameURL.Title = "3", "Acme follow-up"
	if err := s.InsertArticle(ctx, sameURL); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate on url, got %v", err)
	}

	// Empty URLs are not unique.
	for i, title := range []string{"No link one", "No link two"} {
		a := base
		a.ID, a.Title, a.URL = string(rune('a'+i)), title, ""
		if err := s.InsertArticle(ctx, a); err != nil {
			t.Fatalf("InsertArticle without url: %v", err)
		}
	}

	if ok, err := s.ExistsByTitleSource(ctx, "Major Breach at Acme", "Krebs"); err != nil || !ok {
		t.Fatalf("ExistsByTitleSource = %v, %v", ok, err)
	}
	if ok, err := s.ExistsByURL(ctx, "https://krebs.example/acme"); err != nil || !ok {
		t.Fatalf("ExistsByURL = %v, %v", ok, err)
	}
	if ok, err := s.ExistsByURL(ctx, ""); err != nil || ok {
		t.Fatalf("ExistsByURL empty = %v, %v", ok, err)
	}

	titles, err := s.RecentTitles(ctx, "Krebs", 2)
	if err != nil || len(titles) != 2 {
		t.Fatalf("RecentTitles = %v, %v", titles, err)
	}
}

func TestUpdateArticleCacheAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := types.Article{ID: "old", Title: "Older ransomware story", Source: "Krebs", Category: "Ransomware", PublishedAt: time.Now().Add(-time.Hour)}
	newer := types.Article{ID: "new", Title: "Newer phishing story", Source: "THN", Category: "Phishing", PublishedAt: time.Now()}
	for _, a := range []types.Article{older, newer} {
		if err := s.InsertArticle(ctx, a); err != nil {
			t.Fatalf("InsertArticle: %v", err)
		}
	}

	at := time.Now()
	if err := s.UpdateArticleCache(ctx, "old", "https://cdn.example/old.json", at); err != nil {
		t.Fatalf("UpdateArticleCache: %v", err)
	}
	if err := s.UpdateArticleCache(ctx, "missing", "x", at); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	all, err := s.ListArticles(ctx, ArticleFilter{})
	if err != nil {
		t.Fatalf("ListArticles: %v", err)
	}
	if len(all) != 2 || all[0].ID != "new" {
		t.Fatalf("expected newest first, got %+v", all)
	}
	if all[1].CachedContentURL != "https://cdn.example/old.json" || all[1].CacheUpdatedAt == nil {
		t.Fatalf("cache fields not stored: %+v", all[1])
	}

	filtered, err := s.ListArticles(ctx, ArticleFilter{Category: "Ransomware"})
	if err != nil || len(filtered) != 1 || filtered[0].ID != "old" {
		t.Fatalf("ListArticles by category = %+v, %v", filtered, err)
	}
	bySource, err := s.ListArticles(ctx, ArticleFilter{Source: "THN", Limit: 1})
	if err != nil || len(bySource) != 1 || bySource[0].ID != "new" {
		t.Fatalf("ListArticles by source = %+v, %v", bySource, err)
	}
}
