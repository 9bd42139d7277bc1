package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"threatfeed/config"

	"github.com/alicebob/miniredis/v2"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		DatabasePath:       filepath.Join(t.TempDir(), "threatfeed.db"),
		FeedTimeout:        config.FeedTimeout,
		ReadabilityEnabled: false,
	}
}

func TestNewSeedsPresetSources(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	sources, err := a.Store.ListSources(context.Background(), false)
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(sources) != len(config.DefaultSources()) {
		t.Errorf("seeded %d sources, want %d", len(sources), len(config.DefaultSources()))
	}
	if a.Orchestrator == nil || a.Dedup == nil {
		t.Fatal("pipeline not wired")
	}
}

func TestNewReadsSourcesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourcesFile = filepath.Join(t.TempDir(), "sources.yaml")
	doc := "sources:\n  - name: TestFeed\n    url: https://feeds.example/rss\n    default_category: Threats\n"
	if err := os.WriteFile(cfg.SourcesFile, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	sources, err := a.Store.ListSources(context.Background(), true)
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(sources) != 1 || sources[0].Name != "TestFeed" {
		t.Errorf("sources = %+v", sources)
	}
}

func TestNewFailsOnMissingSourcesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.SourcesFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for missing sources file")
	}
}

func TestNewUsesRedisWhenReachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	// miniredis has no BF.* commands; the deduplicator still starts and falls back to the store
	cfg.BloomEnabled = true

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.redis == nil {
		t.Error("redis client should be kept when reachable")
	}
}

func TestNewFallsBackWhenRedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if a.redis != nil {
		t.Error("unreachable redis should be dropped")
	}
}
