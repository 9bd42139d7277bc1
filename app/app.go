// Package app assembles the pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"threatfeed/config"
	"threatfeed/deduplication"
	"threatfeed/enrichment"
	"threatfeed/orchestrator"
	"threatfeed/pipeline"
	"threatfeed/rssfeeds"
	"threatfeed/runlock"
	"threatfeed/storage"
	"threatfeed/store"

	"github.com/redis/go-redis/v9"
)

// App holds the wired pipeline and the resources it owns
type App struct {
	Config       config.Config
	Store        *store.Store
	Dedup        *deduplication.Deduplicator
	Orchestrator *orchestrator.Orchestrator

	redis *redis.Client
}

// New opens the database, seeds sources and wires every component.
// Optional services (Redis, S3, Cohere) are skipped with a warning when unconfigured or unreachable.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := st.UpsertSources(ctx, sources); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to seed sources: %w", err)
	}
	log.Printf("Loaded %d sources", len(sources))

	a := &App{Config: cfg, Store: st}

	var locker runlock.Locker = runlock.NewLocal()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Printf("Warning: redis at %s unreachable: %v (using in-process run lock)", cfg.Redis.Addr, err)
			a.redis.Close()
			a.redis = nil
		} else {
			locker = runlock.NewRedis(a.redis, config.RunLockTTL)
		}
	}

	a.Dedup, err = initializeDeduplicator(st, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := rssfeeds.NewFetcher(nil, cfg.FeedTimeout)
	stager := pipeline.NewStager(st, fetcher, pipeline.StagerConfig{
		MaxSources:           cfg.MaxSources,
		MaxArticlesPerSource: cfg.MaxArticlesPerSource,
		FlushSize:            cfg.StagingFlushSize,
		Workers:              cfg.FetchWorkers,
	})

	var blobs pipeline.BlobStore
	if s3, ok := initializeS3(ctx, cfg.S3); ok {
		blobs = s3
	}
	promoter := pipeline.NewPromoter(st, a.Dedup, initializeEnrichment(cfg), blobs, pipeline.PromoterConfig{
		BatchSize: cfg.PromotionBatchSize,
		Retention: cfg.StagingRetention,
	})

	a.Orchestrator = orchestrator.New(stager, promoter, locker)
	return a, nil
}

// Close releases the database and optional clients
func (a *App) Close() {
	if a.Dedup != nil {
		if err := a.Dedup.Close(); err != nil {
			log.Printf("Warning: failed to close deduplicator: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Printf("Warning: failed to close redis: %v", err)
		}
	}
	if err := a.Store.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
}

func initializeDeduplicator(st *store.Store, cfg config.Config) (*deduplication.Deduplicator, error) {
	dedupConfig := deduplication.DeduplicatorConfig{}
	if cfg.BloomEnabled && cfg.Redis.Addr != "" {
		dedupConfig.BloomConfig = &deduplication.BloomConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	d, err := deduplication.NewDeduplicator(st, dedupConfig)
	if err != nil && dedupConfig.BloomConfig != nil {
		log.Printf("Warning: %v (bloom filter disabled)", err)
		dedupConfig.BloomConfig = nil
		return deduplication.NewDeduplicator(st, dedupConfig)
	}
	return d, err
}

// initializeEnrichment builds the description chain: readability excerpt first, then Cohere
func initializeEnrichment(cfg config.Config) *enrichment.Chain {
	var enrichers []enrichment.Enricher
	if cfg.ReadabilityEnabled {
		enrichers = append(enrichers, enrichment.NewReadabilityEnricher(&http.Client{}, config.EnrichmentTimeout))
	}
	if cfg.CohereAPIKey != "" {
		c, err := enrichment.NewCohereEnricher(cfg.CohereAPIKey, cfg.CohereModel, config.EnrichmentTimeout)
		if err != nil {
			log.Printf("Warning: failed to init Cohere client: %v", err)
		} else {
			enrichers = append(enrichers, c)
		}
	}

	chain := enrichment.NewChain(enrichers...)
	if chain.Len() == 0 {
		log.Println("Warning: no description enrichers configured; invalid descriptions use the fallback text")
	}
	return chain
}

// initializeS3 returns the cache uploader when S3_BUCKET is set
func initializeS3(ctx context.Context, cfg config.S3Config) (*storage.S3, bool) {
	if cfg.Bucket == "" {
		log.Println("S3 not configured; article caching disabled")
		return nil, false
	}
	s3, err := storage.NewS3(ctx, cfg)
	if err != nil {
		log.Printf("Warning: failed to init S3 client: %v (caching disabled)", err)
		return nil, false
	}
	return s3, true
}
