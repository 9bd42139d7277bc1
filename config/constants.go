package config

import "time"

// Ingestion Constants
const (
	// MaxSourcesPerRun caps how many active sources a single staging run reads
	MaxSourcesPerRun = 10

	// MaxArticlesPerSource caps how many feed items are taken from each source per run
	MaxArticlesPerSource = 5

	// StagingFlushSize is the number of accumulated rows that triggers a staging insert
	StagingFlushSize = 100

	// MinTitleLength rejects feed entries with titles shorter than this (in characters)
	MinTitleLength = 10

	// FetchWorkers is the default number of concurrent feed fetches
	FetchWorkers = 4

	// FeedTimeout bounds a single feed request
	FeedTimeout = 20 * time.Second
)

// Publication Date Constants
const (
	// MaxPublishedAge is how far in the past a feed date may be before it is replaced with now
	MaxPublishedAge = 365 * 24 * time.Hour

	// MaxPublishedSkew is how far in the future a feed date may be before it is replaced with now
	MaxPublishedSkew = 7 * 24 * time.Hour
)

// Promotion Constants
const (
	// PromotionBatchSize is the default number of staging rows evaluated per promotion run
	PromotionBatchSize = 50

	// StagingRetention is how long processed staging rows are kept for audit
	StagingRetention = 7 * 24 * time.Hour

	// MaxErrorDetails caps the error strings returned in a run summary
	MaxErrorDetails = 10

	// EnrichmentTimeout bounds a single description generation call
	EnrichmentTimeout = 30 * time.Second

	// CacheUploadTimeout bounds a single cache blob upload
	CacheUploadTimeout = 30 * time.Second
)

// Duplicate Detection Constants
const (
	// FuzzyTitleThreshold is the token-overlap ratio above which titles are duplicates
	FuzzyTitleThreshold = 0.70

	// RecentTitleWindow is how many recent titles from the same source are compared
	RecentTitleWindow = 50
)

// Run Lock Constants
const (
	// RunLockTTL expires a held run lock if its holder dies
	RunLockTTL = 15 * time.Minute
)
