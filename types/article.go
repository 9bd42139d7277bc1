package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SourceType describes how a news source is consumed
type SourceType string

const (
	SourceTypeRSS     SourceType = "rss"
	SourceTypeAPI     SourceType = "api"
	SourceTypeScraper SourceType = "scraper"
)

// Source is a configured news feed. Read-only to the pipeline.
type Source struct {
	ID              int64      `json:"id" yaml:"-"`
	Name            string     `json:"name" yaml:"name"`
	URL             string     `json:"url" yaml:"url"`
	Type            SourceType `json:"type" yaml:"type"`
	DefaultCategory string     `json:"default_category" yaml:"default_category"`
	Active          bool       `json:"active" yaml:"active"`
	CreatedAt       time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time  `json:"updated_at" yaml:"-"`
}

// StagingArticle is a candidate article produced by an ingestion run
type StagingArticle struct {
	ID                  string    `json:"id"`
	RunID               string    `json:"run_id"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Source              string    `json:"source"`
	URL                 string    `json:"url"`
	Category            string    `json:"category"`
	PublishedAt         time.Time `json:"published_at"`
	PublishedFallback   bool      `json:"published_fallback"`
	HasValidDescription bool      `json:"has_valid_description"`
	IsProcessed         bool      `json:"is_processed"`
	CachedContentURL    string    `json:"cached_content_url,omitempty"`
	ImageURL            string    `json:"image_url,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Article is a published production article served to clients
type Article struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Source           string     `json:"source"`
	URL              string     `json:"url"`
	Category         string     `json:"category"`
	PublishedAt      time.Time  `json:"published_at"`
	CachedContentURL string     `json:"cached_content_url,omitempty"`
	CachedImageURL   string     `json:"cached_image_url,omitempty"`
	CacheUpdatedAt   *time.Time `json:"cache_updated_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Candidate is the minimal shape the duplicate detector needs
type Candidate struct {
	Title  string `json:"title" binding:"required"`
	Source string `json:"source" binding:"required"`
	URL    string `json:"url"`
}

// Candidate returns the dedup view of a staging row
func (s *StagingArticle) Candidate() Candidate {
	return Candidate{Title: s.Title, Source: s.Source, URL: s.URL}
}

// GenerateID creates a unique ID from URL
func GenerateID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}

// ArticleID derives a stable ID from the URL, or from source+title when the entry has no link
func ArticleID(url, source, title string) string {
	if url != "" {
		return GenerateID(url)
	}
	return GenerateID(source + "|" + title)
}
