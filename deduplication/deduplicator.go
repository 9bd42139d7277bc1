package deduplication

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"

	"threatfeed/config"
	"threatfeed/types"
)

const (
	// ReasonBloom marks a probable exact duplicate reported by the bloom filter
	ReasonBloom = "bloom"
	// ReasonTitle marks an exact (title, source) match
	ReasonTitle = "title"
	// ReasonURL marks an exact URL match
	ReasonURL = "url"
	// ReasonFuzzy marks a near-identical title from the same source
	ReasonFuzzy = "fuzzy"
)

// minTokenLength is the shortest word counted towards title overlap
const minTokenLength = 4

// Lookup describes the minimal article store functionality required by the deduplicator.
type Lookup interface {
	ExistsByTitleSource(ctx context.Context, title, source string) (bool, error)
	ExistsByURL(ctx context.Context, url string) (bool, error)
	RecentTitles(ctx context.Context, source string, limit int) ([]string, error)
}

// DeduplicationResult contains the result of deduplication check
type DeduplicationResult struct {
	IsDuplicate     bool      `json:"is_duplicate"`
	Reason          string    `json:"reason,omitempty"`
	MatchingTitle   string    `json:"matching_title,omitempty"`
	SimilarityScore float64   `json:"similarity_score,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Deduplicator checks candidate articles against the production collection
type Deduplicator struct {
	lookup              Lookup
	similarityThreshold float64
	recentTitleWindow   int
	bloom               *RedisBloom
}

// DeduplicatorConfig holds configuration for the deduplicator
type DeduplicatorConfig struct {
	SimilarityThreshold float64 // Default: 0.70
	RecentTitleWindow   int     // Default: 50
	// Optional Bloom filter configuration. If nil, Bloom checks are disabled.
	BloomConfig *BloomConfig
}

// NewDeduplicator creates a deduplicator backed by the given lookup
func NewDeduplicator(lookup Lookup, cfg DeduplicatorConfig) (*Deduplicator, error) {
	if lookup == nil {
		return nil, fmt.Errorf("article lookup cannot be nil")
	}

	cfg = applyConfigDefaults(cfg)

	var bloomClient *RedisBloom
	if cfg.BloomConfig != nil {
		b, err := NewRedisBloom(*cfg.BloomConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RedisBloom: %w", err)
		}
		bloomClient = b
	}

	return &Deduplicator{
		lookup:              lookup,
		similarityThreshold: cfg.SimilarityThreshold,
		recentTitleWindow:   cfg.RecentTitleWindow,
		bloom:               bloomClient,
	}, nil
}

// CheckForDuplicates runs the tiered check and stops at the first match
func (d *Deduplicator) CheckForDuplicates(ctx context.Context, candidate types.Candidate) (*DeduplicationResult, error) {
	checkTime := time.Now()

	// Fast-path: probabilistic exact-duplicate filter (URL+title hash)
	if d.bloom != nil {
		exists, err := d.bloom.Exists(ctx, NormalizeAndHash(candidate))
		if err != nil {
			log.Printf("Warning: bloom check failed: %v", err)
		} else if exists {
			return &DeduplicationResult{IsDuplicate: true, Reason: ReasonBloom, CheckedAt: checkTime}, nil
		}
	}

	exists, err := d.lookup.ExistsByTitleSource(ctx, candidate.Title, candidate.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to check title and source: %w", err)
	}
	if exists {
		return &DeduplicationResult{
			IsDuplicate:     true,
			Reason:          ReasonTitle,
			MatchingTitle:   candidate.Title,
			SimilarityScore: 1,
			CheckedAt:       checkTime,
		}, nil
	}

	if strings.TrimSpace(candidate.URL) != "" {
		exists, err := d.lookup.ExistsByURL(ctx, candidate.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to check url: %w", err)
		}
		if exists {
			return &DeduplicationResult{IsDuplicate: true, Reason: ReasonURL, CheckedAt: checkTime}, nil
		}
	}

	titles, err := d.lookup.RecentTitles(ctx, candidate.Source, d.recentTitleWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent titles: %w", err)
	}

	var best *DeduplicationResult
	for _, existing := range titles {
		score := TitleSimilarity(candidate.Title, existing)
		if score <= d.similarityThreshold {
			continue
		}
		if best == nil || score > best.SimilarityScore {
			best = &DeduplicationResult{
				IsDuplicate:     true,
				Reason:          ReasonFuzzy,
				MatchingTitle:   existing,
				SimilarityScore: score,
				CheckedAt:       checkTime,
			}
		}
	}

	if best != nil {
		log.Printf("Found duplicate article: %q matches %q with %.2f%% similarity",
			candidate.Title, best.MatchingTitle, best.SimilarityScore*100)
		return best, nil
	}

	return &DeduplicationResult{IsDuplicate: false, CheckedAt: checkTime}, nil
}

// Remember records a promoted article in the bloom filter, when one is configured
func (d *Deduplicator) Remember(ctx context.Context, candidate types.Candidate) {
	if d.bloom == nil {
		return
	}
	if err := d.bloom.Add(ctx, NormalizeAndHash(candidate)); err != nil {
		log.Printf("Warning: failed to add article to bloom filter: %v", err)
	}
}

// TitleSimilarity is the share of a's significant words that also appear in b,
// measured against the longer of the two titles.
func TitleSimilarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	denom := len(tokensA)
	if len(tokensB) > denom {
		denom = len(tokensB)
	}
	if denom == 0 {
		return 0
	}

	inB := make(map[string]struct{}, len(tokensB))
	for _, tok := range tokensB {
		inB[tok] = struct{}{}
	}

	common := 0
	for _, tok := range tokensA {
		if len([]rune(tok)) < minTokenLength {
			continue
		}
		if _, ok := inB[tok]; ok {
			common++
		}
	}
	return float64(common) / float64(denom)
}

func tokenize(title string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, title)
	return strings.Fields(cleaned)
}

// Close releases the bloom client when one was opened
func (d *Deduplicator) Close() error {
	if d.bloom != nil {
		return d.bloom.Close()
	}
	return nil
}

func applyConfigDefaults(cfg DeduplicatorConfig) DeduplicatorConfig {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = config.FuzzyTitleThreshold
	}
	if cfg.RecentTitleWindow == 0 {
		cfg.RecentTitleWindow = config.RecentTitleWindow
	}
	return cfg
}
