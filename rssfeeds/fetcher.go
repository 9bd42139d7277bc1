package rssfeeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"threatfeed/types"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

const (
	// UserAgent is sent with every feed request; some publishers block generic bots
	UserAgent = "Mozilla/5.0 (compatible; threatfeed/1.0; +https://github.com/threatfeed)"

	// maxFeedBytes bounds how much of a feed body is read
	maxFeedBytes = 10 << 20
)

// ErrNotXML is returned when a feed endpoint answers with a non-XML content type
var ErrNotXML = errors.New("feed response is not xml")

// FeedItem is a raw entry from a feed, before normalization
type FeedItem struct {
	Title       string
	Description string
	Link        string
	// PublishedAt is nil when no date could be parsed
	PublishedAt *time.Time
	ImageURL    string
}

// FeedResult is the outcome of fetching one source
type FeedResult struct {
	Source types.Source
	Items  []FeedItem
	Err    error
}

// Fetcher retrieves and parses RSS/Atom feeds
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a fetcher. A nil client uses http.DefaultClient; timeout bounds each request.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, timeout: timeout}
}

// FetchFeed retrieves a source's feed and returns at most maxCount entries
func (f *Fetcher) FetchFeed(ctx context.Context, src types.Source, maxCount int) ([]FeedItem, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", src.Name, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, src.Name)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(strings.ToLower(ct), "xml") {
		return nil, fmt.Errorf("%s returned %q: %w", src.Name, ct, ErrNotXML)
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", src.Name, err)
	}

	count := len(feed.Items)
	if maxCount > 0 && maxCount < count {
		count = maxCount
	}

	items := make([]FeedItem, 0, count)
	for _, entry := range feed.Items[:count] {
		description := entry.Description
		if description == "" {
			description = entry.Content
		}

		items = append(items, FeedItem{
			Title:       entry.Title,
			Description: description,
			Link:        strings.TrimSpace(entry.Link),
			PublishedAt: parsePublished(entry),
			ImageURL:    itemImage(entry),
		})
	}
	return items, nil
}

// FetchAll fetches every source with a bounded worker pool. Results keep the order of sources.
func (f *Fetcher) FetchAll(ctx context.Context, sources []types.Source, maxCount, workers int) []FeedResult {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	results := make([]FeedResult, len(sources))
	jobs := make(chan int, len(sources))
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				src := sources[i]
				items, err := f.FetchFeed(ctx, src, maxCount)
				if err != nil {
					log.Printf("[Worker %d] Failed to fetch %s: %v", workerID, src.Name, err)
				}
				results[i] = FeedResult{Source: src, Items: items, Err: err}
			}
		}(w)
	}

	for i := range sources {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// parsePublished prefers gofeed's parsed dates and falls back to dateparse on the raw strings
func parsePublished(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseAny(raw); err == nil {
			return &t
		}
	}
	return nil
}
