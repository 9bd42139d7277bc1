package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// maxPageBytes bounds how much of an article page is read
const maxPageBytes = 5 << 20

// ReadabilityEnricher fetches the article page and uses its readability excerpt
type ReadabilityEnricher struct {
	client  *http.Client
	timeout time.Duration
}

// NewReadabilityEnricher creates an extractor. A nil client uses http.DefaultClient.
func NewReadabilityEnricher(client *http.Client, timeout time.Duration) *ReadabilityEnricher {
	if client == nil {
		client = http.DefaultClient
	}
	return &ReadabilityEnricher{client: client, timeout: timeout}
}

// Name implements Enricher
func (r *ReadabilityEnricher) Name() string { return "readability" }

// Enrich implements Enricher
func (r *ReadabilityEnricher) Enrich(ctx context.Context, req Request) (string, error) {
	if req.URL == "" {
		return "", errors.New("article URL is empty")
	}
	pageURL, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid article URL: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d fetching article", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxPageBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability extraction failed: %w", err)
	}

	excerpt := strings.TrimSpace(article.Excerpt)
	if excerpt == "" {
		excerpt = firstSentences(article.TextContent, 2)
	}
	if excerpt == "" {
		return "", errors.New("no excerpt found")
	}
	return excerpt, nil
}

// firstSentences returns up to n sentences from text
func firstSentences(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	end := 0
	for i := 0; i < n; i++ {
		idx := strings.Index(text[end:], ". ")
		if idx < 0 {
			return text
		}
		end += idx + 1
	}
	return strings.TrimSpace(text[:end])
}
