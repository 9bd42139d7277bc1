package enrichment

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"
)

const (
	// DefaultCohereModel is used when no model is configured
	DefaultCohereModel = "command-r"

	cohereMaxTokens   = 120
	cohereTemperature = 0.3
	coherePreamble    = "You write short, factual summaries of cybersecurity news articles for a news feed. " +
		"Reply with two sentences of plain prose, no markdown, no preamble."
)

// chatClient is the part of the Cohere client used here
type chatClient interface {
	Chat(ctx context.Context, request *cohere.ChatRequest, opts ...option.RequestOption) (*cohere.NonStreamedChatResponse, error)
}

// CohereEnricher asks the Cohere Chat API for a short description
type CohereEnricher struct {
	client  chatClient
	model   string
	timeout time.Duration
}

// NewCohereEnricher creates an enricher with the given API key
func NewCohereEnricher(apiKey, model string, timeout time.Duration) (*CohereEnricher, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("cohere API key is empty")
	}
	if model == "" {
		model = DefaultCohereModel
	}

	// HTTP/1.1 only; the API intermittently resets HTTP/2 streams
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereEnricher{client: client, model: model, timeout: timeout}, nil
}

// Name implements Enricher
func (c *CohereEnricher) Name() string { return "cohere" }

// Enrich implements Enricher
func (c *CohereEnricher) Enrich(ctx context.Context, req Request) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.model
	preamble := coherePreamble
	maxTokens := cohereMaxTokens
	temperature := cohereTemperature

	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Message:     buildPrompt(req),
		Model:       &model,
		Preamble:    &preamble,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("cohere chat error: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", errors.New("cohere chat returned empty response")
	}
	return strings.TrimSpace(resp.Text), nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a description for this article.\nTitle: %s\nSource: %s\n", req.Title, req.Source)
	if req.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", req.URL)
	}
	return b.String()
}
