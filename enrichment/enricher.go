// Package enrichment replaces unusable feed descriptions with generated or extracted prose.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"threatfeed/content"
)

// ErrNoDescription is returned when no enricher produced a usable description
var ErrNoDescription = errors.New("no usable description")

// Request identifies the article a description is wanted for
type Request struct {
	Title  string
	URL    string
	Source string
}

// Enricher produces a replacement description for an article
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, req Request) (string, error)
}

// Chain tries each enricher in order and keeps the first description that validates
type Chain struct {
	enrichers []Enricher
}

// NewChain builds a chain that tries enrichers in the given order
func NewChain(enrichers ...Enricher) *Chain {
	return &Chain{enrichers: enrichers}
}

// Len reports how many enrichers are configured
func (c *Chain) Len() int {
	return len(c.enrichers)
}

// Enrich returns the first valid description, or ErrNoDescription when every enricher fails
func (c *Chain) Enrich(ctx context.Context, req Request) (string, error) {
	var errs []error
	for _, e := range c.enrichers {
		desc, err := e.Enrich(ctx, req)
		if err != nil {
			log.Printf("Warning: %s enrichment failed for %q: %v", e.Name(), req.Title, err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		desc = content.Normalize(desc)
		if !content.IsValidDescription(desc) {
			errs = append(errs, fmt.Errorf("%s: description too short or malformed", e.Name()))
			continue
		}
		return desc, nil
	}
	if len(errs) == 0 {
		return "", ErrNoDescription
	}
	return "", fmt.Errorf("%w: %w", ErrNoDescription, errors.Join(errs...))
}

// Describe enriches and falls back to the templated sentence on any failure.
// The boolean reports whether the fallback was used.
func (c *Chain) Describe(ctx context.Context, req Request) (string, bool) {
	if desc, err := c.Enrich(ctx, req); err == nil {
		return desc, false
	}
	return Fallback(req.Source), true
}

// Fallback is the generic description used when enrichment is unavailable
func Fallback(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "a trusted security publisher"
	}
	return fmt.Sprintf("Latest cybersecurity news coverage from %s. Open the full article for details on this story.", source)
}
