// Package orchestrator serializes staging and promotion runs and tracks their results.
package orchestrator

import (
	"context"
	"fmt"
	"log"

	"threatfeed/pipeline"
	"threatfeed/runlock"
	"threatfeed/types"
)

// lockName is shared by staging and promotion; staging clears rows promotion may be reading
const lockName = "pipeline"

// Stager runs a staging pass
type Stager interface {
	Run(ctx context.Context, opts pipeline.StageOptions) (*types.FetchSummary, error)
}

// Promoter runs a promotion pass
type Promoter interface {
	Run(ctx context.Context, opts pipeline.PromoteOptions) (*types.PromotionSummary, error)
}

// FetchOptions mirrors the fetch-news request
type FetchOptions struct {
	// Staging stops after the staging pass; otherwise the run's rows are promoted immediately
	Staging     bool
	MaxArticles int
}

// Orchestrator runs pipeline passes one at a time
type Orchestrator struct {
	stager   Stager
	promoter Promoter
	locker   runlock.Locker
	state    *State
}

// New creates an orchestrator. A nil locker uses an in-process lock.
func New(stager Stager, promoter Promoter, locker runlock.Locker) *Orchestrator {
	if locker == nil {
		locker = runlock.NewLocal()
	}
	return &Orchestrator{stager: stager, promoter: promoter, locker: locker, state: NewState()}
}

// State exposes run status for the API
func (o *Orchestrator) State() *State {
	return o.state
}

// FetchNews stages fresh articles and, unless opts.Staging is set, promotes them.
// Returns runlock.ErrRunInProgress when another run holds the lock.
func (o *Orchestrator) FetchNews(ctx context.Context, opts FetchOptions) (*types.FetchSummary, error) {
	release, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	log.Println("=== Staging Run Started ===")
	summary, err := o.stager.Run(ctx, pipeline.StageOptions{MaxArticles: opts.MaxArticles})
	if err != nil {
		o.state.SetError(err)
		return nil, fmt.Errorf("staging failed: %w", err)
	}
	o.state.SetFetch(summary)

	if !opts.Staging {
		promotion, err := o.promoter.Run(ctx, pipeline.PromoteOptions{RunID: summary.RunID})
		if err != nil {
			o.state.SetError(err)
			return nil, fmt.Errorf("promotion failed: %w", err)
		}
		o.state.SetPromotion(promotion)
		summary.Promotion = promotion
	}

	log.Println("=== Staging Run Complete ===")
	return summary, nil
}

// ProcessStaging promotes one batch of unprocessed staging rows
func (o *Orchestrator) ProcessStaging(ctx context.Context, batchSize int) (*types.PromotionSummary, error) {
	release, err := o.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	summary, err := o.promoter.Run(ctx, pipeline.PromoteOptions{BatchSize: batchSize})
	if err != nil {
		o.state.SetError(err)
		return nil, fmt.Errorf("promotion failed: %w", err)
	}
	o.state.SetPromotion(summary)
	return summary, nil
}

// RunOnce performs a full cycle: stage, then promote the staged rows
func (o *Orchestrator) RunOnce(ctx context.Context) (*types.FetchSummary, error) {
	return o.FetchNews(ctx, FetchOptions{})
}

func (o *Orchestrator) begin(ctx context.Context) (func(), error) {
	unlock, err := o.locker.Acquire(ctx, lockName)
	if err != nil {
		return nil, err
	}
	o.state.SetRunning(true)
	return func() {
		o.state.SetRunning(false)
		unlock()
	}, nil
}

// DisplaySummary logs a run summary the way the CLI prints it
func DisplaySummary(summary *types.FetchSummary) {
	log.Println("\n=== Pipeline Summary ===")
	log.Printf("Run ID:              %s", summary.RunID)
	log.Printf("Sources Processed:   %d", summary.SourcesProcessed)
	log.Printf("Sources Failed:      %d", summary.SourcesFailed)
	log.Printf("Articles Fetched:    %d", summary.ArticlesFetched)
	log.Printf("Articles Staged:     %d", summary.ArticlesStaged)
	log.Printf("Articles Skipped:    %d", summary.ArticlesSkipped)
	if p := summary.Promotion; p != nil {
		log.Printf("Moved To Production: %d", p.MovedToProduction)
		log.Printf("Duplicates Removed:  %d", p.DuplicatesRemoved)
		log.Printf("Promotion Errors:    %d", p.ErrorCount)
		log.Printf("Staging Purged:      %d", p.Purged)
	}
	for _, e := range summary.Errors {
		log.Printf("  error: %s", e)
	}
	log.Println("========================")
}
