package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"threatfeed/orchestrator"
	"threatfeed/runlock"
	"threatfeed/types"
)

const (
	// ActionFetchNews runs a staging pass, promoting too when staging is false
	ActionFetchNews = "fetch-news"
	// ActionProcessStaging promotes one batch of staged rows
	ActionProcessStaging = "process-staging-articles"
)

// Message is the JSON payload of a trigger
type Message struct {
	Action      string `json:"action"`
	Staging     *bool  `json:"staging,omitempty"`
	MaxArticles int    `json:"maxArticles,omitempty"`
	BatchSize   int    `json:"batchSize,omitempty"`
}

// Runner is the part of the orchestrator a trigger drives
type Runner interface {
	FetchNews(ctx context.Context, opts orchestrator.FetchOptions) (*types.FetchSummary, error)
	ProcessStaging(ctx context.Context, batchSize int) (*types.PromotionSummary, error)
}

// Handler maps trigger messages onto runner calls
type Handler struct {
	runner Runner
}

// NewHandler creates a Handler
func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// HandleMessage runs one trigger and reports whether its offset should be committed.
// Malformed messages, unknown actions and triggers hitting a busy pipeline are dropped;
// a failed run returns its error unmarked so it is retried.
func (h *Handler) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("Warning: failed to unmarshal trigger: %v", err)
		return true, nil
	}

	switch msg.Action {
	case ActionFetchNews, ActionProcessStaging:
	default:
		log.Printf("Warning: ignoring trigger with unknown action %q", msg.Action)
		return true, nil
	}

	err := dispatch(ctx, h.runner, &msg)
	if errors.Is(err, runlock.ErrRunInProgress) {
		log.Printf("Trigger %s skipped: a run is already in progress", msg.Action)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func dispatch(ctx context.Context, runner Runner, msg *Message) error {
	switch msg.Action {
	case ActionFetchNews:
		opts := orchestrator.FetchOptions{Staging: true, MaxArticles: msg.MaxArticles}
		if msg.Staging != nil {
			opts.Staging = *msg.Staging
		}
		summary, err := runner.FetchNews(ctx, opts)
		if err != nil {
			return err
		}
		log.Printf("Trigger fetch-news finished: run %s staged %d", summary.RunID, summary.ArticlesStaged)
	case ActionProcessStaging:
		summary, err := runner.ProcessStaging(ctx, msg.BatchSize)
		if err != nil {
			return err
		}
		log.Printf("Trigger process-staging-articles finished: %d moved, %d duplicates",
			summary.MovedToProduction, summary.DuplicatesRemoved)
	}
	return nil
}
