package types

import "time"

// FetchSummary is returned by a staging run
type FetchSummary struct {
	Success          bool              `json:"success"`
	RunID            string            `json:"runId"`
	SourcesProcessed int               `json:"sourcesProcessed"`
	SourcesFailed    int               `json:"sourcesFailed"`
	ArticlesFetched  int               `json:"articlesFetched"`
	ArticlesStaged   int               `json:"articlesStaged"`
	ArticlesSkipped  int               `json:"articlesSkipped"`
	Errors           []string          `json:"errors,omitempty"`
	Promotion        *PromotionSummary `json:"promotion,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
}

// PromotionSummary is returned by a promotion run
type PromotionSummary struct {
	TotalStaged       int       `json:"totalStaged"`
	Processed         int       `json:"processed"`
	MovedToProduction int       `json:"movedToProduction"`
	DuplicatesRemoved int       `json:"duplicatesRemoved"`
	ErrorCount        int       `json:"errorCount"`
	Errors            []string  `json:"errors,omitempty"`
	Purged            int64     `json:"purged"`
	StartedAt         time.Time `json:"startedAt"`
	FinishedAt        time.Time `json:"finishedAt"`
}

// LogEntry represents a single log line with timestamp
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// StatusResponse is the JSON response for GET /api/pipeline/status
type StatusResponse struct {
	Running       bool              `json:"running"`
	LastFetch     *FetchSummary     `json:"last_fetch,omitempty"`
	LastPromotion *PromotionSummary `json:"last_promotion,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	Pending       int64             `json:"pending_staging"`
	Processed     int64             `json:"processed_staging"`
	Logs          []LogEntry        `json:"logs"`
}
