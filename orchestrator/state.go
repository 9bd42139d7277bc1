package orchestrator

import (
	"fmt"
	"sync"
	"time"

	"threatfeed/types"
)

// maxLogs is how many recent log entries the status endpoint keeps
const maxLogs = 50

// State holds the latest run results with thread-safe access
type State struct {
	mu sync.RWMutex

	running       bool
	lastFetch     *types.FetchSummary
	lastPromotion *types.PromotionSummary
	lastErr       error

	// Logs (ring buffer)
	logs []types.LogEntry
}

// NewState creates an empty state
func NewState() *State {
	return &State{logs: make([]types.LogEntry, 0, maxLogs)}
}

// AddLog adds a log entry
func (s *State) AddLog(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLog(fmt.Sprintf(format, args...))
}

// appendLog must be called with the lock held
func (s *State) appendLog(message string) {
	s.logs = append(s.logs, types.LogEntry{Timestamp: time.Now(), Message: message})
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
}

// SetRunning flags whether a run is in flight
func (s *State) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
}

// Running reports whether a run is in flight
func (s *State) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SetFetch records the latest staging summary
func (s *State) SetFetch(summary *types.FetchSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFetch = summary
	s.appendLog(fmt.Sprintf("Staging run %s: %d staged from %d sources (%d failed)",
		summary.RunID, summary.ArticlesStaged, summary.SourcesProcessed, summary.SourcesFailed))
}

// SetPromotion records the latest promotion summary
func (s *State) SetPromotion(summary *types.PromotionSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPromotion = summary
	s.appendLog(fmt.Sprintf("Promotion: %d moved, %d duplicates, %d errors",
		summary.MovedToProduction, summary.DuplicatesRemoved, summary.ErrorCount))
}

// SetError records a failed run
func (s *State) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.appendLog(fmt.Sprintf("Error: %v", err))
}

// Snapshot returns a copy of the current status
func (s *State) Snapshot() types.StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := types.StatusResponse{
		Running:       s.running,
		LastFetch:     s.lastFetch,
		LastPromotion: s.lastPromotion,
		Logs:          append([]types.LogEntry{}, s.logs...),
	}
	if s.lastErr != nil {
		resp.LastError = s.lastErr.Error()
	}
	return resp
}
