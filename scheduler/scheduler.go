// Package scheduler runs pipeline cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"threatfeed/orchestrator"
	"threatfeed/runlock"
	"threatfeed/types"

	"github.com/robfig/cron/v3"
)

// Runner is the part of the orchestrator the scheduler drives
type Runner interface {
	RunOnce(ctx context.Context) (*types.FetchSummary, error)
}

// Scheduler triggers full cycles (stage then promote) on a cron schedule
type Scheduler struct {
	runner Runner
	cron   *cron.Cron
	mu     sync.Mutex
	cronID cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler
func New(runner Runner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{runner: runner, cron: cron.New(), ctx: ctx, cancel: cancel}
}

// Start schedules the cycle and starts the cron loop
func (s *Scheduler) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, s.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cronID = id
	s.cron.Start()
	log.Printf("Cron job started with schedule: %s", schedule)
	return nil
}

// tick runs one cycle, skipping when another run holds the lock
func (s *Scheduler) tick() {
	log.Println("Cron triggered: starting automated pipeline cycle")

	summary, err := s.runner.RunOnce(s.ctx)
	switch {
	case errors.Is(err, runlock.ErrRunInProgress):
		log.Println("Cron skipped: a pipeline run is already in progress")
	case err != nil:
		log.Printf("Cron pipeline error: %v", err)
	default:
		orchestrator.DisplaySummary(summary)
	}
}

// Stop stops scheduling, cancels an in-flight cycle and waits for it to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
