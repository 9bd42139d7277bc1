package scheduler

import (
	"context"
	"errors"
	"testing"

	"threatfeed/runlock"
	"threatfeed/types"
)

type fakeRunner struct {
	calls int
	err   error
	ctx   context.Context
}

func (f *fakeRunner) RunOnce(ctx context.Context) (*types.FetchSummary, error) {
	f.calls++
	f.ctx = ctx
	if f.err != nil {
		return nil, f.err
	}
	return &types.FetchSummary{RunID: "cron-run", Promotion: &types.PromotionSummary{}}, nil
}

func TestTickRunsCycle(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"success", nil},
		{"busy", runlock.ErrRunInProgress},
		{"failure", errors.New("failed to load sources")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.err}
			s := New(runner)
			defer s.Stop()

			s.tick()
			if runner.calls != 1 {
				t.Errorf("RunOnce called %d times, want 1", runner.calls)
			}
		})
	}
}

func TestStopCancelsCycleContext(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner)
	s.tick()
	s.Stop()

	if runner.ctx.Err() == nil {
		t.Error("cycle context should be cancelled after Stop")
	}
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(&fakeRunner{})
	defer s.Stop()

	if err := s.Start("every now and then"); err == nil {
		t.Error("expected error for invalid schedule")
	}
	if err := s.Start("*/15 * * * *"); err != nil {
		t.Errorf("valid schedule rejected: %v", err)
	}
}
