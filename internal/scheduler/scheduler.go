// Package scheduler triggers tracker passes on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"readz/internal/tracker"
)

// PassRunner runs one update pass. *tracker.Tracker implements it.
type PassRunner interface {
	RunPass(ctx context.Context, goodreadsID string) (tracker.Summary, error)
}

// Scheduler drives a PassRunner on a fixed interval.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
}

// New creates a Scheduler firing every interval.
func New(runner PassRunner, interval time.Duration) *Scheduler {
	return &Scheduler{runner: runner, interval: interval}
}

// Run blocks, triggering one pass per tick until ctx is canceled. A tick
// that arrives while the previous pass is still running is skipped; a
// failed pass is logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.runner.RunPass(ctx, ""); err != nil {
				if errors.Is(err, tracker.ErrPassRunning) {
					slog.Warn("skipping tick, previous pass still running")
					continue
				}
				slog.Error("scheduled pass failed", "error", err)
			}
		}
	}
}
