// README: Scheduler drives each watchdog from its own ticker goroutine.
package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"dispatch/internal/clock"
)

type Job struct {
	Watchdog Watchdog
	Interval time.Duration
}

type Scheduler struct {
	runner *Runner
	clock  clock.Clock
	jobs   []Job
	log    *slog.Logger
}

func NewScheduler(runner *Runner, clk clock.Clock, log *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{runner: runner, clock: clk, jobs: jobs, log: log}
}

// Run blocks until ctx is done and every loop has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.log.Warn("watchdog disabled, no interval", "type", job.Watchdog.Type())
			continue
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	s.tick(ctx, j)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, j Job) {
	// Errors are already logged and recorded by the runner.
	_, _ = s.runner.Run(ctx, j.Watchdog, s.clock.Now())
}
