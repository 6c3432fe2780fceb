// Package worker runs the recurring background jobs: the deposit poller
// and the periodic state flush. Jobs run independently so a slow node
// query never delays a state save.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
}

type Runner struct {
	jobs []job
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log.With().Str("component", "worker").Logger()}
}

func (r *Runner) Add(name string, interval time.Duration, run func(ctx context.Context)) {
	r.jobs = append(r.jobs, job{name: name, interval: interval, run: run})
}

// Start launches one goroutine per job. Jobs stop when ctx is cancelled;
// Wait blocks until they have all returned.
func (r *Runner) Start(ctx context.Context) {
	for _, j := range r.jobs {
		r.wg.Add(1)
		go func(j job) {
			defer r.wg.Done()
			r.log.Info().Str("job", j.name).Dur("interval", j.interval).Msg("job started")

			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					r.log.Info().Str("job", j.name).Msg("job stopped")
					return
				case <-ticker.C:
					r.runOne(ctx, j)
				}
			}
		}(j)
	}
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) runOne(ctx context.Context, j job) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("job", j.name).Any("panic", rec).Msg("job tick panicked")
		}
	}()
	j.run(ctx)
}
