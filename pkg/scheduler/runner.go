// Package scheduler runs pipeline jobs on an interval. Runs of one job never
// overlap: a tick that arrives while the previous run is in flight is skipped.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrBusy is returned by Trigger while a run is in flight.
var ErrBusy = errors.New("job already running")

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Runner runs a Job every interval until its context ends.
type Runner struct {
	name      string
	interval  time.Duration
	job       Job
	immediate bool
	logger    *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Option configures a Runner.
type Option func(*Runner)

// WithImmediate runs the job once as soon as Run starts.
func WithImmediate() Option {
	return func(r *Runner) { r.immediate = true }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New returns a runner for job. interval must be positive.
func New(name string, interval time.Duration, job Job, opts ...Option) *Runner {
	r := &Runner{
		name:     name,
		interval: interval,
		job:      job,
		logger:   slog.Default().With("component", "scheduler", "job", name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the job name.
func (r *Runner) Name() string {
	return r.name
}

// Run ticks until ctx ends, then waits for the in-flight run to return.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.wg.Wait()

	if r.immediate {
		r.start(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.start(ctx)
		}
	}
}

func (r *Runner) start(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		r.logger.InfoContext(ctx, "previous run still in flight, skipping tick")
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		_ = r.execute(ctx)
	}()
}

// Trigger runs the job now in the caller's goroutine. It returns ErrBusy
// when a run is already in flight.
func (r *Runner) Trigger(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer r.running.Store(false)
	return r.execute(ctx)
}

func (r *Runner) execute(ctx context.Context) error {
	started := time.Now()
	r.runs.Add(1)
	err := r.job(ctx)
	if err != nil {
		r.failed.Add(1)
		r.logger.WarnContext(ctx, "job run failed", "error", err, "duration", time.Since(started))
		return err
	}
	r.logger.DebugContext(ctx, "job run finished", "duration", time.Since(started))
	return nil
}

// Stats counts runs since the runner was created.
type Stats struct {
	Runs    int64 `json:"runs"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

func (r *Runner) Stats() Stats {
	return Stats{Runs: r.runs.Load(), Skipped: r.skipped.Load(), Failed: r.failed.Load()}
}

// Group runs several runners until ctx ends.
func Group(ctx context.Context, runners ...*Runner) error {
	var wg sync.WaitGroup
	errs := make([]error, len(runners))
	for i, r := range runners {
		wg.Add(1)
		go func(i int, r *Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				errs[i] = err
			}
		}(i, r)
	}
	wg.Wait()
	return errors.Join(errs...)
}
