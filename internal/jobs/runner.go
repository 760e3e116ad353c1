// Package jobs runs background work with retry and backoff. A Worker
// reports one of three outcomes per attempt; the Runner retries on Retry,
// and stops on Success or Failure.
package jobs

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"
)

type Outcome int

const (
	Success Outcome = iota
	Retry
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retry:
		return "retry"
	}
	return "failure"
}

// Worker is one unit of background work. attempt counts previous runs of
// the same job, so the first run sees 0.
type Worker interface {
	Name() string
	Run(ctx context.Context, attempt int) Outcome
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc struct {
	JobName string
	Fn      func(ctx context.Context, attempt int) Outcome
}

func (w WorkerFunc) Name() string                                 { return w.JobName }
func (w WorkerFunc) Run(ctx context.Context, attempt int) Outcome { return w.Fn(ctx, attempt) }

// Backoff doubles from Initial up to Max. Max 0 means no limit short of
// the largest Duration.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Initial: 10 * time.Second, Max: 5 * time.Minute}
}

func (b Backoff) Delay(attempt int) time.Duration {
	limit := b.Max
	if limit <= 0 {
		limit = math.MaxInt64
	}
	d := b.Initial
	for i := 0; i < attempt && d < limit; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}

type Runner struct {
	backoff Backoff
	log     *slog.Logger
	flight  singleflight.Group

	// MaxAttempts caps runs of a single job; zero leaves the limit to the
	// worker.
	MaxAttempts int
}

func NewRunner(b Backoff, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{backoff: b, log: logger.With("component", "jobs")}
}

// Run executes w until it succeeds or fails for good. When ctx ends while
// waiting to retry, Run returns Retry and the context error.
func (r *Runner) Run(ctx context.Context, w Worker) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return Retry, err
		}
		start := time.Now()
		out := w.Run(ctx, attempt)
		r.log.Info("job finished", "job", w.Name(), "attempt", attempt, "outcome", out, "took", time.Since(start))

		if out != Retry {
			return out, nil
		}
		if r.MaxAttempts > 0 && attempt+1 >= r.MaxAttempts {
			r.log.Warn("job gave up", "job", w.Name(), "attempts", attempt+1)
			return Failure, nil
		}

		delay := r.backoff.Delay(attempt)
		r.log.Debug("job retry scheduled", "job", w.Name(), "in", delay)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return Retry, ctx.Err()
		case <-t.C:
		}
	}
}

// Enqueue runs w unless a job with the same name is already running, in
// which case the caller waits for and shares that run's outcome.
func (r *Runner) Enqueue(ctx context.Context, w Worker) (Outcome, error) {
	v, err, shared := r.flight.Do(w.Name(), func() (any, error) {
		return r.Run(ctx, w)
	})
	if shared {
		r.log.Debug("job coalesced", "job", w.Name())
	}
	out, _ := v.(Outcome)
	return out, err
}

// Periodic runs w now and then every interval until ctx is done.
func (r *Runner) Periodic(ctx context.Context, w Worker, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := r.Enqueue(ctx, w); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
