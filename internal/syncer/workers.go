package syncer

import (
	"context"
	"log/slog"

	"github.com/sadopc/taskr/internal/jobs"
	"github.com/sadopc/taskr/internal/remote"
)

const (
	SyncJobName  = "sync_tasks"
	FetchJobName = "fetch_tasks"

	// DefaultSyncAttempts is how many retries SyncWorker allows before it
	// reports Failure.
	DefaultSyncAttempts = 2
)

// SyncWorker pushes local changes and pulls the server state. Transient
// errors are retried while attempt < MaxAttempts.
type SyncWorker struct {
	Reconciler  *Reconciler
	MaxAttempts int
	Log         *slog.Logger
}

func NewSyncWorker(r *Reconciler, logger *slog.Logger) SyncWorker {
	return SyncWorker{Reconciler: r, MaxAttempts: DefaultSyncAttempts, Log: logger}
}

func (w SyncWorker) Name() string { return SyncJobName }

func (w SyncWorker) Run(ctx context.Context, attempt int) jobs.Outcome {
	_, err := w.Reconciler.Sync(ctx)
	out := outcome(ctx, err, attempt, w.MaxAttempts)
	logOutcome(w.Log, w.Name(), attempt, out, err)
	return out
}

// FetchTasksWorker only pulls. It retries transient errors without a bound
// and leaves any limit to the runner.
type FetchTasksWorker struct {
	Reconciler *Reconciler
	Log        *slog.Logger
}

func (w FetchTasksWorker) Name() string { return FetchJobName }

func (w FetchTasksWorker) Run(ctx context.Context, attempt int) jobs.Outcome {
	_, err := w.Reconciler.Pull(ctx)
	out := outcome(ctx, err, attempt, -1)
	logOutcome(w.Log, w.Name(), attempt, out, err)
	return out
}

// outcome maps a sync error to a job outcome. A negative limit never gives up.
func outcome(ctx context.Context, err error, attempt, limit int) jobs.Outcome {
	if err == nil {
		return jobs.Success
	}
	if ctx.Err() != nil {
		return jobs.Retry
	}
	switch remote.Classify(err) {
	case remote.KindNoInternet, remote.KindServer:
		if limit >= 0 && attempt >= limit {
			return jobs.Failure
		}
		return jobs.Retry
	case remote.KindUnauthorized:
		return jobs.Failure
	}
	return jobs.Failure
}

func logOutcome(l *slog.Logger, job string, attempt int, out jobs.Outcome, err error) {
	if err == nil {
		return
	}
	if l == nil {
		l = slog.Default()
	}
	kind := remote.Classify(err)
	if out == jobs.Retry {
		l.Warn("sync attempt failed", "job", job, "attempt", attempt, "kind", kind, "err", err)
		return
	}
	l.Error("sync failed", "job", job, "attempt", attempt, "kind", kind, "err", err)
}
