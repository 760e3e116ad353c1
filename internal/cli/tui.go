package cli

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/jobs"
	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/secret"
	"github.com/sadopc/taskr/internal/syncer"
	"github.com/sadopc/taskr/internal/tui"
)

func (a *app) runTUI(cmd *cobra.Command, _ []string) error {
	s, err := a.openStore()
	if err != nil {
		return err
	}
	sm := a.secretMode(s)

	inbox := tui.NewInbox(16)
	sched := reminder.New(inbox,
		reminder.WithSecret(sm),
		reminder.WithLead(a.cfg.Reminder.Lead),
		reminder.WithLogger(a.log),
	)
	defer sched.Stop()
	if err := sched.Reload(s); err != nil {
		a.log.Warn("arm reminders", "err", err)
	}

	rec := syncer.New(s, a.client(s), a.log)

	ctx, stop := interruptContext(cmd.Context())
	defer stop()
	if signedIn(s) {
		go func() {
			if err := a.periodicSync(ctx, rec, func() { a.reloadReminders(sched, s) }); err != nil && ctx.Err() == nil {
				a.log.Error("background sync stopped", "err", err)
			}
		}()
	}

	model := tui.NewApp(s, tui.Options{
		Secret:    sm,
		Reminders: sched,
		Sync:      rec,
		Inbox:     inbox,
		Log:       a.log,
		Now:       a.now,
	})
	return a.session(ctx, sm, func(ctx context.Context) error {
		_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	})
}

// session runs the UI and delivers the session end event to secret mode
// whichever way the UI exits, signals included.
func (a *app) session(ctx context.Context, sm *secret.Mode, run func(context.Context) error) error {
	defer a.endSession(sm)
	err := run(ctx)
	if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

func (a *app) endSession(sm *secret.Mode) {
	ended, err := sm.Trigger(secret.EventSessionEnd)
	if err != nil {
		a.log.Error("end secret mode with the session", "err", err)
		return
	}
	if ended {
		a.log.Info("secret mode ended with the session")
	}
}

// runner builds the job runner from the sync settings.
func (a *app) runner() *jobs.Runner {
	return jobs.NewRunner(jobs.Backoff{
		Initial: a.cfg.Sync.BackoffInitial,
		Max:     a.cfg.Sync.BackoffMax,
	}, a.log)
}

func (a *app) syncWorker(rec *syncer.Reconciler) syncer.SyncWorker {
	w := syncer.NewSyncWorker(rec, a.log)
	if a.cfg.Sync.MaxAttempts > 0 {
		w.MaxAttempts = a.cfg.Sync.MaxAttempts
	}
	return w
}

// periodicSync runs the sync worker every sync interval until ctx ends.
// after runs when a pass succeeds.
func (a *app) periodicSync(ctx context.Context, rec *syncer.Reconciler, after func()) error {
	w := a.syncWorker(rec)
	job := jobs.WorkerFunc{JobName: w.Name(), Fn: func(ctx context.Context, attempt int) jobs.Outcome {
		out := w.Run(ctx, attempt)
		if out == jobs.Success && after != nil {
			after()
		}
		return out
	}}
	return a.runner().Periodic(ctx, job, a.cfg.Sync.Interval)
}

func (a *app) reloadReminders(sched *reminder.Scheduler, src reminder.TaskSource) {
	if err := sched.Reload(src); err != nil {
		a.log.Warn("reload reminders", "err", err)
	}
}
