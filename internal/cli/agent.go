package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/syncer"
)

// reloadEvery re-reads upcoming tasks so edits from other commands get an
// alarm.
const reloadEvery = time.Minute

func (a *app) agentCmd() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run reminders and background sync in the foreground",
		Long: `Run task reminders and periodic sync until interrupted. Reminders
are printed and logged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			sm := a.secretMode(s)
			sched := reminder.New(printNotifier(cmd.OutOrStdout(), a),
				reminder.WithSecret(sm),
				reminder.WithLead(a.cfg.Reminder.Lead),
				reminder.WithLogger(a.log),
			)
			defer sched.Stop()

			ctx, stop := interruptContext(cmd.Context())
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				ticker := time.NewTicker(reloadEvery)
				defer ticker.Stop()
				for {
					a.reloadReminders(sched, s)
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})

			if !noSync && signedIn(s) {
				rec := syncer.New(s, a.client(s), a.log)
				g.Go(func() error {
					err := a.periodicSync(ctx, rec, func() { a.reloadReminders(sched, s) })
					if ctx.Err() != nil {
						return nil
					}
					return err
				})
			} else {
				a.log.Info("background sync off")
			}

			a.log.Info("agent running", "sync_interval", a.cfg.Sync.Interval)
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "only run reminders")
	return cmd
}

// printNotifier writes each notification as a line on w and logs it.
func printNotifier(w io.Writer, a *app) reminder.Notifier {
	var mu sync.Mutex
	logged := reminder.LogNotifier{Log: a.log}
	return reminder.NotifierFunc(func(n reminder.Notification) {
		logged.Notify(n)
		mu.Lock()
		defer mu.Unlock()
		line := n.Title
		if n.Body != "" {
			line += ": " + n.Body
		}
		fmt.Fprintf(w, "[%s] %s\n", n.At.Format("15:04"), line)
	})
}
