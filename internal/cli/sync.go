package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/jobs"
	"github.com/sadopc/taskr/internal/syncer"
)

func (a *app) syncCmd() *cobra.Command {
	var fetchOnly, status bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync tasks with the server",
		Long: `Push local changes to the sync server and pull the server copy.

Transient failures (no connection, server errors) are retried with
backoff. --fetch-only skips the push. --status only prints what is
waiting to be synced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			rec := syncer.New(s, a.client(s), a.log)
			w := cmd.OutOrStdout()

			if !status {
				if !signedIn(s) {
					return errors.New("not signed in; run taskr login first")
				}
				var worker jobs.Worker = a.syncWorker(rec)
				r := a.runner()
				if fetchOnly {
					worker = syncer.FetchTasksWorker{Reconciler: rec, Log: a.log}
					r.MaxAttempts = max(a.cfg.Sync.MaxAttempts, 1)
				}
				out, err := r.Enqueue(cmd.Context(), worker)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s: %s\n", worker.Name(), out)
				if out != jobs.Success {
					return fmt.Errorf("%s did not succeed", worker.Name())
				}
			}

			st, err := rec.Status()
			if err != nil {
				return err
			}
			writeStatus(w, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fetchOnly, "fetch-only", false, "only pull from the server")
	cmd.Flags().BoolVar(&status, "status", false, "print the sync status without syncing")
	return cmd
}

func writeStatus(w io.Writer, st syncer.Status) {
	last := "never"
	if !st.LastSync.IsZero() {
		last = st.LastSync.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(w, "Last sync:  %s\n", last)
	fmt.Fprintf(w, "Pending:    %d tasks, %d groups\n", st.PendingTasks, st.PendingGroups)
}
