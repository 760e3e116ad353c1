package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/pomodoro"
	"github.com/sadopc/taskr/internal/reminder"
	"github.com/sadopc/taskr/internal/store"
)

func (a *app) pomodoroCmd() *cobra.Command {
	var (
		rounds int
		taskID int64
		focus  time.Duration
	)
	cmd := &cobra.Command{
		Use:     "pomodoro",
		Aliases: []string{"focus"},
		Short:   "Run the focus timer without the TUI",
		Long: `Run pomodoro focus and break phases in the terminal until interrupted
or until --rounds focus rounds are done. Every finished phase is recorded
for the statistics view.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			ps, err := s.GetPomodoroSettings()
			if err != nil {
				return err
			}
			if focus > 0 {
				ps.Focus = focus
			}
			cfg := pomodoro.Settings(ps)
			// Nobody is around to end overtime.
			cfg.Overtime = false
			if taskID != 0 {
				if _, err := s.GetTask(taskID); err != nil {
					return fmt.Errorf("task %d: %w", taskID, err)
				}
			}

			ctx, stop := interruptContext(cmd.Context())
			defer stop()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			notify := printNotifier(cmd.OutOrStdout(), a)
			l := focusLoop{
				engine: pomodoro.New(cfg),
				rounds: rounds,
				now:    a.now,
				onTransition: func(tr pomodoro.Transition) {
					a.recordPhase(s, tr, taskID)
					notify.Notify(reminder.FromTransition(tr))
				},
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Focus for %s. Ctrl+C stops.\n", cfg.Focus)
			done, err := l.run(ctx, ticker.C)
			fmt.Fprintf(cmd.OutOrStdout(), "%d focus round(s) done\n", done)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.IntVarP(&rounds, "rounds", "r", 0, "stop after this many focus rounds (0 runs until interrupted)")
	f.Int64Var(&taskID, "task", 0, "task id the focus time belongs to")
	f.DurationVar(&focus, "focus", 0, "focus length for this run (default from settings)")
	return cmd
}

// focusLoop drives a pomodoro engine from a tick source. Phases that end
// paused are resumed right away.
type focusLoop struct {
	engine       *pomodoro.Engine
	rounds       int
	now          func() time.Time
	onTransition func(pomodoro.Transition)
}

// run starts the engine and returns the number of completed focus rounds
// when rounds is reached or ctx ends.
func (l focusLoop) run(ctx context.Context, ticks <-chan time.Time) (int, error) {
	if err := l.engine.Start(l.now()); err != nil {
		return 0, err
	}
	done := 0
	for {
		select {
		case <-ctx.Done():
			return done, ctx.Err()
		case <-ticks:
		}
		now := l.now()
		for _, tr := range l.engine.Tick(now) {
			if tr.From == pomodoro.Focus {
				done = tr.Rounds
			}
			if l.onTransition != nil {
				l.onTransition(tr)
			}
		}
		if l.rounds > 0 && done >= l.rounds {
			return done, nil
		}
		if l.engine.Snapshot(now).Status == pomodoro.Paused {
			if err := l.engine.Resume(now); err != nil {
				return done, err
			}
		}
	}
}

func (a *app) recordPhase(s *store.Store, tr pomodoro.Transition, taskID int64) {
	if tr.Actual <= 0 {
		return
	}
	rec := store.PomodoroRecord{
		Mode:      string(tr.From),
		Planned:   int64(tr.Planned.Seconds()),
		Actual:    int64(tr.Actual.Seconds()),
		Completed: tr.Completed,
		StartedAt: tr.StartedAt,
		EndedAt:   tr.EndedAt,
	}
	if taskID != 0 {
		rec.TaskID = &taskID
	}
	if _, err := s.AddPomodoroRecord(rec); err != nil {
		a.log.Error("record pomodoro phase", "mode", tr.From, "err", err)
	}
}
