package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/secret"
)

func (a *app) secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Hide secret tasks until a condition ends secret mode",
	}
	cmd.AddCommand(a.secretOnCmd(), a.secretOffCmd(), a.secretStatusCmd(), a.secretPINCmd())
	return cmd
}

func (a *app) secretOnCmd() *cobra.Command {
	var until, event string
	cmd := &cobra.Command{
		Use:   "on",
		Short: "Turn secret mode on",
		Long: `Turn secret mode on. Without flags it stays on until "taskr secret off".

--until ends it at a time: a duration from now (90m), a clock time today
(18:00) or a date and time (2026-03-05 18:00).
--on-event ends it when the named event fires; the TUI fires session_end
when it exits.

Examples:
  taskr secret on --until 2h
  taskr secret on --on-event session_end`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if until != "" && event != "" {
				return errors.New("use either --until or --on-event")
			}
			now := a.now()
			cond := secret.UntilDisabled()
			switch {
			case until != "":
				t, err := parseUntil(now, until)
				if err != nil {
					return err
				}
				cond = secret.UntilTime(t)
			case event != "":
				cond = secret.OnEvent(event)
			}

			s, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.secretMode(s).Enable(cond, now); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret mode on %s\n", describe(cond))
			return nil
		},
	}
	cmd.Flags().StringVar(&until, "until", "", "end at a time or after a duration")
	cmd.Flags().StringVar(&event, "on-event", "", "end when this event fires")
	return cmd
}

// parseUntil reads a duration, an HH:MM clock time or a date and time.
// A clock time already past means tomorrow.
func parseUntil(now time.Time, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, now.Location()); err == nil {
		return t, nil
	}
	if c, err := time.Parse("15:04", s); err == nil {
		t := time.Date(now.Year(), now.Month(), now.Day(), c.Hour(), c.Minute(), 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot read %q as a duration, HH:MM or YYYY-MM-DD HH:MM", s)
}

func describe(c secret.Condition) string {
	switch c.Kind {
	case secret.Timed:
		return "until " + c.Until.Format("2006-01-02 15:04")
	case secret.Event:
		return "until event " + c.Event
	}
	return "until turned off"
}

func (a *app) secretOffCmd() *cobra.Command {
	var pin string
	cmd := &cobra.Command{
		Use:   "off",
		Short: "Turn secret mode off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			sm := a.secretMode(s)
			hasPIN, err := sm.HasPIN()
			if err != nil {
				return err
			}
			if pin == "" && hasPIN {
				if err := askSecret("PIN", &pin); err != nil {
					return err
				}
			}
			if err := sm.Disable(pin); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Secret mode off")
			return nil
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "PIN (prompted when one is set)")
	return cmd
}

func (a *app) secretStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether secret mode is on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			sm := a.secretMode(s)
			st, err := sm.Status(a.now())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !st.Active {
				fmt.Fprintln(w, "Secret mode is off")
			} else {
				fmt.Fprintf(w, "Secret mode is on %s (since %s)\n", describe(st.Condition), st.Since.Format("2006-01-02 15:04"))
			}
			hasPIN, err := sm.HasPIN()
			if err != nil {
				return err
			}
			if hasPIN {
				fmt.Fprintln(w, "A PIN is required to turn it off")
			}
			return nil
		},
	}
}

func (a *app) secretPINCmd() *cobra.Command {
	var oldPIN, newPIN string
	cmd := &cobra.Command{
		Use:   "pin",
		Short: "Set or change the PIN that guards turning secret mode off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			sm := a.secretMode(s)
			hasPIN, err := sm.HasPIN()
			if err != nil {
				return err
			}
			if oldPIN == "" && hasPIN {
				if err := askSecret("Current PIN", &oldPIN); err != nil {
					return err
				}
			}
			if newPIN == "" {
				if err := askSecret("New PIN", &newPIN); err != nil {
					return err
				}
			}
			if err := sm.SetPIN(oldPIN, newPIN); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "PIN saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPIN, "old", "", "current PIN")
	cmd.Flags().StringVar(&newPIN, "new", "", "new PIN")
	return cmd
}

func askSecret(title string, v *string) error {
	return huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(v).Run()
}
