// Package cli wires the taskr commands: the TUI, the REST server, and the
// scriptable task, sync and secret mode commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/config"
	"github.com/sadopc/taskr/internal/logging"
	"github.com/sadopc/taskr/internal/remote"
	"github.com/sadopc/taskr/internal/secret"
	"github.com/sadopc/taskr/internal/store"
)

// app holds what the commands share. Config, logger and store are set up
// once per invocation.
type app struct {
	cfgPath string
	verbose bool

	cfg     *config.Config
	log     *slog.Logger
	store   *store.Store
	closers []io.Closer
	now     func() time.Time
}

func newApp() *app {
	return &app{now: time.Now}
}

func (a *app) rootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskr",
		Short: "taskr - tasks, focus timer and sync",
		Long: `taskr keeps a local task list with reminders, a pomodoro focus timer
and optional sync with a taskr server.

Run without a command to open the terminal UI.`,
		Version:       version,
		RunE:          a.runTUI,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr(), cmd == cmd.Root())
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", a.cfgPath, "config file (default <config dir>/taskr/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", a.verbose, "log at debug level")

	root.AddCommand(
		a.taskCmd(),
		a.groupCmd(),
		a.serveCmd(),
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.syncCmd(),
		a.exportCmd(),
		a.secretCmd(),
		a.agentCmd(),
		a.pomodoroCmd(),
		a.configCmd(),
		versionCmd(version),
	)
	return root
}

// Execute runs the root command.
func Execute(version string) error {
	a := newApp()
	defer a.close()
	if err := a.rootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// setup loads the config and builds the logger. While the TUI owns the
// terminal the log goes to the configured file.
func (a *app) setup(stderr io.Writer, toFile bool) error {
	if a.cfg == nil {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	if a.verbose {
		a.cfg.Log.Level = "debug"
	}
	if a.log != nil {
		return nil
	}

	if toFile {
		l, c, err := logging.OpenFile(a.cfg.Log)
		if err != nil {
			return err
		}
		a.log = l
		a.closers = append(a.closers, c)
	} else {
		l, err := logging.New(a.cfg.Log, stderr)
		if err != nil {
			return err
		}
		a.log = l
	}
	slog.SetDefault(a.log)
	return nil
}

// openStore opens the local database on first use.
func (a *app) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.New(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.DBPath, err)
	}
	a.store = s
	a.closers = append(a.closers, s)
	return s, nil
}

func (a *app) client(s *store.Store) *remote.Client {
	return remote.New(a.cfg.Remote.BaseURL, remote.SettingsTokens{KV: s},
		remote.WithTimeout(a.cfg.Remote.Timeout),
		remote.WithLogger(a.log),
	)
}

func (a *app) secretMode(s *store.Store) *secret.Mode {
	return secret.New(s, a.log)
}

// hideSecret reports whether secret tasks must be left out of output. A
// state that cannot be read hides them.
func (a *app) hideSecret(s *store.Store) bool {
	active, err := a.secretMode(s).Active(a.now())
	if err != nil {
		a.log.Warn("read secret mode", "err", err)
		return true
	}
	return active
}

// signedIn reports whether a refresh token is stored.
func signedIn(s *store.Store) bool {
	tok, err := remote.SettingsTokens{KV: s}.Tokens()
	return err == nil && tok.Refresh != ""
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
	a.store = nil
}

func versionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskr version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "taskr %s\n", version)
			return nil
		},
	}
}
