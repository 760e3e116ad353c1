package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/sadopc/taskr/internal/api"
	"github.com/sadopc/taskr/internal/remote"
	"github.com/sadopc/taskr/internal/store"
	"github.com/sadopc/taskr/internal/syncer"
)

// credentials prompts for whatever was not given as a flag.
type credentials struct {
	Email    string
	Password string
	Name     string
}

func (c *credentials) prompt(withName bool) error {
	var fields []huh.Field
	if c.Email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(&c.Email).Validate(notBlank))
	}
	if withName && c.Name == "" {
		fields = append(fields, huh.NewInput().Title("Name").Value(&c.Name))
	}
	if c.Password == "" {
		fields = append(fields, huh.NewInput().Title("Password").
			EchoMode(huh.EchoModePassword).Value(&c.Password).Validate(notBlank))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func notBlank(s string) error {
	if s == "" {
		return errors.New("required")
	}
	return nil
}

func (a *app) registerCmd() *cobra.Command {
	var c credentials
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the sync server and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.prompt(true); err != nil {
				return err
			}
			s, err := a.openStore()
			if err != nil {
				return err
			}
			client := a.client(s)
			resp, err := client.Register(cmd.Context(), api.RegisterRequest{Email: c.Email, Password: c.Password, Name: c.Name})
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			printUser(cmd.OutOrStdout(), resp.User)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&c.Email, "email", "e", "", "account email")
	f.StringVarP(&c.Password, "password", "p", "", "account password (prompted when empty)")
	f.StringVarP(&c.Name, "name", "n", "", "display name")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var (
		c       credentials
		idToken string
		noFetch bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the sync server",
		Long: `Sign in with email and password, or with a Google ID token.

After signing in the server copy of your tasks is pulled once; pass
--no-fetch to skip it.

Examples:
  taskr login --email me@example.com
  taskr login --google-id-token "$TOKEN"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			client := a.client(s)

			var resp *api.AuthResponse
			if idToken != "" {
				resp, err = client.SocialLogin(cmd.Context(), "google", idToken)
			} else {
				if err := c.prompt(false); err != nil {
					return err
				}
				resp, err = client.Login(cmd.Context(), api.LoginRequest{Email: c.Email, Password: c.Password})
			}
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			printUser(cmd.OutOrStdout(), resp.User)

			if !noFetch {
				a.fetchAfterLogin(cmd.Context(), cmd.OutOrStdout(), s, client)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&c.Email, "email", "e", "", "account email")
	f.StringVarP(&c.Password, "password", "p", "", "account password (prompted when empty)")
	f.StringVar(&idToken, "google-id-token", "", "sign in with a Google ID token instead")
	f.BoolVar(&noFetch, "no-fetch", false, "do not pull tasks after signing in")
	return cmd
}

func printUser(w io.Writer, u api.User) {
	name := u.Email
	if u.Name != "" {
		name = fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	fmt.Fprintf(w, "Signed in as %s\n", name)
}

// fetchAfterLogin pulls the server copy once. A failure is reported but
// does not undo the sign in.
func (a *app) fetchAfterLogin(ctx context.Context, w io.Writer, s *store.Store, client *remote.Client) {
	r := a.runner()
	r.MaxAttempts = max(a.cfg.Sync.MaxAttempts, 1)
	rec := syncer.New(s, client, a.log)
	out, err := r.Run(ctx, syncer.FetchTasksWorker{Reconciler: rec, Log: a.log})
	if err != nil {
		a.log.Warn("fetch tasks", "err", err)
	}
	fmt.Fprintf(w, "Fetched tasks: %s\n", out)
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if err := a.client(s).Logout(cmd.Context()); err != nil {
				// Local tokens are gone either way.
				a.log.Warn("revoke refresh token", "err", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
