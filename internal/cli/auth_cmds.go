package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/session"
)

func (a *App) signupCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signup <email>",
		Short: "Create an account and sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := strings.TrimSpace(args[0])
			if password == "" {
				var err error
				if password, err = a.readPassword("Password: "); err != nil {
					return err
				}
			}
			u, err := a.gate.SignUp(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			a.success("Welcome, %s.", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func (a *App) loginCommand() *cobra.Command {
	var (
		password string
		remember bool
	)
	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in",
		Long:  "Sign in with email and password. Without an email the remembered one is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var email string
			if len(args) == 1 {
				email = strings.TrimSpace(args[0])
			} else if saved, ok := session.RememberedEmail(a.store); ok {
				email = saved
				remember = true
			} else {
				return apperr.Invalid("email is required")
			}
			if password == "" {
				var err error
				if password, err = a.readPassword(fmt.Sprintf("Password for %s: ", email)); err != nil {
					return err
				}
			}

			u, err := a.gate.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			if err := session.RememberEmail(a.store, email, remember); err != nil {
				a.logger.Warn().Err(err).Msg("remember email failed")
			}
			a.success("Signed in as %s.", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	cmd.Flags().BoolVar(&remember, "remember", false, "remember this email for the next login")
	return cmd
}

func (a *App) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.gate.User() == nil {
				a.warn("Not signed in.")
				return nil
			}
			done := make(chan struct{})
			if err := a.gate.SignOut(cmd.Context(), func() { close(done) }); err != nil {
				return err
			}
			select {
			case <-done:
			case <-cmd.Context().Done():
			}
			a.success("Signed out.")
			return nil
		},
	}
}

func (a *App) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			u, err := a.requireUser()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
}

// readPassword reads without echo on a terminal and a plain line otherwise.
func (a *App) readPassword(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := a.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return "", apperr.Invalid("password is required")
	}
	return line, nil
}

var errEOF = errors.New("no more input")

func (a *App) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", errEOF
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func (a *App) confirm(prompt string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", prompt)
	line, err := a.readLine()
	if err != nil {
		fmt.Fprintln(a.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
