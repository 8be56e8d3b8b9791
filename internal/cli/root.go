package cli

import (
	"github.com/spf13/cobra"
)

// rootCommand builds a fresh command tree. The shell calls it once per line so
// flag values never leak from one command into the next.
func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tracker",
		Short: "Track tabletop characters and their inventories",
		Long: `tracker keeps your tabletop RPG characters and what they carry.

Sign in once and the session is remembered between runs. Characters can be
referred to by list position, name, or the first characters of their ID.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.start(cmd.Context()); err != nil {
				return err
			}
			a.running = true
			return nil
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", a.verbose, "log requests and state changes to stderr")

	root.AddCommand(
		a.signupCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.charactersCommand(),
		a.itemsCommand(),
		a.purseCommand(),
		a.watchCommand(),
		a.shellCommand(),
	)
	return root
}
