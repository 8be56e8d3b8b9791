package cli

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/spf13/cobra"

	"ttrpg-tracker/internal/app/apperr"
)

func (a *App) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Run commands interactively, keeping boards and the purse between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newStyles(a.out)
			fmt.Fprintln(a.out, s.title.Render("tracker shell")+s.muted.Render("  (help, exit)"))
			for {
				if err := cmd.Context().Err(); err != nil {
					return nil
				}
				fmt.Fprint(a.out, a.prompt())
				line, err := a.readLine()
				if errors.Is(err, errEOF) {
					fmt.Fprintln(a.out)
					return nil
				}
				args, err := splitArgs(line)
				if err != nil {
					a.fail(err)
					continue
				}
				if len(args) == 0 {
					continue
				}
				switch args[0] {
				case "exit", "quit":
					return nil
				case "shell":
					a.warn("Already in the shell.")
					continue
				}
				a.execute(cmd.Context(), args)
			}
		},
	}
}

func (a *App) prompt() string {
	if u := a.gate.User(); u != nil {
		return u.Email + "> "
	}
	return "tracker> "
}

// splitArgs splits a line on whitespace, honouring single and double quotes
// and backslash escapes outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case unicode.IsSpace(r):
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, apperr.Invalid("unterminated quote")
	}
	if escaped {
		return nil, apperr.Invalid("trailing backslash")
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
