package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/domain/character"
)

func (a *App) charactersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "characters",
		Aliases: []string{"chars", "c"},
		Short:   "List and manage your characters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listCharacters(cmd.Context())
		},
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List characters",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listCharacters(cmd.Context())
		},
	}

	var image string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a character",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := a.characterBoard(cmd.Context())
			if err != nil {
				return err
			}
			if err := board.OpenCreate(); err != nil {
				return err
			}
			c, err := board.Create(cmd.Context(), strings.Join(args, " "), image)
			if err != nil {
				board.CloseModal()
				return err
			}
			a.success("Created %s.", c.Name)
			return nil
		},
	}
	create.Flags().StringVar(&image, "image", "", "portrait URL")

	var renameImage string
	rename := &cobra.Command{
		Use:   "rename <character> <new name>",
		Short: "Rename a character or change its portrait",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := a.characterBoard(cmd.Context())
			if err != nil {
				return err
			}
			c, err := resolveCharacter(board.Characters(), args[0])
			if err != nil {
				return err
			}
			img := c.ImageURL
			if cmd.Flags().Changed("image") {
				img = renameImage
			}
			board.OpenEdit(c)
			updated, err := board.Edit(cmd.Context(), strings.Join(args[1:], " "), img)
			if err != nil {
				board.CloseModal()
				return err
			}
			a.success("Saved %s.", updated.Name)
			return nil
		},
	}
	rename.Flags().StringVar(&renameImage, "image", "", "new portrait URL; empty resets to the default")

	var yes bool
	del := &cobra.Command{
		Use:     "delete <character>",
		Aliases: []string{"rm"},
		Short:   "Delete a character",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, err := a.characterBoard(cmd.Context())
			if err != nil {
				return err
			}
			c, err := resolveCharacter(board.Characters(), args[0])
			if err != nil {
				return err
			}
			board.SelectDelete(c)
			if !yes && !a.confirm(fmt.Sprintf("Delete %s?", c.Name)) {
				board.CancelDelete()
				a.warn("Kept " + c.Name + ".")
				return nil
			}
			if err := board.ConfirmDelete(cmd.Context()); err != nil {
				board.CancelDelete()
				return err
			}
			delete(a.items, c.ID)
			a.success("Deleted %s.", c.Name)
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	cmd.AddCommand(list, create, rename, del)
	return cmd
}

func (a *App) listCharacters(ctx context.Context) error {
	board, err := a.characterBoard(ctx)
	if err != nil {
		return err
	}
	if err := board.Load(ctx); err != nil {
		return err
	}
	a.renderCharacters(board.Characters())
	return nil
}

// resolveCharacter accepts a 1-based list position, an exact name, or an ID prefix.
func resolveCharacter(chars []character.Character, ref string) (character.Character, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(chars) {
			return chars[n-1], nil
		}
		return character.Character{}, apperr.Invalid("no character at position %d", n)
	}
	for _, c := range chars {
		if strings.EqualFold(c.Name, ref) {
			return c, nil
		}
	}
	var found []character.Character
	for _, c := range chars {
		if strings.HasPrefix(c.ID.String(), strings.ToLower(ref)) {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return character.Character{}, apperr.Invalid("no character matches %q", ref)
	default:
		return character.Character{}, apperr.Invalid("%q matches %d characters", ref, len(found))
	}
}
