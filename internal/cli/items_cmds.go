package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/view"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/domain/inventory"
)

func (a *App) itemsCommand() *cobra.Command {
	var category string
	listItems := func(cmd *cobra.Command, args []string) error {
		board, owner, err := a.boardFor(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("category") {
			c, err := parseCategory(category, true)
			if err != nil {
				return err
			}
			board.SetFilter(c)
		}
		if err := board.Load(cmd.Context()); err != nil {
			return err
		}
		a.renderItems(owner.Name, board.Filter(), board.Visible())
		return nil
	}

	cmd := &cobra.Command{
		Use:     "items <character>",
		Aliases: []string{"inv", "i"},
		Short:   "List and manage a character's inventory",
		Args:    cobra.ExactArgs(1),
		RunE:    listItems,
	}
	cmd.Flags().StringVar(&category, "category", "", "only show one category (All resets)")

	list := &cobra.Command{
		Use:     "list <character>",
		Aliases: []string{"ls"},
		Short:   "List items",
		Args:    cobra.ExactArgs(1),
		RunE:    listItems,
	}
	list.Flags().StringVar(&category, "category", "", "only show one category (All resets)")

	var (
		qty    int
		addCat string
	)
	add := &cobra.Command{
		Use:   "add <character> <item name>",
		Short: "Add an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, owner, err := a.boardFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c, err := parseCategory(addCat, false)
			if err != nil {
				return err
			}
			item, err := board.Add(cmd.Context(), inventory.NewItem{
				ItemName: strings.Join(args[1:], " "),
				Quantity: qty,
				Category: c,
			})
			if err != nil {
				return err
			}
			a.success("Added %d × %s to %s.", item.Quantity, item.ItemName, owner.Name)
			return nil
		},
	}
	add.Flags().IntVarP(&qty, "qty", "q", inventory.DefaultQuantity, "quantity")
	add.Flags().StringVarP(&addCat, "category", "c", string(inventory.CategoryMiscellaneous), "category")

	var (
		newName string
		newQty  int
		newCat  string
	)
	edit := &cobra.Command{
		Use:   "edit <character> <item>",
		Short: "Change an item's name, quantity or category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, _, err := a.boardFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			item, err := resolveItem(board.Visible(), args[1])
			if err != nil {
				return err
			}
			var patch inventory.Patch
			if cmd.Flags().Changed("name") {
				patch.ItemName = &newName
			}
			if cmd.Flags().Changed("qty") {
				patch.Quantity = &newQty
			}
			if cmd.Flags().Changed("category") {
				c, err := parseCategory(newCat, false)
				if err != nil {
					return err
				}
				patch.Category = &c
			}
			updated, err := board.Edit(cmd.Context(), item.ID, patch)
			if err != nil {
				return err
			}
			a.success("Saved %s (%d, %s).", updated.ItemName, updated.Quantity, updated.Category)
			return nil
		},
	}
	edit.Flags().StringVar(&newName, "name", "", "new name")
	edit.Flags().IntVarP(&newQty, "qty", "q", 0, "new quantity")
	edit.Flags().StringVarP(&newCat, "category", "c", "", "new category")

	var yes bool
	del := &cobra.Command{
		Use:     "delete <character> <item>",
		Aliases: []string{"rm"},
		Short:   "Remove an item",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			board, owner, err := a.boardFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			item, err := resolveItem(board.Visible(), args[1])
			if err != nil {
				return err
			}
			board.SelectDelete(item)
			if !yes && !a.confirm(fmt.Sprintf("Remove %s from %s?", item.ItemName, owner.Name)) {
				board.CancelDelete()
				a.warn("Kept " + item.ItemName + ".")
				return nil
			}
			if err := board.ConfirmDelete(cmd.Context()); err != nil {
				board.CancelDelete()
				return err
			}
			a.success("Removed %s.", item.ItemName)
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	cmd.AddCommand(list, add, edit, del)
	return cmd
}

func (a *App) purseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purse <character> [<coin> <amount>]",
		Short: "Show or adjust a character's coins",
		Long: `Show a character's gold, silver and copper, or add to one of them.
A negative amount spends coins. The purse is kept only for the current shell.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("accepts 1 or 3 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			board, owner, err := a.boardFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(args) == 3 {
				delta, err := strconv.Atoi(args[2])
				if err != nil {
					return apperr.Invalid("amount must be a whole number")
				}
				if _, err := board.Purse().Add(parseCoin(args[1]), delta); err != nil {
					return err
				}
			}
			a.renderPurse(owner.Name, board.Purse())
			return nil
		},
	}
	// lets "purse 1 gold -3" through without -3 parsing as a flag
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func (a *App) boardFor(ctx context.Context, ref string) (*view.InventoryBoard, character.Character, error) {
	chars, err := a.characterBoard(ctx)
	if err != nil {
		return nil, character.Character{}, err
	}
	c, err := resolveCharacter(chars.Characters(), ref)
	if err != nil {
		return nil, character.Character{}, err
	}
	board, err := a.inventoryBoard(ctx, c.ID)
	if err != nil {
		return nil, character.Character{}, err
	}
	return board, c, nil
}

func foldName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// parseCategory matches ignoring case, spaces, dashes and underscores, so
// "magic-items" is Magic Items.
func parseCategory(s string, allowAll bool) (inventory.Category, error) {
	want := foldName(s)
	if allowAll && (want == "" || want == foldName(string(inventory.CategoryAll))) {
		return inventory.CategoryAll, nil
	}
	for _, c := range inventory.Categories {
		if foldName(string(c)) == want {
			return c, nil
		}
	}
	return "", apperr.Invalid("unknown category %q", s)
}

// parseCoin ignores case. Unknown names pass through for the purse to reject.
func parseCoin(s string) view.Coin {
	for _, c := range view.Coins {
		if strings.EqualFold(string(c), s) {
			return c
		}
	}
	return view.Coin(s)
}

func resolveItem(items []inventory.Item, ref string) (inventory.Item, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(items) {
			return items[n-1], nil
		}
		return inventory.Item{}, apperr.Invalid("no item at position %d", n)
	}
	if id, err := uuid.Parse(ref); err == nil {
		for _, it := range items {
			if it.ID == id {
				return it, nil
			}
		}
	}
	var found []inventory.Item
	for _, it := range items {
		if strings.EqualFold(it.ItemName, ref) || strings.HasPrefix(it.ID.String(), strings.ToLower(ref)) {
			found = append(found, it)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return inventory.Item{}, apperr.Invalid("no item matches %q", ref)
	default:
		return inventory.Item{}, apperr.Invalid("%q matches %d items", ref, len(found))
	}
}
