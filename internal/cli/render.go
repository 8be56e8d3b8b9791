package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"ttrpg-tracker/internal/app/view"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/domain/inventory"
)

const (
	colorDestructive = lipgloss.Color("#e53935")
	colorSuccess     = lipgloss.Color("#8BC34A")
	colorWarning     = lipgloss.Color("#FFC107")
	colorInfo        = lipgloss.Color("#2196F3")
	colorMuted       = lipgloss.Color("#9E9E9E")
)

type styles struct {
	r      *lipgloss.Renderer
	err    lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	title  lipgloss.Style
	muted  lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		r:      r,
		err:    r.NewStyle().Foreground(colorDestructive).Bold(true),
		ok:     r.NewStyle().Foreground(colorSuccess),
		warn:   r.NewStyle().Foreground(colorWarning),
		title:  r.NewStyle().Foreground(colorInfo).Bold(true),
		muted:  r.NewStyle().Foreground(colorMuted),
		header: r.NewStyle().Foreground(colorInfo).Bold(true).Padding(0, 1),
		cell:   r.NewStyle().Padding(0, 1),
	}
}

func (a *App) fail(err error) {
	s := newStyles(a.errOut)
	fmt.Fprintln(a.errOut, s.err.Render("✗ "+view.MessageFor(err)))
	a.logger.Debug().Err(err).Msg("command failed")
}

func (a *App) usage(err error) {
	s := newStyles(a.errOut)
	fmt.Fprintln(a.errOut, s.err.Render("✗ "+err.Error()))
	fmt.Fprintln(a.errOut, s.muted.Render("Run `tracker help` for usage."))
}

func (a *App) warn(msg string) {
	s := newStyles(a.errOut)
	fmt.Fprintln(a.errOut, s.warn.Render(msg))
}

func (a *App) success(format string, args ...any) {
	s := newStyles(a.out)
	fmt.Fprintln(a.out, s.ok.Render("✓ "+fmt.Sprintf(format, args...)))
}

func (a *App) table(headers []string, rows [][]string) {
	s := newStyles(a.out)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})
	fmt.Fprintln(a.out, t.Render())
}

func (a *App) renderCharacters(chars []character.Character) {
	s := newStyles(a.out)
	fmt.Fprintln(a.out, s.title.Render(fmt.Sprintf("Characters (%d/%d)", len(chars), character.MaxPerUser)))
	if len(chars) == 0 {
		fmt.Fprintln(a.out, s.muted.Render("No characters yet. Create one with `characters create <name>`."))
		return
	}
	rows := make([][]string, 0, len(chars))
	for i, c := range chars {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Name, shortID(c.ID.String()), c.ImageURL})
	}
	a.table([]string{"#", "Name", "ID", "Image"}, rows)
}

func (a *App) renderItems(owner string, filter inventory.Category, items []inventory.Item) {
	s := newStyles(a.out)
	heading := owner + "'s inventory"
	if filter != inventory.CategoryAll {
		heading += " · " + string(filter)
	}
	fmt.Fprintln(a.out, s.title.Render(heading))
	if len(items) == 0 {
		fmt.Fprintln(a.out, s.muted.Render("Nothing here."))
		return
	}
	rows := make([][]string, 0, len(items))
	for i, it := range items {
		rows = append(rows, []string{strconv.Itoa(i + 1), it.ItemName, strconv.Itoa(it.Quantity), string(it.Category), shortID(it.ID.String())})
	}
	a.table([]string{"#", "Item", "Qty", "Category", "ID"}, rows)
}

func (a *App) renderPurse(owner string, p *view.Purse) {
	s := newStyles(a.out)
	fmt.Fprintln(a.out, s.title.Render(owner+"'s purse"))
	rows := make([][]string, 0, len(view.Coins))
	for _, c := range view.Coins {
		rows = append(rows, []string{string(c), strconv.Itoa(p.Balance(c))})
	}
	a.table([]string{"Coin", "Amount"}, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
