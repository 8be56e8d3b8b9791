package view

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	invsvc "ttrpg-tracker/internal/app/inventory"
	"ttrpg-tracker/internal/domain/inventory"
)

// ItemSyncer is satisfied by the inventory service and the API client.
type ItemSyncer interface {
	List(ctx context.Context, userID, characterID uuid.UUID) ([]inventory.Item, error)
	Create(ctx context.Context, userID, characterID uuid.UUID, in inventory.NewItem) (inventory.Item, error)
	Update(ctx context.Context, userID, characterID, itemID uuid.UUID, patch inventory.Patch) (inventory.Item, error)
	Delete(ctx context.Context, userID, characterID, itemID uuid.UUID) error
}

// InventoryBoard is one character's item list. Successful mutations are
// applied to the local list in place; the syncer is only read on Load.
type InventoryBoard struct {
	sync        ItemSyncer
	userID      uuid.UUID
	characterID uuid.UUID
	logger      zerolog.Logger
	purse       *Purse

	mu           sync.Mutex
	items        []inventory.Item
	filter       inventory.Category
	adding       bool
	deleteTarget *inventory.Item
	notices      notices
}

func NewInventoryBoard(s ItemSyncer, userID, characterID uuid.UUID, logger zerolog.Logger, now func() time.Time) *InventoryBoard {
	if now == nil {
		now = time.Now
	}
	return &InventoryBoard{
		sync:        s,
		userID:      userID,
		characterID: characterID,
		logger:      logger.With().Str("character_id", characterID.String()).Logger(),
		purse:       NewPurse(),
		items:       []inventory.Item{},
		filter:      inventory.CategoryAll,
		notices:     notices{now: now},
	}
}

func (b *InventoryBoard) Load(ctx context.Context) error {
	items, err := b.sync.List(ctx, b.userID, b.characterID)
	if err != nil {
		b.fail("load items", err)
		return err
	}
	// The syncer may hand the same slice to other readers.
	own := make([]inventory.Item, len(items))
	copy(own, items)
	b.mu.Lock()
	b.items = own
	b.mu.Unlock()
	return nil
}

func (b *InventoryBoard) Items() []inventory.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]inventory.Item, len(b.items))
	copy(out, b.items)
	return out
}

// Visible is the item list under the current category filter.
func (b *InventoryBoard) Visible() []inventory.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return FilterItems(b.items, b.filter)
}

func (b *InventoryBoard) SetFilter(c inventory.Category) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = c
}

func (b *InventoryBoard) Filter() inventory.Category {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

func (b *InventoryBoard) Purse() *Purse { return b.purse }

func (b *InventoryBoard) Add(ctx context.Context, in inventory.NewItem) (inventory.Item, error) {
	in, err := invsvc.Normalize(in)
	if err != nil {
		return inventory.Item{}, err
	}

	b.mu.Lock()
	if b.adding {
		b.mu.Unlock()
		return inventory.Item{}, ErrCreateInFlight
	}
	b.adding = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.adding = false
		b.mu.Unlock()
	}()

	item, err := b.sync.Create(ctx, b.userID, b.characterID, in)
	if err != nil {
		b.fail("add item", err)
		return inventory.Item{}, err
	}
	b.mu.Lock()
	b.items = append(b.items, item)
	b.mu.Unlock()
	return item, nil
}

func (b *InventoryBoard) Edit(ctx context.Context, itemID uuid.UUID, patch inventory.Patch) (inventory.Item, error) {
	patch, err := invsvc.ValidatePatch(patch)
	if err != nil {
		return inventory.Item{}, err
	}
	item, err := b.sync.Update(ctx, b.userID, b.characterID, itemID, patch)
	if err != nil {
		b.fail("edit item", err)
		return inventory.Item{}, err
	}
	b.mu.Lock()
	for i := range b.items {
		if b.items[i].ID == itemID {
			b.items[i] = item
		}
	}
	b.mu.Unlock()
	return item, nil
}

// SelectDelete replaces any pending delete target.
func (b *InventoryBoard) SelectDelete(item inventory.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteTarget = &item
}

func (b *InventoryBoard) CancelDelete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteTarget = nil
}

func (b *InventoryBoard) DeleteTarget() (inventory.Item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteTarget == nil {
		return inventory.Item{}, false
	}
	return *b.deleteTarget, true
}

// ConfirmDelete deletes the pending target. Without one it does nothing.
func (b *InventoryBoard) ConfirmDelete(ctx context.Context) error {
	b.mu.Lock()
	target := b.deleteTarget
	b.mu.Unlock()
	if target == nil {
		return nil
	}
	if err := b.sync.Delete(ctx, b.userID, b.characterID, target.ID); err != nil {
		b.fail("delete item", err)
		return err
	}
	b.mu.Lock()
	kept := b.items[:0:0]
	for _, it := range b.items {
		if it.ID != target.ID {
			kept = append(kept, it)
		}
	}
	b.items = kept
	b.deleteTarget = nil
	b.mu.Unlock()
	return nil
}

func (b *InventoryBoard) Notice() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notices.get()
}

func (b *InventoryBoard) fail(op string, err error) {
	b.logger.Error().Err(err).Str("op", op).Msg("inventory board")
	b.mu.Lock()
	b.notices.show(err)
	b.mu.Unlock()
}
