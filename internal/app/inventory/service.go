package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/domain/inventory"
	"ttrpg-tracker/internal/platform/docstore"
	"ttrpg-tracker/internal/platform/mq"
	"ttrpg-tracker/internal/platform/validation"
)

// Service mirrors the character service for the items of one character. Writes
// invalidate the cached item list; clients that keep their own copy patch it in
// place instead of refetching.
type Service struct {
	docs   docstore.Store
	cache  *query.Cache
	pub    mq.Publisher
	logger zerolog.Logger
}

func NewService(docs docstore.Store, cache *query.Cache, pub mq.Publisher, logger zerolog.Logger) *Service {
	return &Service{docs: docs, cache: cache, pub: pub, logger: logger}
}

type itemDoc struct {
	ItemName string             `json:"item_name"`
	Quantity int                `json:"quantity"`
	Category inventory.Category `json:"category"`
}

func toItem(characterID uuid.UUID, d docstore.Document) (inventory.Item, error) {
	var body itemDoc
	if err := d.Decode(&body); err != nil {
		return inventory.Item{}, fmt.Errorf("decode item %s: %w", d.ID, err)
	}
	if body.Quantity <= 0 {
		body.Quantity = inventory.DefaultQuantity
	}
	return inventory.Item{
		ID:          d.ID,
		CharacterID: characterID,
		ItemName:    body.ItemName,
		Quantity:    body.Quantity,
		Category:    body.Category,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func (s *Service) List(ctx context.Context, userID, characterID uuid.UUID) ([]inventory.Item, error) {
	return query.Fetch(ctx, s.cache, query.InventoryKey(userID, characterID), func(ctx context.Context) ([]inventory.Item, error) {
		docs, err := s.docs.List(ctx, docstore.InventoryPath(userID, characterID))
		if err != nil {
			return nil, apperr.Unavailable("list items", err)
		}
		items := make([]inventory.Item, 0, len(docs))
		for _, d := range docs {
			it, err := toItem(characterID, d)
			if err != nil {
				return nil, apperr.Unavailable("list items", err)
			}
			items = append(items, it)
		}
		return items, nil
	})
}

// Normalize trims the name, applies the default quantity and validates the result.
func Normalize(in inventory.NewItem) (inventory.NewItem, error) {
	in.ItemName = strings.TrimSpace(in.ItemName)
	if in.Quantity == 0 {
		in.Quantity = inventory.DefaultQuantity
	}
	if err := validation.Struct(in); err != nil {
		return inventory.NewItem{}, apperr.Invalid("%v", err)
	}
	return in, nil
}

// ValidatePatch checks a partial update without touching the store.
func ValidatePatch(p inventory.Patch) (inventory.Patch, error) {
	if p.Empty() {
		return p, apperr.Invalid("nothing to update")
	}
	if p.ItemName != nil {
		name := strings.TrimSpace(*p.ItemName)
		if name == "" {
			return p, apperr.Invalid("ItemName is required")
		}
		p.ItemName = &name
	}
	if err := validation.Struct(p); err != nil {
		return p, apperr.Invalid("%v", err)
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, userID, characterID uuid.UUID, in inventory.NewItem) (inventory.Item, error) {
	in, err := Normalize(in)
	if err != nil {
		return inventory.Item{}, err
	}
	d, err := s.docs.Add(ctx, docstore.InventoryPath(userID, characterID), itemDoc{
		ItemName: in.ItemName,
		Quantity: in.Quantity,
		Category: in.Category,
	})
	if err != nil {
		return inventory.Item{}, apperr.Unavailable("insert item", err)
	}
	s.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	it, err := toItem(characterID, d)
	if err != nil {
		return inventory.Item{}, apperr.Unavailable("insert item", err)
	}
	s.publish(ctx, mq.ItemCreated, userID, characterID, it.ID)
	return it, nil
}

func (s *Service) Update(ctx context.Context, userID, characterID, itemID uuid.UUID, patch inventory.Patch) (inventory.Item, error) {
	patch, err := ValidatePatch(patch)
	if err != nil {
		return inventory.Item{}, err
	}
	fields := make(map[string]any, 3)
	if patch.ItemName != nil {
		fields["item_name"] = *patch.ItemName
	}
	if patch.Quantity != nil {
		fields["quantity"] = *patch.Quantity
	}
	if patch.Category != nil {
		fields["category"] = *patch.Category
	}

	d, err := s.docs.Update(ctx, docstore.InventoryPath(userID, characterID), itemID, fields)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return inventory.Item{}, fmt.Errorf("item %s: %w", itemID, apperr.ErrNotFound)
		}
		return inventory.Item{}, apperr.Unavailable("update item", err)
	}
	s.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	it, err := toItem(characterID, d)
	if err != nil {
		return inventory.Item{}, apperr.Unavailable("update item", err)
	}
	s.publish(ctx, mq.ItemUpdated, userID, characterID, itemID)
	return it, nil
}

func (s *Service) Delete(ctx context.Context, userID, characterID, itemID uuid.UUID) error {
	if err := s.docs.Delete(ctx, docstore.InventoryPath(userID, characterID), itemID); err != nil {
		return apperr.Unavailable("delete item", err)
	}
	s.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	s.publish(ctx, mq.ItemDeleted, userID, characterID, itemID)
	return nil
}

func (s *Service) publish(ctx context.Context, subject string, userID, characterID, itemID uuid.UUID) {
	evt := mq.Event{Type: subject, UserID: userID, CharacterID: characterID, ItemID: &itemID, At: time.Now().UTC()}
	if err := mq.PublishEvent(ctx, s.pub, evt); err != nil {
		s.logger.Warn().Err(err).Str("subject", subject).Msg("publish event failed")
	}
}
