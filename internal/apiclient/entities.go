package apiclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"ttrpg-tracker/internal/app/query"
	"ttrpg-tracker/internal/domain/character"
	"ttrpg-tracker/internal/domain/inventory"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func charactersPath(characterID ...uuid.UUID) string {
	p := "/v1/characters"
	if len(characterID) > 0 {
		p += "/" + characterID[0].String()
	}
	return p
}

func itemsPath(characterID uuid.UUID, itemID ...uuid.UUID) string {
	p := charactersPath(characterID) + "/inventory"
	if len(itemID) > 0 {
		p += "/" + itemID[0].String()
	}
	return p
}

// Characters adapts the client to view.CharacterSyncer.
func (c *Client) Characters() *Characters { return &Characters{c: c} }

// Items adapts the client to view.ItemSyncer.
func (c *Client) Items() *Items { return &Items{c: c} }

type Characters struct{ c *Client }

func (a *Characters) List(ctx context.Context, userID uuid.UUID) ([]character.Character, error) {
	return query.Fetch(ctx, a.c.cache, query.CharactersKey(userID), func(ctx context.Context) ([]character.Character, error) {
		var res listResponse[character.Character]
		if err := a.c.do(ctx, http.MethodGet, charactersPath(), nil, &res); err != nil {
			return nil, resourceError(err)
		}
		if res.Items == nil {
			res.Items = []character.Character{}
		}
		return res.Items, nil
	})
}

func (a *Characters) Create(ctx context.Context, userID uuid.UUID, name, imageURL string) (character.Character, error) {
	var out character.Character
	body := map[string]string{"name": name, "image_url": imageURL}
	if err := a.c.do(ctx, http.MethodPost, charactersPath(), body, &out); err != nil {
		return character.Character{}, resourceError(err)
	}
	a.c.cache.Invalidate(ctx, query.CharactersKey(userID))
	return out, nil
}

func (a *Characters) Update(ctx context.Context, userID, characterID uuid.UUID, patch character.Patch) (character.Character, error) {
	var out character.Character
	if err := a.c.do(ctx, http.MethodPatch, charactersPath(characterID), patch, &out); err != nil {
		return character.Character{}, resourceError(err)
	}
	a.c.cache.Invalidate(ctx, query.CharactersKey(userID))
	return out, nil
}

func (a *Characters) Delete(ctx context.Context, userID, characterID uuid.UUID) error {
	if err := a.c.do(ctx, http.MethodDelete, charactersPath(characterID), nil, nil); err != nil {
		return resourceError(err)
	}
	a.c.cache.Invalidate(ctx, query.CharactersKey(userID))
	a.c.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	return nil
}

type Items struct{ c *Client }

func (a *Items) List(ctx context.Context, userID, characterID uuid.UUID) ([]inventory.Item, error) {
	return query.Fetch(ctx, a.c.cache, query.InventoryKey(userID, characterID), func(ctx context.Context) ([]inventory.Item, error) {
		var res listResponse[inventory.Item]
		if err := a.c.do(ctx, http.MethodGet, itemsPath(characterID), nil, &res); err != nil {
			return nil, resourceError(err)
		}
		if res.Items == nil {
			res.Items = []inventory.Item{}
		}
		return res.Items, nil
	})
}

func (a *Items) Create(ctx context.Context, userID, characterID uuid.UUID, in inventory.NewItem) (inventory.Item, error) {
	var out inventory.Item
	if err := a.c.do(ctx, http.MethodPost, itemsPath(characterID), in, &out); err != nil {
		return inventory.Item{}, resourceError(err)
	}
	a.c.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	return out, nil
}

func (a *Items) Update(ctx context.Context, userID, characterID, itemID uuid.UUID, patch inventory.Patch) (inventory.Item, error) {
	var out inventory.Item
	if err := a.c.do(ctx, http.MethodPatch, itemsPath(characterID, itemID), patch, &out); err != nil {
		return inventory.Item{}, resourceError(err)
	}
	a.c.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	return out, nil
}

func (a *Items) Delete(ctx context.Context, userID, characterID, itemID uuid.UUID) error {
	if err := a.c.do(ctx, http.MethodDelete, itemsPath(characterID, itemID), nil, nil); err != nil {
		return resourceError(err)
	}
	a.c.cache.Invalidate(ctx, query.InventoryKey(userID, characterID))
	return nil
}
