package inventory

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryWeapons       Category = "Weapons"
	CategoryArmor         Category = "Armor"
	CategoryMagicItems    Category = "Magic Items"
	CategoryTreasure      Category = "Treasure"
	CategoryConsumables   Category = "Consumables"
	CategoryClothes       Category = "Clothes"
	CategoryMiscellaneous Category = "Miscellaneous"

	// CategoryAll is a filter value only; items never carry it.
	CategoryAll Category = "All"
)

var Categories = []Category{
	CategoryWeapons,
	CategoryArmor,
	CategoryMagicItems,
	CategoryTreasure,
	CategoryConsumables,
	CategoryClothes,
	CategoryMiscellaneous,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

const DefaultQuantity = 1

type Item struct {
	ID          uuid.UUID  `json:"id"`
	CharacterID uuid.UUID  `json:"character_id"`
	ItemName    string     `json:"item_name"`
	Quantity    int        `json:"quantity"`
	Category    Category   `json:"category"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type NewItem struct {
	ItemName string   `json:"item_name" validate:"required"`
	Quantity int      `json:"quantity" validate:"gt=0"`
	Category Category `json:"category" validate:"category"`
}

type Patch struct {
	ItemName *string   `json:"item_name,omitempty"`
	Quantity *int      `json:"quantity,omitempty" validate:"omitnil,gt=0"`
	Category *Category `json:"category,omitempty" validate:"omitnil,category"`
}

func (p Patch) Empty() bool {
	return p.ItemName == nil && p.Quantity == nil && p.Category == nil
}
