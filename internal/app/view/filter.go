package view

import "ttrpg-tracker/internal/domain/inventory"

// FilterItems keeps items in category, preserving order. CategoryAll keeps everything.
func FilterItems(items []inventory.Item, category inventory.Category) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, it := range items {
		if category == inventory.CategoryAll || it.Category == category {
			out = append(out, it)
		}
	}
	return out
}
