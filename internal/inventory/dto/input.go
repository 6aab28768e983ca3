package dto

import "github.com/fekuna/omnipos-inventory-service/internal/variant"

type ApplyActionInput struct {
	ProductID string
	Action    string
	Quantity  int
	// Reserved is only read by the update action. Nil keeps the current
	// reservation, capped at the new quantity.
	Reserved  *int
	Selection variant.Selection
}

type CreateInventoryInput struct {
	ProductID string
	Quantity  int
	Reserved  int
}

type ListInventoryInput struct {
	Filters     InventoryFilters
	Selection   variant.Selection
	RequestRate int64
}

type InventoryPage struct {
	Items []InventoryItem `json:"items"`
	Total int             `json:"total"`
	// Stale is set when the page was served past its refresh interval.
	Stale bool `json:"stale,omitempty"`
}

type InventoryItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}
