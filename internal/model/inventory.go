package model

import "time"

// Inventory is the stock ledger of one product.
type Inventory struct {
	ID                string    `db:"id" json:"id"`
	ProductID         string    `db:"product_id" json:"product_id"`
	Quantity          int       `db:"quantity" json:"quantity"`
	ReservedQuantity  int       `db:"reserved_quantity" json:"reserved_quantity"`
	AvailableQuantity int       `db:"available_quantity" json:"available_quantity"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

type InventoryMovement struct {
	ID             string    `db:"id" json:"id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	MovementType   string    `db:"movement_type" json:"movement_type"`
	Algorithm      string    `db:"algorithm" json:"algorithm"`
	QuantityChange int       `db:"quantity_change" json:"quantity_change"`
	QuantityBefore int       `db:"quantity_before" json:"quantity_before"`
	QuantityAfter  int       `db:"quantity_after" json:"quantity_after"`
	ReservedBefore int       `db:"reserved_before" json:"reserved_before"`
	ReservedAfter  int       `db:"reserved_after" json:"reserved_after"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
