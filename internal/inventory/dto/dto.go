package dto

import "time"

type InventoryFilters struct {
	ProductID string
	// LowStock keeps ledgers whose available quantity is at or below
	// LowStockThreshold.
	LowStock          bool
	LowStockThreshold int
	Page              int
	PageSize          int
}

type MovementFilters struct {
	ProductID    string
	MovementType string
	Algorithm    string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}
