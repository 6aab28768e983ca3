package inventory

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// Repository is the durable source of truth for stock ledgers.
type Repository interface {
	// GetByProduct returns nil, nil when the product has no ledger.
	GetByProduct(ctx context.Context, productID string) (*model.Inventory, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.Inventory, int, error)

	// Create fails with ErrAlreadyExists when a ledger for the product exists.
	Create(ctx context.Context, inv *model.Inventory) error
	// Save overwrites the stored ledger as given, available quantity included.
	Save(ctx context.Context, inv *model.Inventory) error

	// Movements / Audit
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error)

	// SaveWithMovement writes the ledger and its audit row in one transaction.
	SaveWithMovement(ctx context.Context, inv *model.Inventory, movement *model.InventoryMovement) error
}
