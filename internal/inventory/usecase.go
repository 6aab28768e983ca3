package inventory

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
)

type UseCase interface {
	// ApplyInventoryAction reserves, releases or updates stock under the
	// selection's algorithm and deadline.
	ApplyInventoryAction(ctx context.Context, input *dto.ApplyActionInput) (*model.Inventory, error)
	GetProductInventory(ctx context.Context, productID string, sel variant.Selection) (*model.Inventory, error)
	ListInventory(ctx context.Context, input *dto.ListInventoryInput) (*dto.InventoryPage, error)
	CreateInventory(ctx context.Context, input *dto.CreateInventoryInput) (*model.Inventory, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error)
}
