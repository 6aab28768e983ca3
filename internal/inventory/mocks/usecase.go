package mocks

import (
	"context"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/stretchr/testify/mock"
)

// UseCase is a testify mock of inventory.UseCase.
type UseCase struct {
	mock.Mock
}

func (m *UseCase) ApplyInventoryAction(ctx context.Context, input *dto.ApplyActionInput) (*model.Inventory, error) {
	args := m.Called(ctx, input)
	inv, _ := args.Get(0).(*model.Inventory)
	return inv, args.Error(1)
}

func (m *UseCase) GetProductInventory(ctx context.Context, productID string, sel variant.Selection) (*model.Inventory, error) {
	args := m.Called(ctx, productID, sel)
	inv, _ := args.Get(0).(*model.Inventory)
	return inv, args.Error(1)
}

func (m *UseCase) ListInventory(ctx context.Context, input *dto.ListInventoryInput) (*dto.InventoryPage, error) {
	args := m.Called(ctx, input)
	page, _ := args.Get(0).(*dto.InventoryPage)
	return page, args.Error(1)
}

func (m *UseCase) CreateInventory(ctx context.Context, input *dto.CreateInventoryInput) (*model.Inventory, error) {
	args := m.Called(ctx, input)
	inv, _ := args.Get(0).(*model.Inventory)
	return inv, args.Error(1)
}

func (m *UseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	args := m.Called(ctx, filters)
	items, _ := args.Get(0).([]model.InventoryMovement)
	return items, args.Int(1), args.Error(2)
}
