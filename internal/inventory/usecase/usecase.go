package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/resilience"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/fekuna/omnipos-inventory-service/internal/warmup"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const listCachePattern = "inventory:list:*"

type inventoryUseCase struct {
	repo       inventory.Repository
	controller *Controller
	warmup     *warmup.Strategy
	events     *telemetry.Recorder
	logger     logger.ZapLogger
}

func NewInventoryUseCase(repo inventory.Repository, controller *Controller, strategy *warmup.Strategy,
	events *telemetry.Recorder, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:       repo,
		controller: controller,
		warmup:     strategy,
		events:     events,
		logger:     log,
	}
}

func (uc *inventoryUseCase) ApplyInventoryAction(ctx context.Context, input *dto.ApplyActionInput) (*model.Inventory, error) {
	action, err := inventory.ParseAction(input.Action)
	if err != nil {
		return nil, err
	}
	sel := input.Selection

	ctx, span := uc.events.StartSpan(ctx, "inventory.ApplyInventoryAction",
		attribute.String("product.id", input.ProductID),
		attribute.String("inventory.action", string(action)),
		attribute.String("variant.algorithm", string(sel.Algorithm)),
		attribute.String("variant.cache_mode", string(sel.CacheMode)),
	)
	defer span.End()

	cmd := Command{
		ProductID: input.ProductID,
		Action:    action,
		Quantity:  input.Quantity,
		Reserved:  input.Reserved,
		Selection: sel,
	}

	start := time.Now()
	inv, err := resilience.WithDeadline(ctx, sel.Timeout(), func(ctx context.Context) (model.Inventory, error) {
		inv, err := uc.controller.Apply(ctx, cmd)
		if err == nil && sel.WarmupMode == variant.WarmupOnDemand {
			uc.warmup.Invalidate(ctx, listCachePattern)
		}
		return inv, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if errors.Is(err, inventory.ErrTimedOut) {
			uc.events.Timeout(ctx, string(sel.Algorithm), sel.Retries)
			uc.logger.Warn("inventory action timed out, operation continues in background",
				zap.String("product_id", input.ProductID),
				zap.String("action", string(action)),
				zap.Int("timeout_ms", sel.TimeoutMs),
				zap.Duration("elapsed", time.Since(start)))
		}
		return nil, err
	}

	uc.logger.Debug("inventory action applied",
		zap.String("product_id", inv.ProductID),
		zap.String("action", string(action)),
		zap.String("algorithm", string(sel.Algorithm)),
		zap.Int("quantity", inv.Quantity),
		zap.Int("reserved", inv.ReservedQuantity),
		zap.Int("available", inv.AvailableQuantity))
	return &inv, nil
}

func (uc *inventoryUseCase) GetProductInventory(ctx context.Context, productID string, sel variant.Selection) (*model.Inventory, error) {
	inv, err := uc.controller.Load(ctx, productID, sel.CacheMode)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (uc *inventoryUseCase) ListInventory(ctx context.Context, input *dto.ListInventoryInput) (*dto.InventoryPage, error) {
	filters := input.Filters
	cacheKey, err := uc.generateCacheKey(&filters)
	if err != nil {
		return nil, err
	}

	res, err := uc.warmup.Read(ctx, cacheKey, input.Selection, input.RequestRate, func(ctx context.Context) ([]byte, error) {
		items, total, err := uc.repo.FindAll(ctx, &filters)
		if err != nil {
			return nil, err
		}
		page := dto.InventoryPage{Items: make([]dto.InventoryItem, 0, len(items)), Total: total}
		for _, inv := range items {
			page.Items = append(page.Items, dto.InventoryItem{
				ProductID: inv.ProductID,
				Quantity:  inv.Quantity,
				Reserved:  inv.ReservedQuantity,
				Available: inv.AvailableQuantity,
			})
		}
		return json.Marshal(page)
	})
	if err != nil {
		return nil, err
	}

	var page dto.InventoryPage
	if err := json.Unmarshal(res.Value, &page); err != nil {
		return nil, fmt.Errorf("decode inventory page: %w", err)
	}
	page.Stale = res.Stale
	return &page, nil
}

func (uc *inventoryUseCase) CreateInventory(ctx context.Context, input *dto.CreateInventoryInput) (*model.Inventory, error) {
	if input.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", inventory.ErrInvalidAction)
	}
	if input.Quantity < 0 || input.Reserved < 0 || input.Reserved > input.Quantity {
		return nil, fmt.Errorf("%w: quantity %d reserved %d", inventory.ErrInvalidAction, input.Quantity, input.Reserved)
	}

	inv := inventory.NewLedger(uuid.New().String(), input.ProductID, input.Quantity, input.Reserved, time.Now())
	if err := uc.repo.Create(ctx, &inv); err != nil {
		return nil, err
	}
	uc.warmup.Invalidate(ctx, listCachePattern)

	uc.logger.Info("inventory created", zap.String("product_id", inv.ProductID), zap.Int("quantity", inv.Quantity))
	return &inv, nil
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}

func (uc *inventoryUseCase) generateCacheKey(filters *dto.InventoryFilters) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("inventory:list:%x", md5.Sum(data)), nil
}
