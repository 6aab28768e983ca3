package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/cache"
	"github.com/fekuna/omnipos-inventory-service/internal/chance"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ControllerConfig struct {
	LedgerCacheTTL time.Duration
	// RaceDelayProbability and MaxRaceDelay shape the pause the fast path
	// takes between reading and writing a ledger.
	RaceDelayProbability float64
	MaxRaceDelay         time.Duration
	// DuplicateWriteProbability is the chance a fast-path apply is written
	// twice, the second time with a perturbed reservation on reserve.
	DuplicateWriteProbability float64
}

// Command is one ledger mutation.
type Command struct {
	ProductID string
	Action    inventory.Action
	Quantity  int
	Reserved  *int
	Selection variant.Selection
}

// Controller applies a Command under the selected reservation algorithm.
type Controller struct {
	repo   inventory.Repository
	cache  *cache.Layer
	locker Locker
	cfg    ControllerConfig
	dice   *chance.Source
	events *telemetry.Recorder
	logger logger.ZapLogger
	now    func() time.Time
}

func NewController(repo inventory.Repository, layer *cache.Layer, locker Locker, cfg ControllerConfig,
	dice *chance.Source, events *telemetry.Recorder, log logger.ZapLogger) *Controller {
	return &Controller{
		repo:   repo,
		cache:  layer,
		locker: locker,
		cfg:    cfg,
		dice:   dice,
		events: events,
		logger: log,
		now:    time.Now,
	}
}

func ledgerKey(productID string) string {
	return fmt.Sprintf("inventory:ledger:%s", productID)
}

// Apply runs cmd to completion and returns the resulting in-memory ledger.
// Under the fast path with a duplicate write, the persisted row may differ
// from the returned value.
func (c *Controller) Apply(ctx context.Context, cmd Command) (model.Inventory, error) {
	if cmd.Quantity < 0 {
		return model.Inventory{}, fmt.Errorf("%w: negative quantity %d", inventory.ErrInvalidAction, cmd.Quantity)
	}

	if cmd.Selection.Algorithm == variant.AlgorithmFastPath {
		return c.applyFastPath(ctx, cmd)
	}

	unlock, err := c.locker.Lock(ctx, cmd.ProductID)
	if err != nil {
		return model.Inventory{}, err
	}
	defer unlock()

	current, err := c.Load(ctx, cmd.ProductID, cmd.Selection.CacheMode)
	if err != nil {
		return model.Inventory{}, err
	}
	next, mv, err := c.mutate(current, cmd)
	if err != nil {
		return model.Inventory{}, err
	}
	if err := c.repo.SaveWithMovement(ctx, &next, mv); err != nil {
		return model.Inventory{}, fmt.Errorf("persist ledger: %w", err)
	}

	c.repopulate(ctx, next, cmd.Selection.CacheMode)
	return next, nil
}

func (c *Controller) applyFastPath(ctx context.Context, cmd Command) (model.Inventory, error) {
	current, err := c.Load(ctx, cmd.ProductID, cmd.Selection.CacheMode)
	if err != nil {
		return model.Inventory{}, err
	}

	if c.dice.Roll(c.cfg.RaceDelayProbability) {
		d := c.dice.Duration(c.cfg.MaxRaceDelay)
		c.events.RaceDelay(ctx, cmd.ProductID)
		c.logger.Debug("fast path race delay", zap.String("product_id", cmd.ProductID), zap.Duration("delay", d))
		time.Sleep(d)
	}

	next, mv, err := c.mutate(current, cmd)
	if err != nil {
		return model.Inventory{}, err
	}
	if err := c.repo.SaveWithMovement(ctx, &next, mv); err != nil {
		return model.Inventory{}, fmt.Errorf("persist ledger: %w", err)
	}

	if c.dice.Roll(c.cfg.DuplicateWriteProbability) {
		c.duplicateWrite(ctx, next, cmd.Action)
	}

	c.repopulate(ctx, next, cmd.Selection.CacheMode)
	return next, nil
}

// duplicateWrite persists next a second time as a competing writer would.
// On reserve the reservation is nudged by one while available is left
// alone, so the stored row no longer adds up.
func (c *Controller) duplicateWrite(ctx context.Context, next model.Inventory, action inventory.Action) {
	dup := next
	if action == inventory.ActionReserve {
		delta := c.dice.Sign()
		if dup.ReservedQuantity+delta < 0 {
			delta = 1
		}
		dup.ReservedQuantity += delta
	}

	c.events.DuplicateWrite(ctx, next.ProductID)
	if err := c.repo.Save(ctx, &dup); err != nil {
		c.logger.Error("duplicate write failed", zap.String("product_id", next.ProductID), zap.Error(err))
		return
	}
	c.logger.Warn("fast path duplicate write",
		zap.String("product_id", next.ProductID),
		zap.Int("returned_reserved", next.ReservedQuantity),
		zap.Int("persisted_reserved", dup.ReservedQuantity))
}

// Load reads the ledger through the cache, falling back to the repository.
func (c *Controller) Load(ctx context.Context, productID string, mode variant.CacheMode) (model.Inventory, error) {
	key := ledgerKey(productID)

	if res := c.cache.Get(ctx, key, mode); res.Hit {
		var inv model.Inventory
		if err := json.Unmarshal(res.Value, &inv); err == nil {
			return inv, nil
		}
		c.logger.Warn("discarding undecodable ledger cache entry", zap.String("key", key))
	}

	inv, err := c.repo.GetByProduct(ctx, productID)
	if err != nil {
		return model.Inventory{}, fmt.Errorf("load ledger: %w", err)
	}
	if inv == nil {
		return model.Inventory{}, fmt.Errorf("product %s: %w", productID, inventory.ErrNotFound)
	}
	return *inv, nil
}

func (c *Controller) mutate(current model.Inventory, cmd Command) (model.Inventory, *model.InventoryMovement, error) {
	if reconciled, changed := inventory.Reconcile(current); changed {
		c.logger.Warn("ledger drift detected, reconciling before mutation",
			zap.String("product_id", current.ProductID),
			zap.Int("quantity", current.Quantity),
			zap.Int("reserved", current.ReservedQuantity),
			zap.Int("available", current.AvailableQuantity))
		current = reconciled
	}

	now := c.now()
	var next model.Inventory
	change := cmd.Quantity

	switch cmd.Action {
	case inventory.ActionReserve:
		var err error
		next, err = inventory.Reserve(current, cmd.Quantity, now)
		if err != nil {
			return model.Inventory{}, nil, err
		}
	case inventory.ActionRelease:
		next = inventory.Release(current, cmd.Quantity, now)
	case inventory.ActionUpdate:
		reserved := current.ReservedQuantity
		if reserved > cmd.Quantity {
			reserved = cmd.Quantity
		}
		if cmd.Reserved != nil {
			reserved = *cmd.Reserved
			if reserved < 0 || reserved > cmd.Quantity {
				return model.Inventory{}, nil, fmt.Errorf("%w: reserved %d outside [0, %d]",
					inventory.ErrInvalidAction, reserved, cmd.Quantity)
			}
		}
		next = inventory.Update(current, cmd.Quantity, reserved, now)
		change = cmd.Quantity - current.Quantity
	default:
		return model.Inventory{}, nil, fmt.Errorf("%w: %q", inventory.ErrInvalidAction, cmd.Action)
	}

	if err := inventory.CheckInvariant(next); err != nil {
		c.logger.DPanic("ledger invariant violated", zap.String("action", string(cmd.Action)), zap.Error(err))
		return model.Inventory{}, nil, err
	}

	return next, &model.InventoryMovement{
		ID:             uuid.New().String(),
		ProductID:      next.ProductID,
		MovementType:   string(cmd.Action),
		Algorithm:      string(cmd.Selection.Algorithm),
		QuantityChange: change,
		QuantityBefore: current.Quantity,
		QuantityAfter:  next.Quantity,
		ReservedBefore: current.ReservedQuantity,
		ReservedAfter:  next.ReservedQuantity,
		CreatedAt:      now,
	}, nil
}

func (c *Controller) repopulate(ctx context.Context, inv model.Inventory, mode variant.CacheMode) {
	key := ledgerKey(inv.ProductID)
	c.cache.Invalidate(ctx, key)

	raw, err := json.Marshal(inv)
	if err != nil {
		c.logger.Error("failed to encode ledger for cache", zap.String("key", key), zap.Error(err))
		return
	}
	c.cache.Set(ctx, key, raw, c.cfg.LedgerCacheTTL, mode)
}
