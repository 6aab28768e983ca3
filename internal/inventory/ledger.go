package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Action string

const (
	ActionReserve Action = "reserve"
	ActionRelease Action = "release"
	ActionUpdate  Action = "update"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionReserve:
		return ActionReserve, nil
	case ActionRelease:
		return ActionRelease, nil
	case ActionUpdate:
		return ActionUpdate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// NewLedger returns a fresh ledger for productID.
func NewLedger(id, productID string, quantity, reserved int, now time.Time) model.Inventory {
	return Update(model.Inventory{
		ID:        id,
		ProductID: productID,
		CreatedAt: now,
	}, quantity, reserved, now)
}

// Reserve holds qty units. It fails with ErrInsufficientStock, returning inv
// unchanged, when fewer than qty units are available.
func Reserve(inv model.Inventory, qty int, now time.Time) (model.Inventory, error) {
	if inv.AvailableQuantity < qty {
		return inv, fmt.Errorf("%w: product %s has %d available, %d requested",
			ErrInsufficientStock, inv.ProductID, inv.AvailableQuantity, qty)
	}
	inv.ReservedQuantity += qty
	inv.AvailableQuantity -= qty
	inv.UpdatedAt = now
	return inv, nil
}

// Release gives back up to qty reserved units. Over-release clamps at zero.
func Release(inv model.Inventory, qty int, now time.Time) model.Inventory {
	inv.ReservedQuantity -= qty
	if inv.ReservedQuantity < 0 {
		inv.ReservedQuantity = 0
	}
	inv.AvailableQuantity = inv.Quantity - inv.ReservedQuantity
	inv.UpdatedAt = now
	return inv
}

// Update overwrites both counters. Callers validate the inputs.
func Update(inv model.Inventory, quantity, reserved int, now time.Time) model.Inventory {
	inv.Quantity = quantity
	inv.ReservedQuantity = reserved
	inv.AvailableQuantity = quantity - reserved
	inv.UpdatedAt = now
	return inv
}

// CheckInvariant returns ErrInvariantViolation when the counters disagree.
func CheckInvariant(inv model.Inventory) error {
	if inv.ReservedQuantity < 0 || inv.ReservedQuantity > inv.Quantity ||
		inv.AvailableQuantity != inv.Quantity-inv.ReservedQuantity {
		return fmt.Errorf("%w: product %s quantity=%d reserved=%d available=%d", ErrInvariantViolation,
			inv.ProductID, inv.Quantity, inv.ReservedQuantity, inv.AvailableQuantity)
	}
	return nil
}

// Reconcile returns inv with reserved clamped into [0, quantity] and
// available recomputed. It reports whether anything had to change, which
// happens when a row was written by competing fast-path writers.
func Reconcile(inv model.Inventory) (model.Inventory, bool) {
	if CheckInvariant(inv) == nil {
		return inv, false
	}
	if inv.Quantity < 0 {
		inv.Quantity = 0
	}
	if inv.ReservedQuantity < 0 {
		inv.ReservedQuantity = 0
	}
	if inv.ReservedQuantity > inv.Quantity {
		inv.ReservedQuantity = inv.Quantity
	}
	inv.AvailableQuantity = inv.Quantity - inv.ReservedQuantity
	return inv, true
}
