package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

// MemoryRepository keeps ledgers in process. Every call waits for Latency
// first, which lets callers reproduce a slow store.
type MemoryRepository struct {
	Latency time.Duration

	mu        sync.RWMutex
	ledgers   map[string]model.Inventory
	movements []model.InventoryMovement
	writes    int
}

func NewMemoryRepository(latency time.Duration) *MemoryRepository {
	return &MemoryRepository{
		Latency: latency,
		ledgers: make(map[string]model.Inventory),
	}
}

func (r *MemoryRepository) wait(ctx context.Context) error {
	if r.Latency <= 0 {
		return nil
	}
	t := time.NewTimer(r.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *MemoryRepository) GetByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	inv, ok := r.ledgers[productID]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.Inventory, int, error) {
	if err := r.wait(ctx); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	items := []model.Inventory{}
	for _, inv := range r.ledgers {
		if f.ProductID != "" && inv.ProductID != f.ProductID {
			continue
		}
		if f.LowStock && inv.AvailableQuantity > f.LowStockThreshold {
			continue
		}
		items = append(items, inv)
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *MemoryRepository) Create(ctx context.Context, inv *model.Inventory) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ledgers[inv.ProductID]; ok {
		return fmt.Errorf("product %s: %w", inv.ProductID, inventory.ErrAlreadyExists)
	}
	r.ledgers[inv.ProductID] = *inv
	r.writes++
	return nil
}

func (r *MemoryRepository) Save(ctx context.Context, inv *model.Inventory) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(inv)
}

func (r *MemoryRepository) save(inv *model.Inventory) error {
	cur, ok := r.ledgers[inv.ProductID]
	if !ok {
		return fmt.Errorf("product %s: %w", inv.ProductID, inventory.ErrNotFound)
	}
	next := *inv
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	r.ledgers[inv.ProductID] = next
	r.writes++
	return nil
}

func (r *MemoryRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	if err := r.wait(ctx); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	items := []model.InventoryMovement{}
	for _, m := range r.movements {
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.MovementType != "" && m.MovementType != f.MovementType {
			continue
		}
		if f.Algorithm != "" && m.Algorithm != f.Algorithm {
			continue
		}
		if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
			continue
		}
		items = append(items, m)
	}
	r.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *MemoryRepository) SaveWithMovement(ctx context.Context, inv *model.Inventory, movement *model.InventoryMovement) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.save(inv); err != nil {
		return err
	}
	r.movements = append(r.movements, *movement)
	return nil
}

// Writes counts successful ledger writes, duplicates included.
func (r *MemoryRepository) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

func paginate[T any](items []T, p, size int) []T {
	if size <= 0 {
		return items
	}
	if p < 1 {
		p = 1
	}
	start := (p - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
