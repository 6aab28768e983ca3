package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
)

const (
	inventoryColumns = `id, product_id, quantity, reserved_quantity, available_quantity, created_at, updated_at`
	movementColumns  = `id, product_id, movement_type, algorithm, quantity_change, quantity_before, quantity_after, reserved_before, reserved_after, created_at`

	updateInventoryQuery = `
        UPDATE inventory SET
            quantity = :quantity,
            reserved_quantity = :reserved_quantity,
            available_quantity = :available_quantity,
            updated_at = :updated_at
        WHERE product_id = :product_id
    `
	insertMovementQuery = `
        INSERT INTO inventory_movements (
            id, product_id, movement_type, algorithm, quantity_change,
            quantity_before, quantity_after, reserved_before, reserved_after, created_at
        )
        VALUES (
            :id, :product_id, :movement_type, :algorithm, :quantity_change,
            :quantity_before, :quantity_after, :reserved_before, :reserved_after, :created_at
        )
    `
)

// SQLRepository stores ledgers in Postgres or MySQL. available_quantity is
// an ordinary column written from the ledger value, so a persisted row can
// disagree with quantity - reserved_quantity.
type SQLRepository struct {
	DB *sqlx.DB
}

func NewSQLRepository(db *sqlx.DB) *SQLRepository {
	return &SQLRepository{DB: db}
}

func (r *SQLRepository) GetByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	var inv model.Inventory
	query := r.DB.Rebind(`SELECT ` + inventoryColumns + ` FROM inventory WHERE product_id = ?`)

	err := r.DB.GetContext(ctx, &inv, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *SQLRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.Inventory, int, error) {
	conditions := []string{}
	params := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		params["product_id"] = f.ProductID
	}
	if f.LowStock {
		conditions = append(conditions, "available_quantity <= :low_stock_threshold")
		params["low_stock_threshold"] = f.LowStockThreshold
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	countQuery, args, err := r.named("SELECT count(*) FROM inventory"+whereClause, params)
	if err != nil {
		return nil, 0, err
	}
	if err := r.DB.GetContext(ctx, &count, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count inventory: %w", err)
	}

	query, args, err := r.named("SELECT "+inventoryColumns+" FROM inventory"+whereClause+" ORDER BY product_id"+page(f.Page, f.PageSize), params)
	if err != nil {
		return nil, 0, err
	}
	items := []model.Inventory{}
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list inventory: %w", err)
	}
	return items, count, nil
}

func (r *SQLRepository) Create(ctx context.Context, inv *model.Inventory) error {
	insert := `INSERT INTO inventory`
	conflict := ` ON CONFLICT (product_id) DO NOTHING`
	if r.DB.DriverName() == "mysql" {
		insert = `INSERT IGNORE INTO inventory`
		conflict = ``
	}

	query := insert + ` (` + inventoryColumns + `)
        VALUES (:id, :product_id, :quantity, :reserved_quantity, :available_quantity, :created_at, :updated_at)` + conflict

	res, err := r.DB.NamedExecContext(ctx, query, inv)
	if err != nil {
		return fmt.Errorf("failed to create inventory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", inv.ProductID, inventory.ErrAlreadyExists)
	}
	return nil
}

func (r *SQLRepository) Save(ctx context.Context, inv *model.Inventory) error {
	res, err := r.DB.NamedExecContext(ctx, updateInventoryQuery, inv)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	return expectRow(res, inv.ProductID)
}

func (r *SQLRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.InventoryMovement, int, error) {
	conditions := []string{}
	params := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		params["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		params["movement_type"] = f.MovementType
	}
	if f.Algorithm != "" {
		conditions = append(conditions, "algorithm = :algorithm")
		params["algorithm"] = f.Algorithm
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		params["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		params["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	countQuery, args, err := r.named("SELECT count(*) FROM inventory_movements"+whereClause, params)
	if err != nil {
		return nil, 0, err
	}
	if err := r.DB.GetContext(ctx, &count, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	query, args, err := r.named("SELECT "+movementColumns+" FROM inventory_movements"+whereClause+" ORDER BY created_at DESC"+page(f.Page, f.PageSize), params)
	if err != nil {
		return nil, 0, err
	}
	items := []model.InventoryMovement{}
	if err := r.DB.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list movements: %w", err)
	}
	return items, count, nil
}

func (r *SQLRepository) SaveWithMovement(ctx context.Context, inv *model.Inventory, movement *model.InventoryMovement) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, updateInventoryQuery, inv)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	if err := expectRow(res, inv.ProductID); err != nil {
		return err
	}

	if _, err := tx.NamedExecContext(ctx, insertMovementQuery, movement); err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}

	return tx.Commit()
}

// named binds :params and rebinds placeholders for the connected driver.
func (r *SQLRepository) named(query string, params map[string]interface{}) (string, []interface{}, error) {
	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, err
	}
	return r.DB.Rebind(q), args, nil
}

func expectRow(res sql.Result, productID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %s: %w", productID, inventory.ErrNotFound)
	}
	return nil
}

func page(p, size int) string {
	if size <= 0 {
		return ""
	}
	if p < 1 {
		p = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", size, (p-1)*size)
}
