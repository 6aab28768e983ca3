package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// available_quantity is stored, not generated.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
        id VARCHAR(36) PRIMARY KEY,
        product_id VARCHAR(128) NOT NULL UNIQUE,
        quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
        reserved_quantity INTEGER NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
        available_quantity INTEGER NOT NULL DEFAULT 0,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
        id VARCHAR(36) PRIMARY KEY,
        product_id VARCHAR(128) NOT NULL,
        movement_type VARCHAR(16) NOT NULL,
        algorithm VARCHAR(16) NOT NULL,
        quantity_change INTEGER NOT NULL,
        quantity_before INTEGER NOT NULL,
        quantity_after INTEGER NOT NULL,
        reserved_before INTEGER NOT NULL,
        reserved_after INTEGER NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_movements_product ON inventory_movements (product_id, created_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS inventory (
        id VARCHAR(36) PRIMARY KEY,
        product_id VARCHAR(128) NOT NULL UNIQUE,
        quantity INT NOT NULL DEFAULT 0,
        reserved_quantity INT NOT NULL DEFAULT 0,
        available_quantity INT NOT NULL DEFAULT 0,
        created_at DATETIME(6) NOT NULL,
        updated_at DATETIME(6) NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
        id VARCHAR(36) PRIMARY KEY,
        product_id VARCHAR(128) NOT NULL,
        movement_type VARCHAR(16) NOT NULL,
        algorithm VARCHAR(16) NOT NULL,
        quantity_change INT NOT NULL,
        quantity_before INT NOT NULL,
        quantity_after INT NOT NULL,
        reserved_before INT NOT NULL,
        reserved_after INT NOT NULL,
        created_at DATETIME(6) NOT NULL,
        INDEX idx_inventory_movements_product (product_id, created_at)
    )`,
}

// EnsureSchema creates the inventory tables when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	statements := postgresSchema
	if db.DriverName() == DriverMySQL {
		statements = mysqlSchema
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
