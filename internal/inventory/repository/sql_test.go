package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupMockDB(t *testing.T, driver string) (*SQLRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewSQLRepository(sqlx.NewDb(db, driver)), mock
}

func inventoryRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "product_id", "quantity", "reserved_quantity", "available_quantity", "created_at", "updated_at"})
}

func TestGetByProduct(t *testing.T) {
	repo, mock := setupMockDB(t, "pgx")

	mock.ExpectQuery(regexp.QuoteMeta("FROM inventory WHERE product_id = $1")).
		WithArgs("p-1").
		WillReturnRows(inventoryRows().AddRow("inv-1", "p-1", 10, 3, 7, fixedTime, fixedTime))

	inv, err := repo.GetByProduct(context.Background(), "p-1")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.Equal(t, 10, inv.Quantity)
	assert.Equal(t, 3, inv.ReservedQuantity)
	assert.Equal(t, 7, inv.AvailableQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByProduct_Absent(t *testing.T) {
	repo, mock := setupMockDB(t, "pgx")

	mock.ExpectQuery(regexp.QuoteMeta("FROM inventory WHERE product_id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	inv, err := repo.GetByProduct(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, inv)
}

func TestGetByProduct_MySQLPlaceholders(t *testing.T) {
	repo, mock := setupMockDB(t, "mysql")

	mock.ExpectQuery(regexp.QuoteMeta("FROM inventory WHERE product_id = ?")).
		WithArgs("p-1").
		WillReturnRows(inventoryRows().AddRow("inv-1", "p-1", 1, 0, 1, fixedTime, fixedTime))

	_, err := repo.GetByProduct(context.Background(), "p-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate(t *testing.T) {
	inv := &model.Inventory{ID: "inv-1", ProductID: "p-1", Quantity: 5, AvailableQuantity: 5, CreatedAt: fixedTime, UpdatedAt: fixedTime}

	t.Run("postgres inserts", func(t *testing.T) {
		repo, mock := setupMockDB(t, "pgx")
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (product_id) DO NOTHING")).
			WithArgs("inv-1", "p-1", 5, 0, 5, fixedTime, fixedTime).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(context.Background(), inv))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("postgres conflict", func(t *testing.T) {
		repo, mock := setupMockDB(t, "pgx")
		mock.ExpectExec("INSERT INTO inventory").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Create(context.Background(), inv)
		assert.ErrorIs(t, err, inventory.ErrAlreadyExists)
	})

	t.Run("mysql ignores duplicates", func(t *testing.T) {
		repo, mock := setupMockDB(t, "mysql")
		mock.ExpectExec("INSERT IGNORE INTO inventory").WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Create(context.Background(), inv)
		assert.ErrorIs(t, err, inventory.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSave_WritesAvailableAsGiven(t *testing.T) {
	repo, mock := setupMockDB(t, "pgx")

	// reserved was bumped without recomputing available
	inv := &model.Inventory{ProductID: "p-1", Quantity: 10, ReservedQuantity: 4, AvailableQuantity: 7, UpdatedAt: fixedTime}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory SET")).
		WithArgs(10, 4, 7, fixedTime, "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), inv))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_MissingRow(t *testing.T) {
	repo, mock := setupMockDB(t, "pgx")
	mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory SET")).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Save(context.Background(), &model.Inventory{ProductID: "ghost"})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestSaveWithMovement(t *testing.T) {
	inv := &model.Inventory{ProductID: "p-1", Quantity: 10, ReservedQuantity: 3, AvailableQuantity: 7, UpdatedAt: fixedTime}
	mv := &model.InventoryMovement{
		ID: "mv-1", ProductID: "p-1", MovementType: "reserve", Algorithm: "lock_based",
		QuantityChange: 3, QuantityBefore: 10, QuantityAfter: 10, ReservedBefore: 0, ReservedAfter: 3, CreatedAt: fixedTime,
	}

	t.Run("commits both writes", func(t *testing.T) {
		repo, mock := setupMockDB(t, "pgx")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory SET")).
			WithArgs(10, 3, 7, fixedTime, "p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inventory_movements")).
			WithArgs("mv-1", "p-1", "reserve", "lock_based", 3, 10, 10, 0, 3, fixedTime).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.SaveWithMovement(context.Background(), inv, mv))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when the movement fails", func(t *testing.T) {
		repo, mock := setupMockDB(t, "pgx")
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE inventory SET")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO inventory_movements")).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := repo.SaveWithMovement(context.Background(), inv, mv)
		assert.ErrorContains(t, err, "failed to log movement")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindAll(t *testing.T) {
	repo, mock := setupMockDB(t, "pgx")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM inventory WHERE product_id = $1 AND available_quantity <= $2")).
		WithArgs("p-1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE product_id = $1 AND available_quantity <= $2 ORDER BY product_id LIMIT 10 OFFSET 10")).
		WithArgs("p-1", 5).
		WillReturnRows(inventoryRows().AddRow("inv-1", "p-1", 5, 2, 3, fixedTime, fixedTime))

	items, total, err := repo.FindAll(context.Background(), &dto.InventoryFilters{
		ProductID: "p-1", LowStock: true, LowStockThreshold: 5, Page: 2, PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].AvailableQuantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListMovements(t *testing.T) {
	repo, mock := setupMockDB(t, "pgx")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM inventory_movements WHERE product_id = $1 AND movement_type = $2")).
		WithArgs("p-1", "release").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("p-1", "release").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "product_id", "movement_type", "algorithm", "quantity_change",
			"quantity_before", "quantity_after", "reserved_before", "reserved_after", "created_at",
		}).AddRow("mv-1", "p-1", "release", "fast_path", 2, 10, 10, 5, 3, fixedTime))

	items, total, err := repo.ListMovements(context.Background(), &dto.MovementFilters{ProductID: "p-1", MovementType: "release"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "fast_path", items[0].Algorithm)
	assert.Equal(t, 3, items[0].ReservedAfter)
}
