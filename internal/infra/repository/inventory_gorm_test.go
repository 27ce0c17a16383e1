package repository

import (
	"context"
	"errors"
	"testing"

	repo "storefront/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestInventoryGorm_DecreaseIsConditional(t *testing.T) {
	gdb, mock := setupSQLMock(t)
	r := NewInventoryGormRepository(gdb)

	mock.ExpectExec(`UPDATE "products" SET "stock"=CASE WHEN unlimited THEN stock ELSE stock - .* WHERE .*stock >= `).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := r.DecreaseStockIfEnough(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInventoryGorm_DecreaseZeroRows(t *testing.T) {
	gdb, mock := setupSQLMock(t)
	r := NewInventoryGormRepository(gdb)

	mock.ExpectExec(`UPDATE "products"`).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := r.DecreaseStockIfEnough(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInventoryGorm_DecreaseError(t *testing.T) {
	gdb, mock := setupSQLMock(t)
	r := NewInventoryGormRepository(gdb)

	mock.ExpectExec(`UPDATE "products"`).WillReturnError(errors.New("conn reset"))

	ok, err := r.DecreaseStockIfEnough(context.Background(), 1, 5)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestInventoryGorm_IncreaseMissingProduct(t *testing.T) {
	gdb, mock := setupSQLMock(t)
	r := NewInventoryGormRepository(gdb)

	mock.ExpectExec(`UPDATE "products" SET "stock"=CASE WHEN unlimited THEN stock ELSE stock \+ `).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := r.IncreaseStock(context.Background(), 9, 1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestInventoryGorm_AdjustWouldGoNegative(t *testing.T) {
	gdb, mock := setupSQLMock(t)
	r := NewInventoryGormRepository(gdb)

	mock.ExpectExec(`UPDATE "products"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stock"}).AddRow(1, 2))

	stock, err := r.AdjustStock(context.Background(), 1, -5)
	assert.ErrorIs(t, err, repo.ErrStockWouldGoNegative)
	assert.Equal(t, int64(2), stock)
}

func TestInventoryGorm_AdjustReturnsNewStock(t *testing.T) {
	gdb, mock := setupSQLMock(t)
	r := NewInventoryGormRepository(gdb)

	mock.ExpectExec(`UPDATE "products"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .* FROM "products"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "stock"}).AddRow(1, 8))

	stock, err := r.AdjustStock(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), stock)
}
