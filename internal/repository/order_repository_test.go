// Package repository содержит unit тесты для OrderRepository.
package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/order-saga/internal/domain"
)

// =====================================
// Вспомогательные функции
// =====================================

// setupMockDB создаёт мок базы данных с GORM.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Ошибка создания sqlmock")

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "Ошибка инициализации GORM")

	return gormDB, mock, func() { _ = db.Close() }
}

// =====================================
// Тесты GetByID
// =====================================

func TestGetByID(t *testing.T) {
	t.Run("заказ найден с позициями", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		now := time.Now()
		mock.ExpectQuery("SELECT .* FROM `orders`").
			WithArgs(int64(42), 1).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "client_id", "status", "total_amount", "zipcode", "created_at", "updated_at"}).
				AddRow(42, 7, "Approved", 1095, "01001", now, now))
		mock.ExpectQuery("SELECT .* FROM `pieces`").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "order_id", "type", "price", "created_at"}).
				AddRow(1, 42, "A", 475, now).
				AddRow(2, 42, "B", 620, now))

		repo := NewOrderRepository(gormDB)
		order, err := repo.GetByID(context.Background(), 42)

		require.NoError(t, err)
		assert.Equal(t, int64(42), order.ID)
		assert.Equal(t, int64(7), order.ClientID)
		assert.Equal(t, domain.StatusApproved, order.Status)
		assert.Equal(t, domain.Money(1095), order.TotalAmount)
		require.Len(t, order.Pieces, 2)
		assert.Equal(t, domain.PieceTypeA, order.Pieces[0].Type)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("заказ не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectQuery("SELECT .* FROM `orders`").
			WithArgs(int64(99), 1).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "client_id", "status", "total_amount", "zipcode", "created_at", "updated_at"}))

		repo := NewOrderRepository(gormDB)
		_, err := repo.GetByID(context.Background(), 99)

		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

// =====================================
// Тесты UpdateStatus
// =====================================

func TestUpdateStatus(t *testing.T) {
	t.Run("успешное обновление", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `orders`").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		err := repo.UpdateStatus(context.Background(), 42, domain.StatusPackaged)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("заказ не найден", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `orders`").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		err := repo.UpdateStatus(context.Background(), 99, domain.StatusPackaged)

		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

// =====================================
// Тесты AcquireCancelLock
// =====================================

func TestAcquireCancelLock(t *testing.T) {
	t.Run("захват блокировки успешен", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		now := time.Now()
		// Один условный UPDATE: id + владелец + whitelist статусов
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `orders`").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		// Чтение снимка после захвата
		mock.ExpectQuery("SELECT .* FROM `orders`").
			WithArgs(int64(42), 1).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "client_id", "status", "total_amount", "zipcode", "created_at", "updated_at"}).
				AddRow(42, 7, "Cancelling", 1095, "01001", now, now))
		mock.ExpectQuery("SELECT .* FROM `pieces`").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "order_id", "type", "price", "created_at"}))

		repo := NewOrderRepository(gormDB)
		order, err := repo.AcquireCancelLock(context.Background(), 42, 7)

		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelling, order.Status)
		assert.Equal(t, domain.Money(1095), order.TotalAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("блокировка не захвачена", func(t *testing.T) {
		// RowsAffected == 0: чужой заказ, неотменяемый статус или заказ
		// уже в Cancelling. Все три случая неразличимы и равнозначны отказу.
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `orders`").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		repo := NewOrderRepository(gormDB)
		_, err := repo.AcquireCancelLock(context.Background(), 42, 8)

		assert.ErrorIs(t, err, domain.ErrCancelNotAllowed)
	})

	t.Run("ошибка БД", func(t *testing.T) {
		gormDB, mock, cleanup := setupMockDB(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `orders`").
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		repo := NewOrderRepository(gormDB)
		_, err := repo.AcquireCancelLock(context.Background(), 42, 7)

		assert.ErrorIs(t, err, sql.ErrConnDone)
	})
}
