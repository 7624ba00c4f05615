package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"chowline/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
	}

	return db, mock, cleanup
}

func TestPostgresStore_InitSchema(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	for _, fragment := range []string{
		"CREATE TABLE IF NOT EXISTS tenants",
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE TABLE IF NOT EXISTS driver_profiles",
		"CREATE TABLE IF NOT EXISTS categories",
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS orders_external_ref",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE TABLE IF NOT EXISTS payments",
		"CREATE TABLE IF NOT EXISTS commissions",
		"CREATE TABLE IF NOT EXISTS driver_assignments",
	} {
		mock.ExpectExec(fragment).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectClose()

	if _, err := NewPostgresStoreWithSchema(context.Background(), db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
}

func pgBundle() OrderBundle {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	platform := model.PlatformIfood
	external := "IF-42"
	order := &model.Order{
		ID: "o-1", TenantID: "t-1", CustomerName: "Ana", CustomerPhone: "+55",
		Address: "Rua A", Status: model.OrderConfirmed,
		SubtotalMinor: 4090, DeliveryFee: 500, TotalMinor: 4590,
		PaymentMethod: "platform", DeliveryType: model.DeliveryTypeDelivery,
		ExternalPlatform: &platform, ExternalOrderID: &external,
		CreatedAt: now, UpdatedAt: now,
	}
	return OrderBundle{
		Order: order,
		Items: []model.OrderItem{
			{ID: "i-1", OrderID: "o-1", Name: "Pizza", PriceMinor: 4090, Quantity: 1},
		},
		Payment: &model.Payment{
			ID: "p-1", OrderID: "o-1", AmountMinor: 4590, Status: model.PaymentPending,
			CreatedAt: now, UpdatedAt: now,
		},
		Commission: &model.Commission{
			ID: "c-1", TenantID: "t-1", OrderID: "o-1", OrderTotal: 4590,
			CommissionBP: 1000, AmountMinor: 459, CreatedAt: now,
		},
	}
}

func TestPostgresStore_CreateOrderBundle_Commits(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO commissions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	s := NewPostgresStore(db)
	if err := s.CreateOrderBundle(context.Background(), pgBundle()); err != nil {
		t.Fatalf("bundle: %v", err)
	}
}

func TestPostgresStore_CreateOrderBundle_RollsBackOnItemFailure(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	boom := errors.New("item insert failed")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnError(boom)
	mock.ExpectRollback()
	mock.ExpectClose()

	s := NewPostgresStore(db)
	if err := s.CreateOrderBundle(context.Background(), pgBundle()); !errors.Is(err, boom) {
		t.Fatalf("expected item failure, got %v", err)
	}
}

func TestPostgresStore_CreateOrderBundle_DuplicateExternalRef(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_external_ref"})
	mock.ExpectRollback()
	mock.ExpectClose()

	s := NewPostgresStore(db)
	err := s.CreateOrderBundle(context.Background(), pgBundle())
	if !errors.Is(err, ErrDuplicateExternalOrder) {
		t.Fatalf("expected ErrDuplicateExternalOrder, got %v", err)
	}
}

func TestPostgresStore_UpdatePaymentAndOrderStatus_OneTransaction(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs("p-1", string(model.PaymentCompleted)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("o-1", string(model.OrderConfirmed)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	s := NewPostgresStore(db)
	err := s.UpdatePaymentAndOrderStatus(context.Background(), "p-1", model.PaymentCompleted, "o-1", model.OrderConfirmed)
	if err != nil {
		t.Fatalf("coupled update: %v", err)
	}
}

func TestPostgresStore_UpdatePaymentAndOrderStatus_MissingOrderRollsBack(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE orders SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectClose()

	s := NewPostgresStore(db)
	err := s.UpdatePaymentAndOrderStatus(context.Background(), "p-1", model.PaymentCompleted, "missing", model.OrderConfirmed)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_UpdateOrderStatus_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectExec("UPDATE orders SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	s := NewPostgresStore(db)
	if err := s.UpdateOrderStatus(context.Background(), "missing", model.OrderReady); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_GetOrderByExternalID_NotFound(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	mock.ExpectQuery("SELECT (.+) FROM orders").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectClose()

	s := NewPostgresStore(db)
	_, err := s.GetOrderByExternalID(context.Background(), "t-1", model.PlatformIfood, "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_GetPaymentByOrder_ScansRow(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	t.Cleanup(cleanup)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "order_id", "external_intent", "amount_minor", "status", "created_at", "updated_at"}).
		AddRow("p-1", "o-1", "pi_123", int64(4590), "pending", now, now)
	mock.ExpectQuery("SELECT (.+) FROM payments").
		WithArgs("o-1").
		WillReturnRows(rows)
	mock.ExpectClose()

	s := NewPostgresStore(db)
	p, err := s.GetPaymentByOrder(context.Background(), "o-1")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.ID != "p-1" || p.AmountMinor != 4590 || p.Status != model.PaymentPending {
		t.Fatalf("unexpected payment: %+v", p)
	}
}
