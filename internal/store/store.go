// Package store owns persistence for the platform's core entities. The Store
// contract has two implementations, a durable Postgres backend and an
// in-memory backend, composed behind the Failover facade.
package store

import (
	"context"
	"errors"

	"chowline/internal/model"
)

// ErrNotFound signals a missing row. It is a data error: the failover facade
// never treats it as a connectivity failure.
var ErrNotFound = errors.New("not found")

// ErrDuplicateExternalOrder signals the (tenant, platform, external order id)
// idempotency key already exists. Webhook replays hit this instead of
// creating a second order.
var ErrDuplicateExternalOrder = errors.New("external order already exists")

// ErrDuplicateSlug signals a tenant slug collision.
var ErrDuplicateSlug = errors.New("tenant slug already exists")

// ErrDuplicateEmail signals a user email collision.
var ErrDuplicateEmail = errors.New("user email already exists")

// OrderBundle is the single multi-entity write in the system. Either the
// order, its items, its payment, and its commission all persist, or none do.
type OrderBundle struct {
	Order      *model.Order
	Items      []model.OrderItem
	Payment    *model.Payment
	Commission *model.Commission
}

// UserFilter narrows ListUsers; zero values mean "any".
type UserFilter struct {
	Role     model.Role
	TenantID string
}

// OrderFilter narrows ListOrders; zero values mean "any".
type OrderFilter struct {
	TenantID   string
	CustomerID string
	DriverID   string
	Status     model.OrderStatus
}

// ProductFilter narrows ListProducts; zero values mean "any".
type ProductFilter struct {
	TenantID      string
	CategoryID    string
	AvailableOnly bool
}

// Store is the persistence contract shared by both backends.
type Store interface {
	CreateTenant(ctx context.Context, t *model.Tenant) error
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error)
	ListActiveTenants(ctx context.Context) ([]model.Tenant, error)
	UpdateTenant(ctx context.Context, t *model.Tenant) error

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]model.User, error)

	UpsertDriverProfile(ctx context.Context, p *model.DriverProfile) error
	GetDriverProfile(ctx context.Context, userID string) (*model.DriverProfile, error)
	ListAvailableDrivers(ctx context.Context) ([]model.DriverProfile, error)
	UpdateDriverLocation(ctx context.Context, userID string, lat, lng float64) error
	UpdateDriverStatus(ctx context.Context, userID string, status model.DriverStatus) error

	CreateCategory(ctx context.Context, c *model.Category) error
	ListCategories(ctx context.Context, tenantID string) ([]model.Category, error)
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error

	CreateOrderBundle(ctx context.Context, b OrderBundle) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	GetOrderByExternalID(ctx context.Context, tenantID string, platform model.Platform, externalID string) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
	AssignOrderDriver(ctx context.Context, orderID, driverID string) error
	ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)

	GetPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error
	UpdatePaymentAndOrderStatus(ctx context.Context, paymentID string, ps model.PaymentStatus, orderID string, os model.OrderStatus) error

	GetCommissionByOrder(ctx context.Context, orderID string) (*model.Commission, error)
	ListUnpaidCommissions(ctx context.Context, tenantID string) ([]model.Commission, error)
	MarkCommissionPaid(ctx context.Context, id string) error

	CreateAssignment(ctx context.Context, a *model.DriverAssignment) error
	ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.DriverAssignment, error)
	ListAssignmentsByDriver(ctx context.Context, driverID string) ([]model.DriverAssignment, error)
	RespondAssignment(ctx context.Context, id string, status model.AssignmentStatus) error
}
