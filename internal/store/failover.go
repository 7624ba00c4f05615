package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"log"
	"net"
	"sync/atomic"
	"syscall"

	"chowline/internal/model"
)

// Failover routes every operation to the primary backend until a
// connectivity-class error occurs, then latches onto the fallback for the
// remaining process lifetime. There is deliberately no path back to the
// primary without a restart: the latch is a one-way transition, not a
// circuit breaker with recovery probing.
type Failover struct {
	primary  Store
	fallback Store
	degraded atomic.Bool
	warned   atomic.Bool
	logf     func(format string, args ...any)
}

// NewFailover composes the two backends. logf defaults to log.Printf.
func NewFailover(primary, fallback Store, logf func(format string, args ...any)) *Failover {
	if logf == nil {
		logf = log.Printf
	}
	return &Failover{primary: primary, fallback: fallback, logf: logf}
}

// Degraded reports whether the facade has latched onto the fallback backend.
func (f *Failover) Degraded() bool {
	return f.degraded.Load()
}

// isConnectivityError classifies errors that mean "the durable backend is
// unreachable". Data and constraint errors (not-found rows, unique
// violations) must never land here: they propagate to the caller unchanged.
func isConnectivityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH,
			syscall.ENETUNREACH, syscall.ETIMEDOUT, syscall.EPIPE:
			return true
		}
	}
	return false
}

// run executes fn against the current backend, latching onto the fallback on
// a connectivity failure and replaying the call there.
func (f *Failover) run(op string, fn func(Store) error) error {
	if f.degraded.Load() {
		return fn(f.fallback)
	}
	err := fn(f.primary)
	if err == nil || !isConnectivityError(err) {
		return err
	}
	f.latch(op, err)
	return fn(f.fallback)
}

func (f *Failover) latch(op string, err error) {
	f.degraded.Store(true)
	if f.warned.CompareAndSwap(false, true) {
		f.logf("storage: durable backend unreachable during %s, switching to memory store for process lifetime: %v", op, err)
	}
}

// do is run for operations that return a value.
func do[T any](f *Failover, op string, fn func(Store) (T, error)) (T, error) {
	if f.degraded.Load() {
		return fn(f.fallback)
	}
	out, err := fn(f.primary)
	if err == nil || !isConnectivityError(err) {
		return out, err
	}
	f.latch(op, err)
	return fn(f.fallback)
}

func (f *Failover) CreateTenant(ctx context.Context, t *model.Tenant) error {
	return f.run("CreateTenant", func(s Store) error { return s.CreateTenant(ctx, t) })
}

func (f *Failover) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return do(f, "GetTenant", func(s Store) (*model.Tenant, error) { return s.GetTenant(ctx, id) })
}

func (f *Failover) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	return do(f, "GetTenantBySlug", func(s Store) (*model.Tenant, error) { return s.GetTenantBySlug(ctx, slug) })
}

func (f *Failover) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	return do(f, "ListActiveTenants", func(s Store) ([]model.Tenant, error) { return s.ListActiveTenants(ctx) })
}

func (f *Failover) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	return f.run("UpdateTenant", func(s Store) error { return s.UpdateTenant(ctx, t) })
}

func (f *Failover) CreateUser(ctx context.Context, u *model.User) error {
	return f.run("CreateUser", func(s Store) error { return s.CreateUser(ctx, u) })
}

func (f *Failover) GetUser(ctx context.Context, id string) (*model.User, error) {
	return do(f, "GetUser", func(s Store) (*model.User, error) { return s.GetUser(ctx, id) })
}

func (f *Failover) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return do(f, "GetUserByEmail", func(s Store) (*model.User, error) { return s.GetUserByEmail(ctx, email) })
}

func (f *Failover) ListUsers(ctx context.Context, filter UserFilter) ([]model.User, error) {
	return do(f, "ListUsers", func(s Store) ([]model.User, error) { return s.ListUsers(ctx, filter) })
}

func (f *Failover) UpsertDriverProfile(ctx context.Context, p *model.DriverProfile) error {
	return f.run("UpsertDriverProfile", func(s Store) error { return s.UpsertDriverProfile(ctx, p) })
}

func (f *Failover) GetDriverProfile(ctx context.Context, userID string) (*model.DriverProfile, error) {
	return do(f, "GetDriverProfile", func(s Store) (*model.DriverProfile, error) { return s.GetDriverProfile(ctx, userID) })
}

func (f *Failover) ListAvailableDrivers(ctx context.Context) ([]model.DriverProfile, error) {
	return do(f, "ListAvailableDrivers", func(s Store) ([]model.DriverProfile, error) { return s.ListAvailableDrivers(ctx) })
}

func (f *Failover) UpdateDriverLocation(ctx context.Context, userID string, lat, lng float64) error {
	return f.run("UpdateDriverLocation", func(s Store) error { return s.UpdateDriverLocation(ctx, userID, lat, lng) })
}

func (f *Failover) UpdateDriverStatus(ctx context.Context, userID string, status model.DriverStatus) error {
	return f.run("UpdateDriverStatus", func(s Store) error { return s.UpdateDriverStatus(ctx, userID, status) })
}

func (f *Failover) CreateCategory(ctx context.Context, c *model.Category) error {
	return f.run("CreateCategory", func(s Store) error { return s.CreateCategory(ctx, c) })
}

func (f *Failover) ListCategories(ctx context.Context, tenantID string) ([]model.Category, error) {
	return do(f, "ListCategories", func(s Store) ([]model.Category, error) { return s.ListCategories(ctx, tenantID) })
}

func (f *Failover) CreateProduct(ctx context.Context, p *model.Product) error {
	return f.run("CreateProduct", func(s Store) error { return s.CreateProduct(ctx, p) })
}

func (f *Failover) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return do(f, "GetProduct", func(s Store) (*model.Product, error) { return s.GetProduct(ctx, id) })
}

func (f *Failover) ListProducts(ctx context.Context, filter ProductFilter) ([]model.Product, error) {
	return do(f, "ListProducts", func(s Store) ([]model.Product, error) { return s.ListProducts(ctx, filter) })
}

func (f *Failover) UpdateProduct(ctx context.Context, p *model.Product) error {
	return f.run("UpdateProduct", func(s Store) error { return s.UpdateProduct(ctx, p) })
}

func (f *Failover) CreateOrderBundle(ctx context.Context, b OrderBundle) error {
	return f.run("CreateOrderBundle", func(s Store) error { return s.CreateOrderBundle(ctx, b) })
}

func (f *Failover) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return do(f, "GetOrder", func(s Store) (*model.Order, error) { return s.GetOrder(ctx, id) })
}

func (f *Failover) GetOrderByExternalID(ctx context.Context, tenantID string, platform model.Platform, externalID string) (*model.Order, error) {
	return do(f, "GetOrderByExternalID", func(s Store) (*model.Order, error) {
		return s.GetOrderByExternalID(ctx, tenantID, platform, externalID)
	})
}

func (f *Failover) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	return f.run("UpdateOrderStatus", func(s Store) error { return s.UpdateOrderStatus(ctx, id, status) })
}

func (f *Failover) AssignOrderDriver(ctx context.Context, orderID, driverID string) error {
	return f.run("AssignOrderDriver", func(s Store) error { return s.AssignOrderDriver(ctx, orderID, driverID) })
}

func (f *Failover) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	return do(f, "ListOrders", func(s Store) ([]model.Order, error) { return s.ListOrders(ctx, filter) })
}

func (f *Failover) ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	return do(f, "ListOrderItems", func(s Store) ([]model.OrderItem, error) { return s.ListOrderItems(ctx, orderID) })
}

func (f *Failover) GetPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	return do(f, "GetPaymentByOrder", func(s Store) (*model.Payment, error) { return s.GetPaymentByOrder(ctx, orderID) })
}

func (f *Failover) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	return f.run("UpdatePaymentStatus", func(s Store) error { return s.UpdatePaymentStatus(ctx, id, status) })
}

func (f *Failover) UpdatePaymentAndOrderStatus(ctx context.Context, paymentID string, ps model.PaymentStatus, orderID string, os model.OrderStatus) error {
	return f.run("UpdatePaymentAndOrderStatus", func(s Store) error {
		return s.UpdatePaymentAndOrderStatus(ctx, paymentID, ps, orderID, os)
	})
}

func (f *Failover) GetCommissionByOrder(ctx context.Context, orderID string) (*model.Commission, error) {
	return do(f, "GetCommissionByOrder", func(s Store) (*model.Commission, error) { return s.GetCommissionByOrder(ctx, orderID) })
}

func (f *Failover) ListUnpaidCommissions(ctx context.Context, tenantID string) ([]model.Commission, error) {
	return do(f, "ListUnpaidCommissions", func(s Store) ([]model.Commission, error) { return s.ListUnpaidCommissions(ctx, tenantID) })
}

func (f *Failover) MarkCommissionPaid(ctx context.Context, id string) error {
	return f.run("MarkCommissionPaid", func(s Store) error { return s.MarkCommissionPaid(ctx, id) })
}

func (f *Failover) CreateAssignment(ctx context.Context, a *model.DriverAssignment) error {
	return f.run("CreateAssignment", func(s Store) error { return s.CreateAssignment(ctx, a) })
}

func (f *Failover) ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.DriverAssignment, error) {
	return do(f, "ListAssignmentsByOrder", func(s Store) ([]model.DriverAssignment, error) { return s.ListAssignmentsByOrder(ctx, orderID) })
}

func (f *Failover) ListAssignmentsByDriver(ctx context.Context, driverID string) ([]model.DriverAssignment, error) {
	return do(f, "ListAssignmentsByDriver", func(s Store) ([]model.DriverAssignment, error) { return s.ListAssignmentsByDriver(ctx, driverID) })
}

func (f *Failover) RespondAssignment(ctx context.Context, id string, status model.AssignmentStatus) error {
	return f.run("RespondAssignment", func(s Store) error { return s.RespondAssignment(ctx, id, status) })
}

var _ Store = (*Failover)(nil)
