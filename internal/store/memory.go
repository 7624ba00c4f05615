package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"chowline/internal/model"
)

// MemoryStore is the degraded-mode Store backend. It holds everything in
// mutex-guarded maps and survives only for the life of the process.
type MemoryStore struct {
	mu sync.RWMutex

	tenants     map[string]model.Tenant
	users       map[string]model.User
	drivers     map[string]model.DriverProfile
	categories  map[string]model.Category
	products    map[string]model.Product
	orders      map[string]model.Order
	items       map[string][]model.OrderItem
	payments    map[string]model.Payment
	commissions map[string]model.Commission
	assignments map[string]model.DriverAssignment

	// itemInsertHook lets tests inject a failure partway through
	// CreateOrderBundle to exercise the rollback path.
	itemInsertHook func(model.OrderItem) error
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:     make(map[string]model.Tenant),
		users:       make(map[string]model.User),
		drivers:     make(map[string]model.DriverProfile),
		categories:  make(map[string]model.Category),
		products:    make(map[string]model.Product),
		orders:      make(map[string]model.Order),
		items:       make(map[string][]model.OrderItem),
		payments:    make(map[string]model.Payment),
		commissions: make(map[string]model.Commission),
		assignments: make(map[string]model.DriverAssignment),
	}
}

// --- tenants ---

func (m *MemoryStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tenants {
		if existing.Slug == t.Slug {
			return ErrDuplicateSlug
		}
	}
	m.tenants[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.Slug == slug {
			out := t
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Tenant
	for _, t := range m.tenants {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tenants[t.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range m.tenants {
		if id != t.ID && existing.Slug == t.Slug {
			return ErrDuplicateSlug
		}
	}
	m.tenants[t.ID] = *t
	return nil
}

// --- users ---

func (m *MemoryStore) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.User
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.TenantID != "" && (u.TenantID == nil || *u.TenantID != f.TenantID) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- driver profiles ---

func (m *MemoryStore) UpsertDriverProfile(ctx context.Context, p *model.DriverProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[p.UserID] = *p
	return nil
}

func (m *MemoryStore) GetDriverProfile(ctx context.Context, userID string) (*model.DriverProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.drivers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) ListAvailableDrivers(ctx context.Context) ([]model.DriverProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.DriverProfile
	for _, p := range m.drivers {
		if p.Status == model.DriverAvailable && p.Lat != nil && p.Lng != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateDriverLocation(ctx context.Context, userID string, lat, lng float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.drivers[userID]
	if !ok {
		return ErrNotFound
	}
	p.Lat, p.Lng = &lat, &lng
	m.drivers[userID] = p
	return nil
}

func (m *MemoryStore) UpdateDriverStatus(ctx context.Context, userID string, status model.DriverStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.drivers[userID]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	m.drivers[userID] = p
	return nil
}

// --- catalog ---

func (m *MemoryStore) CreateCategory(ctx context.Context, c *model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = *c
	return nil
}

func (m *MemoryStore) ListCategories(ctx context.Context, tenantID string) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Category
	for _, c := range m.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MemoryStore) CreateProduct(ctx context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Product
	for _, p := range m.products {
		if f.TenantID != "" && p.TenantID != f.TenantID {
			continue
		}
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if f.AvailableOnly && !p.Available {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return ErrNotFound
	}
	m.products[p.ID] = *p
	return nil
}

// --- orders ---

// CreateOrderBundle applies the writes sequentially under one lock and rolls
// back the rows already written if any step fails, so a partial bundle never
// remains visible.
func (m *MemoryStore) CreateOrderBundle(ctx context.Context, b OrderBundle) error {
	if b.Order == nil {
		return errors.New("order bundle requires an order")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	o := b.Order
	if o.ExternalOrderID != nil && o.ExternalPlatform != nil {
		for _, existing := range m.orders {
			if existing.TenantID == o.TenantID &&
				existing.ExternalPlatform != nil && *existing.ExternalPlatform == *o.ExternalPlatform &&
				existing.ExternalOrderID != nil && *existing.ExternalOrderID == *o.ExternalOrderID {
				return ErrDuplicateExternalOrder
			}
		}
	}
	if _, exists := m.orders[o.ID]; exists {
		return ErrDuplicateExternalOrder
	}

	m.orders[o.ID] = *o
	undo := func() {
		delete(m.orders, o.ID)
		delete(m.items, o.ID)
		if b.Payment != nil {
			delete(m.payments, b.Payment.ID)
		}
		if b.Commission != nil {
			delete(m.commissions, b.Commission.ID)
		}
	}

	for _, it := range b.Items {
		if m.itemInsertHook != nil {
			if err := m.itemInsertHook(it); err != nil {
				undo()
				return err
			}
		}
		if it.Quantity <= 0 {
			undo()
			return errors.New("order item quantity must be positive")
		}
		m.items[o.ID] = append(m.items[o.ID], it)
	}

	if b.Payment != nil {
		m.payments[b.Payment.ID] = *b.Payment
	}
	if b.Commission != nil {
		m.commissions[b.Commission.ID] = *b.Commission
	}
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (m *MemoryStore) GetOrderByExternalID(ctx context.Context, tenantID string, platform model.Platform, externalID string) (*model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.TenantID == tenantID &&
			o.ExternalPlatform != nil && *o.ExternalPlatform == platform &&
			o.ExternalOrderID != nil && *o.ExternalOrderID == externalID {
			out := o
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	m.orders[id] = o
	return nil
}

func (m *MemoryStore) AssignOrderDriver(ctx context.Context, orderID, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.DriverID = &driverID
	o.UpdatedAt = time.Now().UTC()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Order
	for _, o := range m.orders {
		if f.TenantID != "" && o.TenantID != f.TenantID {
			continue
		}
		if f.CustomerID != "" && (o.CustomerID == nil || *o.CustomerID != f.CustomerID) {
			continue
		}
		if f.DriverID != "" && (o.DriverID == nil || *o.DriverID != f.DriverID) {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.items[orderID]
	out := make([]model.OrderItem, len(items))
	copy(out, items)
	return out, nil
}

// --- payments ---

func (m *MemoryStore) GetPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			out := p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	m.payments[id] = p
	return nil
}

// UpdatePaymentAndOrderStatus applies payment-then-order under one lock and
// undoes the payment write if the order is missing, so callers observe the
// two updates together or not at all.
func (m *MemoryStore) UpdatePaymentAndOrderStatus(ctx context.Context, paymentID string, ps model.PaymentStatus, orderID string, os model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[paymentID]
	if !ok {
		return ErrNotFound
	}
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	p.Status = ps
	p.UpdatedAt = now
	o.Status = os
	o.UpdatedAt = now
	m.payments[paymentID] = p
	m.orders[orderID] = o
	return nil
}

// --- commissions ---

func (m *MemoryStore) GetCommissionByOrder(ctx context.Context, orderID string) (*model.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.commissions {
		if c.OrderID == orderID {
			out := c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListUnpaidCommissions(ctx context.Context, tenantID string) ([]model.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Commission
	for _, c := range m.commissions {
		if c.Paid {
			continue
		}
		if tenantID != "" && c.TenantID != tenantID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkCommissionPaid(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commissions[id]
	if !ok {
		return ErrNotFound
	}
	c.Paid = true
	m.commissions[id] = c
	return nil
}

// --- driver assignments ---

func (m *MemoryStore) CreateAssignment(ctx context.Context, a *model.DriverAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = *a
	return nil
}

func (m *MemoryStore) ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.DriverAssignment, error) {
	return m.listAssignments(func(a model.DriverAssignment) bool { return a.OrderID == orderID })
}

func (m *MemoryStore) ListAssignmentsByDriver(ctx context.Context, driverID string) ([]model.DriverAssignment, error) {
	return m.listAssignments(func(a model.DriverAssignment) bool { return a.DriverID == driverID })
}

func (m *MemoryStore) listAssignments(match func(model.DriverAssignment) bool) ([]model.DriverAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.DriverAssignment
	for _, a := range m.assignments {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotifiedAt.Before(out[j].NotifiedAt) })
	return out, nil
}

func (m *MemoryStore) RespondAssignment(ctx context.Context, id string, status model.AssignmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Status != model.AssignmentPending {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = status
	a.RespondedAt = &now
	m.assignments[id] = a
	return nil
}

var _ Store = (*MemoryStore)(nil)
