package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"chowline/internal/model"
)

// PostgresStore is the durable Store backend.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a Store backed by Postgres.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresStoreWithSchema initializes the schema then returns the store.
func NewPostgresStoreWithSchema(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	s := NewPostgresStore(db)
	if err := s.InitSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// InitSchema creates tables if they do not exist. The unique index on
// (tenant_id, external_platform, external_order_id) is the authoritative
// guard against concurrent webhook replays; the handler's lookup-first path
// is only an optimization.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			commission_bp BIGINT NOT NULL DEFAULT 0,
			delivery_fee_minor BIGINT NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			hours JSONB NOT NULL DEFAULT '{}',
			phone TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			tenant_id TEXT REFERENCES tenants(id),
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS driver_profiles (
			user_id TEXT PRIMARY KEY REFERENCES users(id),
			vehicle_type TEXT NOT NULL DEFAULT '',
			vehicle_plate TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'offline',
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			rating DOUBLE PRECISION NOT NULL DEFAULT 5,
			total_deliveries INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			position INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			category_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price_minor BIGINT NOT NULL,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			size_prices JSONB NOT NULL DEFAULT '{}',
			combination BOOLEAN NOT NULL DEFAULT FALSE,
			max_flavors INT NOT NULL DEFAULT 0,
			flavor_ids JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			customer_id TEXT,
			customer_name TEXT NOT NULL DEFAULT '',
			customer_phone TEXT NOT NULL DEFAULT '',
			customer_email TEXT,
			address TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			status TEXT NOT NULL,
			subtotal_minor BIGINT NOT NULL,
			delivery_fee_minor BIGINT NOT NULL,
			total_minor BIGINT NOT NULL,
			driver_id TEXT,
			payment_method TEXT NOT NULL DEFAULT '',
			delivery_type TEXT NOT NULL DEFAULT 'delivery',
			notes TEXT NOT NULL DEFAULT '',
			external_platform TEXT,
			external_order_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS orders_external_ref
			ON orders (tenant_id, external_platform, external_order_id)
			WHERE external_order_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id),
			product_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			price_minor BIGINT NOT NULL,
			quantity INT NOT NULL,
			notes TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id),
			external_intent TEXT NOT NULL DEFAULT '',
			amount_minor BIGINT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS commissions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			order_id TEXT NOT NULL REFERENCES orders(id),
			order_total_minor BIGINT NOT NULL,
			commission_bp BIGINT NOT NULL,
			amount_minor BIGINT NOT NULL,
			paid BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS driver_assignments (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES orders(id),
			driver_id TEXT NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending',
			notified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			responded_at TIMESTAMPTZ
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- tenants ---

func (s *PostgresStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	hours, err := json.Marshal(t.Hours)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, commission_bp, delivery_fee_minor, active, hours, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, t.Slug, t.CommissionBP, t.DeliveryFeeMin, t.Active, hours, t.Phone, t.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	return err
}

const tenantColumns = `id, name, slug, commission_bp, delivery_fee_minor, active, hours, phone, created_at`

func scanTenant(row interface{ Scan(...any) error }) (*model.Tenant, error) {
	var t model.Tenant
	var hours []byte
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CommissionBP, &t.DeliveryFeeMin, &t.Active, &hours, &t.Phone, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &t.Hours); err != nil {
			return nil, fmt.Errorf("decode tenant hours: %w", err)
		}
	}
	return &t, nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (s *PostgresStore) GetTenantBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	return scanTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`, slug))
}

func (s *PostgresStore) ListActiveTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	hours, err := json.Marshal(t.Hours)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET name = $2, slug = $3, commission_bp = $4, delivery_fee_minor = $5,
			active = $6, hours = $7, phone = $8
		WHERE id = $1`,
		t.ID, t.Name, t.Slug, t.CommissionBP, t.DeliveryFeeMin, t.Active, hours, t.Phone)
	if isUniqueViolation(err) {
		return ErrDuplicateSlug
	}
	return requireRow(res, err)
}

// --- users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, tenant_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.TenantID, u.Active, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

const userColumns = `id, email, password_hash, role, tenant_id, active, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.TenantID, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *PostgresStore) ListUsers(ctx context.Context, f UserFilter) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE ($1 = '' OR role = $1) AND ($2 = '' OR tenant_id = $2)
		ORDER BY created_at`, string(f.Role), f.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// --- driver profiles ---

func (s *PostgresStore) UpsertDriverProfile(ctx context.Context, p *model.DriverProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO driver_profiles (user_id, vehicle_type, vehicle_plate, status, lat, lng, rating, total_deliveries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			vehicle_type = EXCLUDED.vehicle_type,
			vehicle_plate = EXCLUDED.vehicle_plate,
			status = EXCLUDED.status,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			rating = EXCLUDED.rating,
			total_deliveries = EXCLUDED.total_deliveries`,
		p.UserID, p.VehicleType, p.VehiclePlate, p.Status, p.Lat, p.Lng, p.Rating, p.TotalDeliveries)
	return err
}

const driverColumns = `user_id, vehicle_type, vehicle_plate, status, lat, lng, rating, total_deliveries`

func scanDriver(row interface{ Scan(...any) error }) (*model.DriverProfile, error) {
	var p model.DriverProfile
	err := row.Scan(&p.UserID, &p.VehicleType, &p.VehiclePlate, &p.Status, &p.Lat, &p.Lng, &p.Rating, &p.TotalDeliveries)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetDriverProfile(ctx context.Context, userID string) (*model.DriverProfile, error) {
	return scanDriver(s.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM driver_profiles WHERE user_id = $1`, userID))
}

func (s *PostgresStore) ListAvailableDrivers(ctx context.Context) ([]model.DriverProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+driverColumns+` FROM driver_profiles
		WHERE status = 'available' AND lat IS NOT NULL AND lng IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DriverProfile
	for rows.Next() {
		p, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateDriverLocation(ctx context.Context, userID string, lat, lng float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE driver_profiles SET lat = $2, lng = $3 WHERE user_id = $1`, userID, lat, lng)
	return requireRow(res, err)
}

func (s *PostgresStore) UpdateDriverStatus(ctx context.Context, userID string, status model.DriverStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE driver_profiles SET status = $2 WHERE user_id = $1`, userID, status)
	return requireRow(res, err)
}

// --- catalog ---

func (s *PostgresStore) CreateCategory(ctx context.Context, c *model.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, tenant_id, name, position) VALUES ($1, $2, $3, $4)`,
		c.ID, c.TenantID, c.Name, c.Position)
	return err
}

func (s *PostgresStore) ListCategories(ctx context.Context, tenantID string) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, position FROM categories WHERE tenant_id = $1 ORDER BY position`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Position); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *model.Product) error {
	sizes, err := json.Marshal(p.SizePrices)
	if err != nil {
		return err
	}
	flavors, err := json.Marshal(p.FlavorIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, category_id, name, description, price_minor, available,
			size_prices, combination, max_flavors, flavor_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.TenantID, p.CategoryID, p.Name, p.Description, p.PriceMinor, p.Available,
		sizes, p.Combination, p.MaxFlavors, flavors)
	return err
}

const productColumns = `id, tenant_id, category_id, name, description, price_minor, available, size_prices, combination, max_flavors, flavor_ids`

func scanProduct(row interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	var sizes, flavors []byte
	err := row.Scan(&p.ID, &p.TenantID, &p.CategoryID, &p.Name, &p.Description, &p.PriceMinor,
		&p.Available, &sizes, &p.Combination, &p.MaxFlavors, &flavors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(sizes) > 0 {
		if err := json.Unmarshal(sizes, &p.SizePrices); err != nil {
			return nil, fmt.Errorf("decode product sizes: %w", err)
		}
	}
	if len(flavors) > 0 {
		if err := json.Unmarshal(flavors, &p.FlavorIDs); err != nil {
			return nil, fmt.Errorf("decode product flavors: %w", err)
		}
	}
	return &p, nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR category_id = $2)
		  AND (NOT $3 OR available)
		ORDER BY name`, f.TenantID, f.CategoryID, f.AvailableOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *model.Product) error {
	sizes, err := json.Marshal(p.SizePrices)
	if err != nil {
		return err
	}
	flavors, err := json.Marshal(p.FlavorIDs)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET category_id = $2, name = $3, description = $4, price_minor = $5,
			available = $6, size_prices = $7, combination = $8, max_flavors = $9, flavor_ids = $10
		WHERE id = $1`,
		p.ID, p.CategoryID, p.Name, p.Description, p.PriceMinor, p.Available,
		sizes, p.Combination, p.MaxFlavors, flavors)
	return requireRow(res, err)
}

// --- orders ---

// CreateOrderBundle persists the order, its items, its payment, and its
// commission in one transaction. Write ordering is fixed because the child
// rows reference the order id.
func (s *PostgresStore) CreateOrderBundle(ctx context.Context, b OrderBundle) (err error) {
	if b.Order == nil {
		return errors.New("order bundle requires an order")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	o := b.Order
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, tenant_id, customer_id, customer_name, customer_phone, customer_email,
			address, lat, lng, status, subtotal_minor, delivery_fee_minor, total_minor, driver_id,
			payment_method, delivery_type, notes, external_platform, external_order_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		o.ID, o.TenantID, o.CustomerID, o.CustomerName, o.CustomerPhone, o.CustomerEmail,
		o.Address, o.Lat, o.Lng, o.Status, o.SubtotalMinor, o.DeliveryFee, o.TotalMinor, o.DriverID,
		o.PaymentMethod, o.DeliveryType, o.Notes, o.ExternalPlatform, o.ExternalOrderID, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateExternalOrder
	}
	if err != nil {
		return err
	}

	for _, it := range b.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, price_minor, quantity, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, it.OrderID, it.ProductID, it.Name, it.PriceMinor, it.Quantity, it.Notes); err != nil {
			return err
		}
	}

	if p := b.Payment; p != nil {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, order_id, external_intent, amount_minor, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.OrderID, p.ExternalIntent, p.AmountMinor, p.Status, p.CreatedAt, p.UpdatedAt); err != nil {
			return err
		}
	}

	if c := b.Commission; c != nil {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO commissions (id, tenant_id, order_id, order_total_minor, commission_bp, amount_minor, paid, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.ID, c.TenantID, c.OrderID, c.OrderTotal, c.CommissionBP, c.AmountMinor, c.Paid, c.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const orderColumns = `id, tenant_id, customer_id, customer_name, customer_phone, customer_email,
	address, lat, lng, status, subtotal_minor, delivery_fee_minor, total_minor, driver_id,
	payment_method, delivery_type, notes, external_platform, external_order_id, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	var platform sql.NullString
	err := row.Scan(&o.ID, &o.TenantID, &o.CustomerID, &o.CustomerName, &o.CustomerPhone, &o.CustomerEmail,
		&o.Address, &o.Lat, &o.Lng, &o.Status, &o.SubtotalMinor, &o.DeliveryFee, &o.TotalMinor, &o.DriverID,
		&o.PaymentMethod, &o.DeliveryType, &o.Notes, &platform, &o.ExternalOrderID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if platform.Valid {
		p := model.Platform(platform.String)
		o.ExternalPlatform = &p
	}
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (s *PostgresStore) GetOrderByExternalID(ctx context.Context, tenantID string, platform model.Platform, externalID string) (*model.Order, error) {
	return scanOrder(s.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = $1 AND external_platform = $2 AND external_order_id = $3`,
		tenantID, platform, externalID))
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return requireRow(res, err)
}

func (s *PostgresStore) AssignOrderDriver(ctx context.Context, orderID, driverID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET driver_id = $2, updated_at = NOW() WHERE id = $1`, orderID, driverID)
	return requireRow(res, err)
}

func (s *PostgresStore) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR tenant_id = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3 = '' OR driver_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY created_at DESC`,
		f.TenantID, f.CustomerID, f.DriverID, string(f.Status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, price_minor, quantity, notes
		FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.PriceMinor, &it.Quantity, &it.Notes); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// --- payments ---

func (s *PostgresStore) GetPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	var p model.Payment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, external_intent, amount_minor, status, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.ExternalIntent, &p.AmountMinor, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) UpdatePaymentStatus(ctx context.Context, id string, status model.PaymentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return requireRow(res, err)
}

// UpdatePaymentAndOrderStatus applies both updates in one transaction so the
// payment can never land in completed while the order misses its confirmed
// transition.
func (s *PostgresStore) UpdatePaymentAndOrderStatus(ctx context.Context, paymentID string, ps model.PaymentStatus, orderID string, os model.OrderStatus) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`, paymentID, ps)
	if err = requireRow(res, err); err != nil {
		return err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, orderID, os)
	if err = requireRow(res, err); err != nil {
		return err
	}

	return tx.Commit()
}

// --- commissions ---

func (s *PostgresStore) GetCommissionByOrder(ctx context.Context, orderID string) (*model.Commission, error) {
	var c model.Commission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, order_id, order_total_minor, commission_bp, amount_minor, paid, created_at
		FROM commissions WHERE order_id = $1`, orderID).
		Scan(&c.ID, &c.TenantID, &c.OrderID, &c.OrderTotal, &c.CommissionBP, &c.AmountMinor, &c.Paid, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListUnpaidCommissions(ctx context.Context, tenantID string) ([]model.Commission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, order_id, order_total_minor, commission_bp, amount_minor, paid, created_at
		FROM commissions
		WHERE NOT paid AND ($1 = '' OR tenant_id = $1)
		ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Commission
	for rows.Next() {
		var c model.Commission
		if err := rows.Scan(&c.ID, &c.TenantID, &c.OrderID, &c.OrderTotal, &c.CommissionBP, &c.AmountMinor, &c.Paid, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkCommissionPaid(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commissions SET paid = TRUE WHERE id = $1`, id)
	return requireRow(res, err)
}

// --- driver assignments ---

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *model.DriverAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO driver_assignments (id, order_id, driver_id, status, notified_at, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.OrderID, a.DriverID, a.Status, a.NotifiedAt, a.RespondedAt)
	return err
}

const assignmentColumns = `id, order_id, driver_id, status, notified_at, responded_at`

func (s *PostgresStore) listAssignments(ctx context.Context, where string, arg any) ([]model.DriverAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assignmentColumns+` FROM driver_assignments WHERE `+where+` ORDER BY notified_at`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DriverAssignment
	for rows.Next() {
		var a model.DriverAssignment
		if err := rows.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.Status, &a.NotifiedAt, &a.RespondedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.DriverAssignment, error) {
	return s.listAssignments(ctx, `order_id = $1`, orderID)
}

func (s *PostgresStore) ListAssignmentsByDriver(ctx context.Context, driverID string) ([]model.DriverAssignment, error) {
	return s.listAssignments(ctx, `driver_id = $1`, driverID)
}

func (s *PostgresStore) RespondAssignment(ctx context.Context, id string, status model.AssignmentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE driver_assignments SET status = $2, responded_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, status)
	return requireRow(res, err)
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
