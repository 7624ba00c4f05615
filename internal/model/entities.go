// Package model holds the persisted entities shared by the storage, dispatch,
// webhook, and reconciliation layers. Money fields are int64 minor units
// throughout; see the money package.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns an opaque unique identifier for any entity.
func NewID() string {
	return uuid.NewString()
}

// DayHours is one weekday's opening window for a tenant.
type DayHours struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	Closed bool   `json:"closed"`
}

// Tenant is a single restaurant account on the platform.
type Tenant struct {
	ID   string
	Name string
	Slug string
	// CommissionBP is the platform commission in basis points (10.00% = 1000).
	CommissionBP   int64
	DeliveryFeeMin int64
	Active         bool
	// Hours is keyed by lowercase weekday name ("monday".."sunday").
	Hours     map[string]DayHours
	Phone     string
	CreatedAt time.Time
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	TenantID     *string
	Active       bool
	CreatedAt    time.Time
}

// DriverProfile extends a driver User 1:1. Lat/Lng are nil until the first
// GPS ping; dispatch must skip drivers without a fix.
type DriverProfile struct {
	UserID          string
	VehicleType     string
	VehiclePlate    string
	Status          DriverStatus
	Lat             *float64
	Lng             *float64
	Rating          float64
	TotalDeliveries int
}

type Category struct {
	ID       string
	TenantID string
	Name     string
	Position int
}

type Product struct {
	ID          string
	TenantID    string
	CategoryID  string
	Name        string
	Description string
	PriceMinor  int64
	Available   bool
	// SizePrices optionally maps a size label to its own price.
	SizePrices map[string]int64
	// Combination marks pizza-style multi-flavor items.
	Combination bool
	MaxFlavors  int
	FlavorIDs   []string
}

type PizzaFlavor struct {
	ID       string
	TenantID string
	Name     string
}

type Order struct {
	ID            string
	TenantID      string
	CustomerID    *string
	CustomerName  string
	CustomerPhone string
	CustomerEmail *string
	Address       string
	Lat           *float64
	Lng           *float64
	Status        OrderStatus
	SubtotalMinor int64
	DeliveryFee   int64
	TotalMinor    int64
	DriverID      *string
	PaymentMethod string
	DeliveryType  DeliveryType
	Notes         string
	// ExternalPlatform and ExternalOrderID form the webhook idempotency key
	// together with TenantID.
	ExternalPlatform *Platform
	ExternalOrderID  *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OrderItem struct {
	ID      string
	OrderID string
	// ProductID may be a synthetic id for externally sourced items that have
	// no local product.
	ProductID  string
	Name       string
	PriceMinor int64
	Quantity   int
	Notes      string
}

type Payment struct {
	ID              string
	OrderID         string
	ExternalIntent  string
	AmountMinor     int64
	Status          PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Commission snapshots the tenant's rate at order creation; later rate changes
// never alter historical rows.
type Commission struct {
	ID           string
	TenantID     string
	OrderID      string
	OrderTotal   int64
	CommissionBP int64
	AmountMinor  int64
	Paid         bool
	CreatedAt    time.Time
}

type DriverAssignment struct {
	ID          string
	OrderID     string
	DriverID    string
	Status      AssignmentStatus
	NotifiedAt  time.Time
	RespondedAt *time.Time
}

// CommissionAmount computes the platform's cut of a total at the given rate
// in basis points, rounding half-up to the cent.
func CommissionAmount(totalMinor, rateBP int64) int64 {
	return (totalMinor*rateBP + 5000) / 10000
}
