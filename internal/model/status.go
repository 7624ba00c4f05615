package model

// OrderStatus is the canonical order lifecycle vocabulary. Every ingress path
// (checkout, platform webhook, payment reconciliation) maps onto this set.
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderConfirmed      OrderStatus = "confirmed"
	OrderPreparing      OrderStatus = "preparing"
	OrderReady          OrderStatus = "ready"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// AllowedOrderTransitions represents the order state flow as code. Orders are
// never deleted; they only move forward through this table.
var AllowedOrderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderConfirmed, OrderCancelled},
	OrderConfirmed:      {OrderPreparing, OrderCancelled},
	OrderPreparing:      {OrderReady, OrderCancelled},
	OrderReady:          {OrderOutForDelivery, OrderDelivered, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered, OrderCancelled},
}

func CanTransitionOrder(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, s := range AllowedOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverBusy      DriverStatus = "busy"
	DriverOffline   DriverStatus = "offline"
)

type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentAccepted AssignmentStatus = "accepted"
	AssignmentRejected AssignmentStatus = "rejected"
)

type Role string

const (
	RoleCustomer        Role = "customer"
	RoleRestaurantOwner Role = "restaurant_owner"
	RoleDriver          Role = "driver"
	RolePlatformAdmin   Role = "platform_admin"
)

// Platform identifies the external marketplace an order came in from.
type Platform string

const (
	PlatformIfood    Platform = "ifood"
	PlatformUberEats Platform = "ubereats"
	PlatformQuero    Platform = "quero"
	PlatformGeneric  Platform = "generic"
)

type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "delivery"
	DeliveryTypePickup   DeliveryType = "pickup"
)
