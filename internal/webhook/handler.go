package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chowline/internal/model"
	"chowline/internal/store"
)

// OrderStore is the slice of the storage contract webhook ingestion needs.
type OrderStore interface {
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	GetOrderByExternalID(ctx context.Context, tenantID string, platform model.Platform, externalID string) (*model.Order, error)
	CreateOrderBundle(ctx context.Context, b store.OrderBundle) error
	UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) error
}

// Notifier delivers customer and kitchen notifications. Implementations must
// tolerate unconfigured credentials; the handler treats every notification
// failure as log-and-continue.
type Notifier interface {
	SendOrderStatusNotification(ctx context.Context, phone, orderID string, prev, next model.OrderStatus, tenantName string) error
	SendKitchenOrderNotification(ctx context.Context, restaurantPhone, orderID string, items []model.OrderItem, totalMinor int64, customerPhone, address string) error
}

// NoopNotifier logs instead of sending. Used when no messaging credentials
// are configured.
type NoopNotifier struct {
	Logf func(format string, args ...any)
}

func (n NoopNotifier) SendOrderStatusNotification(_ context.Context, phone, orderID string, prev, next model.OrderStatus, tenantName string) error {
	n.logf("notify (noop): order %s %s -> %s for %s (customer %s)", orderID, prev, next, tenantName, phone)
	return nil
}

func (n NoopNotifier) SendKitchenOrderNotification(_ context.Context, restaurantPhone, orderID string, items []model.OrderItem, totalMinor int64, customerPhone, address string) error {
	n.logf("notify kitchen (noop): order %s, %d items, total %d, to %s", orderID, len(items), totalMinor, restaurantPhone)
	return nil
}

func (n NoopNotifier) logf(format string, args ...any) {
	if n.Logf != nil {
		n.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// StatusSink receives every applied status change, e.g. for dashboard
// fanout. Cancellations reach the sink even though customers are not
// notified about them.
type StatusSink interface {
	OrderStatusChanged(tenantID, orderID string, prev, next model.OrderStatus)
}

// Result is what ingestion reports back to the HTTP layer. Success false
// means the platform should not blindly retry the same delivery.
type Result struct {
	Success      bool
	Message      string
	OrderID      string
	UnknownEvent bool
}

// Handler drives webhook ingestion for all platforms.
type Handler struct {
	store    OrderStore
	notifier Notifier
	// secrets is keyed by platform; a platform with no entry skips signature
	// verification.
	secrets map[model.Platform]Secret
	sink    StatusSink
	logf    func(format string, args ...any)
}

// NewHandler wires a Handler. notifier may be nil, which falls back to the
// logging noop.
func NewHandler(st OrderStore, notifier Notifier, secrets map[model.Platform]Secret, logf func(string, ...any)) *Handler {
	if logf == nil {
		logf = log.Printf
	}
	if notifier == nil {
		notifier = NoopNotifier{Logf: logf}
	}
	return &Handler{store: st, notifier: notifier, secrets: secrets, logf: logf}
}

// SetStatusSink attaches an optional dashboard event sink.
func (h *Handler) SetStatusSink(s StatusSink) { h.sink = s }

// Process ingests one webhook delivery: verify signature, normalize, then
// create the order or update its status. Replays of an already ingested
// external order update status only.
func (h *Handler) Process(ctx context.Context, tenantID string, platform model.Platform, signature string, raw []byte) Result {
	if secret, ok := h.secrets[platform]; ok && secret.Key != "" {
		if !VerifySignature(raw, secret, signature) {
			return Result{Success: false, Message: "invalid signature"}
		}
	}

	payload, err := Normalize(platform, raw, h.logf)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("invalid payload: %v", err)}
	}
	next, known := CanonicalStatus(payload.Event)
	if !known {
		return Result{Success: true, UnknownEvent: true, Message: fmt.Sprintf("unknown event %q ignored", payload.Event)}
	}
	if payload.Order.ExternalOrderID == "" {
		return Result{Success: false, Message: "missing external order id"}
	}

	existing, err := h.store.GetOrderByExternalID(ctx, tenantID, platform, payload.Order.ExternalOrderID)
	switch {
	case err == nil:
		return h.updateExisting(ctx, existing, next)
	case errors.Is(err, store.ErrNotFound):
		return h.createOrder(ctx, tenantID, next, payload.Order)
	default:
		return Result{Success: false, Message: fmt.Sprintf("lookup order: %v", err)}
	}
}

func (h *Handler) updateExisting(ctx context.Context, o *model.Order, next model.OrderStatus) Result {
	if !model.CanTransitionOrder(o.Status, next) {
		return Result{Success: false, Message: fmt.Sprintf("invalid transition %s -> %s", o.Status, next)}
	}
	if o.Status == next {
		return Result{Success: true, OrderID: o.ID, Message: "status unchanged"}
	}
	if err := h.store.UpdateOrderStatus(ctx, o.ID, next); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("update status: %v", err)}
	}
	h.publish(o.TenantID, o.ID, o.Status, next)
	h.notifyStatus(ctx, o.TenantID, o.CustomerPhone, o.ID, o.Status, next)
	return Result{Success: true, OrderID: o.ID, Message: "status updated"}
}

func (h *Handler) createOrder(ctx context.Context, tenantID string, status model.OrderStatus, ext ExternalOrder) Result {
	tenant, err := h.store.GetTenant(ctx, tenantID)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("lookup tenant: %v", err)}
	}

	orderID := model.NewID()
	platform := ext.Platform
	externalID := ext.ExternalOrderID
	now := time.Now().UTC()
	order := &model.Order{
		ID:            orderID,
		TenantID:      tenant.ID,
		CustomerName:  ext.CustomerName,
		CustomerPhone: ext.CustomerPhone,
		CustomerEmail: ext.CustomerEmail,
		Address:       ext.DeliveryAddress,
		Status:        status,
		// External totals already include any delivery charge, so the whole
		// amount lands in the subtotal and the fee stays zero.
		SubtotalMinor:    ext.TotalMinor,
		DeliveryFee:      0,
		TotalMinor:       ext.TotalMinor,
		PaymentMethod:    ext.PaymentMethod,
		DeliveryType:     ext.DeliveryType,
		Notes:            ext.Notes,
		ExternalPlatform: &platform,
		ExternalOrderID:  &externalID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	items := make([]model.OrderItem, 0, len(ext.Items))
	for _, it := range ext.Items {
		items = append(items, model.OrderItem{
			ID:         model.NewID(),
			OrderID:    orderID,
			ProductID:  model.NewID(),
			Name:       it.Name,
			PriceMinor: it.UnitPriceMinor,
			Quantity:   it.Quantity,
			Notes:      it.Notes,
		})
	}

	bundle := store.OrderBundle{
		Order: order,
		Items: items,
		Payment: &model.Payment{
			ID:          model.NewID(),
			OrderID:     orderID,
			AmountMinor: ext.TotalMinor,
			Status:      model.PaymentPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		Commission: &model.Commission{
			ID:           model.NewID(),
			TenantID:     tenant.ID,
			OrderID:      orderID,
			OrderTotal:   ext.TotalMinor,
			CommissionBP: tenant.CommissionBP,
			AmountMinor:  model.CommissionAmount(ext.TotalMinor, tenant.CommissionBP),
			CreatedAt:    now,
		},
	}

	if err := h.store.CreateOrderBundle(ctx, bundle); err != nil {
		if errors.Is(err, store.ErrDuplicateExternalOrder) {
			// A concurrent delivery won the insert race; fall back to the
			// update path against the winner's row.
			if winner, lookupErr := h.store.GetOrderByExternalID(ctx, tenant.ID, platform, externalID); lookupErr == nil {
				return h.updateExisting(ctx, winner, status)
			}
			return Result{Success: false, Message: "duplicate external order"}
		}
		return Result{Success: false, Message: fmt.Sprintf("create order: %v", err)}
	}

	h.publish(tenant.ID, orderID, model.OrderPending, status)
	if status != model.OrderCancelled {
		h.notifyStatus(ctx, tenant.ID, ext.CustomerPhone, orderID, model.OrderPending, status)
		if err := h.notifier.SendKitchenOrderNotification(ctx, tenant.Phone, orderID, items, ext.TotalMinor, ext.CustomerPhone, ext.DeliveryAddress); err != nil {
			h.logf("webhook: kitchen notification for order %s failed: %v", orderID, err)
		}
	}
	return Result{Success: true, OrderID: orderID, Message: "order created"}
}

func (h *Handler) publish(tenantID, orderID string, prev, next model.OrderStatus) {
	if h.sink != nil {
		h.sink.OrderStatusChanged(tenantID, orderID, prev, next)
	}
}

// notifyStatus sends the customer notification for non-cancellation
// transitions. Failures never unwind the order write.
func (h *Handler) notifyStatus(ctx context.Context, tenantID, phone, orderID string, prev, next model.OrderStatus) {
	if next == model.OrderCancelled {
		return
	}
	tenantName := tenantID
	if t, err := h.store.GetTenant(ctx, tenantID); err == nil {
		tenantName = t.Name
	}
	if err := h.notifier.SendOrderStatusNotification(ctx, phone, orderID, prev, next, tenantName); err != nil {
		h.logf("webhook: status notification for order %s failed: %v", orderID, err)
	}
}
