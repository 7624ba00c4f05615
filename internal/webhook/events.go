package webhook

import (
	"strings"

	"chowline/internal/model"
)

// statusByEvent maps the shared external event vocabulary onto canonical
// order statuses. Platforms prefix event names differently ("order.placed",
// "orders.notification", "PLACED"); lookup happens on the lowercased last
// dot-separated segment.
var statusByEvent = map[string]model.OrderStatus{
	"placed":    model.OrderConfirmed,
	"created":   model.OrderConfirmed,
	"confirmed": model.OrderConfirmed,
	"accepted":  model.OrderConfirmed,
	"preparing": model.OrderPreparing,
	"ready":     model.OrderReady,
	"dispatched": model.OrderOutForDelivery,
	"picked_up":  model.OrderOutForDelivery,
	"delivered":  model.OrderDelivered,
	"cancelled":  model.OrderCancelled,
	"canceled":   model.OrderCancelled,

	// Quero Delivery sends Portuguese event names.
	"criado":           model.OrderConfirmed,
	"confirmado":       model.OrderConfirmed,
	"aceito":           model.OrderConfirmed,
	"preparando":       model.OrderPreparing,
	"pronto":           model.OrderReady,
	"despachado":       model.OrderOutForDelivery,
	"saiu_para_entrega": model.OrderOutForDelivery,
	"entregue":         model.OrderDelivered,
	"cancelado":        model.OrderCancelled,
}

// CanonicalStatus resolves an external event name to an order status.
func CanonicalStatus(event string) (model.OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(event))
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	s, ok := statusByEvent[key]
	return s, ok
}
