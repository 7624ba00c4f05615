package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"chowline/internal/model"
	"chowline/internal/store"
)

type notifyCall struct {
	kind    string
	orderID string
	next    model.OrderStatus
}

type spyNotifier struct {
	calls []notifyCall
}

func (s *spyNotifier) SendOrderStatusNotification(_ context.Context, phone, orderID string, prev, next model.OrderStatus, tenantName string) error {
	s.calls = append(s.calls, notifyCall{kind: "status", orderID: orderID, next: next})
	return nil
}

func (s *spyNotifier) SendKitchenOrderNotification(_ context.Context, restaurantPhone, orderID string, items []model.OrderItem, totalMinor int64, customerPhone, address string) error {
	s.calls = append(s.calls, notifyCall{kind: "kitchen", orderID: orderID})
	return nil
}

func newTestHandler(t *testing.T, secrets map[model.Platform]Secret) (*Handler, *store.MemoryStore, *spyNotifier, string) {
	t.Helper()
	st := store.NewMemoryStore()
	tenant := &model.Tenant{
		ID:           model.NewID(),
		Name:         "Pizzaria Trinta",
		Slug:         "pizzaria-trinta",
		CommissionBP: 1000,
		Active:       true,
		Phone:        "+5511933334444",
	}
	if err := st.CreateTenant(context.Background(), tenant); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	notifier := &spyNotifier{}
	return NewHandler(st, notifier, secrets, func(string, ...any) {}), st, notifier, tenant.ID
}

const ifoodPayload = `{
	"event": "placed",
	"order": {
		"id": "ifood-9001",
		"customer": {"name": "Ana Souza", "phone": "+5511999990000"},
		"deliveryAddress": {"formattedAddress": "Rua Augusta 1000"},
		"orderType": "DELIVERY",
		"paymentMethod": "credit_card",
		"total": 45.90,
		"items": [
			{"name": "Pizza Margherita", "quantity": 1, "unitPrice": 35.90},
			{"name": "Guarana 2L", "quantity": 1, "unitPrice": 10.00}
		]
	}
}`

func TestProcess_IfoodEndToEnd(t *testing.T) {
	h, st, notifier, tenantID := newTestHandler(t, nil)
	ctx := context.Background()

	res := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(ifoodPayload))
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	order, err := st.GetOrderByExternalID(ctx, tenantID, model.PlatformIfood, "ifood-9001")
	if err != nil {
		t.Fatalf("lookup order: %v", err)
	}
	if order.Status != model.OrderConfirmed {
		t.Fatalf("expected confirmed, got %q", order.Status)
	}
	if order.TotalMinor != 4590 || order.SubtotalMinor+order.DeliveryFee != order.TotalMinor {
		t.Fatalf("unexpected totals: %+v", order)
	}
	if order.CustomerEmail != nil {
		t.Fatalf("expected nil customer email")
	}
	if order.ExternalPlatform == nil || *order.ExternalPlatform != model.PlatformIfood {
		t.Fatalf("expected external platform tag")
	}
	if order.CreatedAt.IsZero() || order.UpdatedAt.IsZero() {
		t.Fatalf("expected stamped timestamps, got created=%v updated=%v", order.CreatedAt, order.UpdatedAt)
	}

	items, _ := st.ListOrderItems(ctx, order.ID)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	payment, err := st.GetPaymentByOrder(ctx, order.ID)
	if err != nil || payment.Status != model.PaymentPending || payment.AmountMinor != 4590 {
		t.Fatalf("unexpected payment: %+v err=%v", payment, err)
	}
	if payment.CreatedAt.IsZero() || payment.UpdatedAt.IsZero() {
		t.Fatalf("expected stamped payment timestamps, got %+v", payment)
	}
	commission, err := st.GetCommissionByOrder(ctx, order.ID)
	if err != nil || commission.AmountMinor != 459 || commission.CommissionBP != 1000 {
		t.Fatalf("unexpected commission: %+v err=%v", commission, err)
	}
	if commission.CreatedAt.IsZero() {
		t.Fatalf("expected stamped commission timestamp, got %+v", commission)
	}
	if len(notifier.calls) != 2 || notifier.calls[0].kind != "status" || notifier.calls[1].kind != "kitchen" {
		t.Fatalf("expected status+kitchen notifications, got %+v", notifier.calls)
	}

	// Replay of the identical delivery must not create a second row.
	res2 := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(ifoodPayload))
	if !res2.Success || res2.OrderID != order.ID {
		t.Fatalf("expected replay to land on existing order, got %+v", res2)
	}
	orders, _ := st.ListOrders(ctx, store.OrderFilter{TenantID: tenantID})
	if len(orders) != 1 {
		t.Fatalf("expected exactly one order after replay, got %d", len(orders))
	}
}

func TestProcess_StatusProgression(t *testing.T) {
	h, st, notifier, tenantID := newTestHandler(t, nil)
	ctx := context.Background()

	res := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(ifoodPayload))
	progress := `{"event":"preparing","order":{"id":"ifood-9001","total":45.90}}`
	res2 := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(progress))
	if !res2.Success || res2.OrderID != res.OrderID {
		t.Fatalf("expected progression on same order, got %+v", res2)
	}

	order, _ := st.GetOrder(ctx, res.OrderID)
	if order.Status != model.OrderPreparing {
		t.Fatalf("expected preparing, got %q", order.Status)
	}
	last := notifier.calls[len(notifier.calls)-1]
	if last.kind != "status" || last.next != model.OrderPreparing {
		t.Fatalf("expected preparing notification, got %+v", last)
	}
}

func TestProcess_CancellationSuppressesNotification(t *testing.T) {
	h, st, notifier, tenantID := newTestHandler(t, nil)
	ctx := context.Background()

	res := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(ifoodPayload))
	before := len(notifier.calls)

	cancel := `{"event":"order.cancelled","order":{"id":"ifood-9001","total":45.90}}`
	res2 := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(cancel))
	if !res2.Success {
		t.Fatalf("expected cancellation to apply, got %+v", res2)
	}

	order, _ := st.GetOrder(ctx, res.OrderID)
	if order.Status != model.OrderCancelled {
		t.Fatalf("expected cancelled, got %q", order.Status)
	}
	if len(notifier.calls) != before {
		t.Fatalf("cancellation must not notify, got %+v", notifier.calls[before:])
	}
}

func TestProcess_InvalidSignatureHasNoSideEffects(t *testing.T) {
	secrets := map[model.Platform]Secret{
		model.PlatformIfood: {Key: "ifood-secret", Encoding: EncodingHex},
	}
	h, st, notifier, tenantID := newTestHandler(t, secrets)
	ctx := context.Background()

	res := h.Process(ctx, tenantID, model.PlatformIfood, "deadbeef", []byte(ifoodPayload))
	if res.Success || res.Message != "invalid signature" {
		t.Fatalf("expected signature rejection, got %+v", res)
	}
	orders, _ := st.ListOrders(ctx, store.OrderFilter{TenantID: tenantID})
	if len(orders) != 0 || len(notifier.calls) != 0 {
		t.Fatal("expected no side effects on signature failure")
	}

	mac := hmac.New(sha256.New, []byte("ifood-secret"))
	mac.Write([]byte(ifoodPayload))
	good := hex.EncodeToString(mac.Sum(nil))
	if res := h.Process(ctx, tenantID, model.PlatformIfood, good, []byte(ifoodPayload)); !res.Success {
		t.Fatalf("expected signed delivery to process, got %+v", res)
	}
}

func TestProcess_UnknownEventIgnored(t *testing.T) {
	h, st, notifier, tenantID := newTestHandler(t, nil)
	ctx := context.Background()

	res := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(`{"event":"driver.photo_uploaded","order":{"id":"ifood-x","total":1}}`))
	if !res.Success || !res.UnknownEvent {
		t.Fatalf("expected ignored unknown event, got %+v", res)
	}
	orders, _ := st.ListOrders(ctx, store.OrderFilter{TenantID: tenantID})
	if len(orders) != 0 || len(notifier.calls) != 0 {
		t.Fatal("unknown events must not create state")
	}
}

type spySink struct {
	events []model.OrderStatus
}

func (s *spySink) OrderStatusChanged(tenantID, orderID string, prev, next model.OrderStatus) {
	s.events = append(s.events, next)
}

func TestProcess_StatusSinkSeesCancellations(t *testing.T) {
	h, _, notifier, tenantID := newTestHandler(t, nil)
	sink := &spySink{}
	h.SetStatusSink(sink)
	ctx := context.Background()

	h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(ifoodPayload))
	before := len(notifier.calls)
	h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(`{"event":"cancelled","order":{"id":"ifood-9001","total":45.90}}`))

	if len(sink.events) != 2 || sink.events[1] != model.OrderCancelled {
		t.Fatalf("expected sink to see creation and cancellation, got %+v", sink.events)
	}
	if len(notifier.calls) != before {
		t.Fatal("cancellation must not notify the customer")
	}
}

func TestProcess_InvalidTransitionRejected(t *testing.T) {
	h, _, _, tenantID := newTestHandler(t, nil)
	ctx := context.Background()

	h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(ifoodPayload))
	for _, event := range []string{"preparing", "ready", "delivered"} {
		body := `{"event":"` + event + `","order":{"id":"ifood-9001","total":45.90}}`
		if res := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(body)); !res.Success {
			t.Fatalf("%s: expected success, got %+v", event, res)
		}
	}

	res := h.Process(ctx, tenantID, model.PlatformIfood, "", []byte(`{"event":"preparing","order":{"id":"ifood-9001","total":45.90}}`))
	if res.Success {
		t.Fatalf("expected delivered -> preparing to be rejected, got %+v", res)
	}
}
