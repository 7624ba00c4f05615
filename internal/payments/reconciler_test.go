package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"chowline/internal/model"
	"chowline/internal/store"
)

const testSecret = "whsec_test"

func newTestReconciler(t *testing.T, st PaymentStore) *Reconciler {
	t.Helper()
	r := NewReconciler(st, testSecret, func(string, ...any) {})
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func seedOrderWithPayment(t *testing.T, st *store.MemoryStore) (orderID, paymentID string) {
	t.Helper()
	ctx := context.Background()
	tenant := &model.Tenant{ID: model.NewID(), Name: "Cantina da Praça", Slug: "cantina", CommissionBP: 1000, Active: true}
	if err := st.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}

	orderID = model.NewID()
	paymentID = model.NewID()
	bundle := store.OrderBundle{
		Order: &model.Order{
			ID:            orderID,
			TenantID:      tenant.ID,
			CustomerName:  "Rafa",
			Status:        model.OrderPending,
			SubtotalMinor: 3000,
			DeliveryFee:   500,
			TotalMinor:    3500,
			PaymentMethod: "online",
			DeliveryType:  model.DeliveryTypeDelivery,
		},
		Payment: &model.Payment{ID: paymentID, OrderID: orderID, AmountMinor: 3500, Status: model.PaymentPending},
	}
	if err := st.CreateOrderBundle(ctx, bundle); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return orderID, paymentID
}

func eventBody(eventType, orderID string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":%q,"data":{"object":{"id":"pi_123","amount":3500,"status":"x","metadata":{"order_id":%q}}}}`,
		eventType, orderID,
	))
}

func TestReconciler_SucceededCouplesPaymentAndOrder(t *testing.T) {
	st := store.NewMemoryStore()
	orderID, _ := seedOrderWithPayment(t, st)
	r := newTestReconciler(t, st)
	ctx := context.Background()

	body := eventBody("payment_intent.succeeded", orderID)
	res := r.Process(ctx, signedHeader(body, testSecret, r.now()), body)
	if !res.Success || res.OrderID != orderID {
		t.Fatalf("expected success, got %+v", res)
	}

	payment, _ := st.GetPaymentByOrder(ctx, orderID)
	order, _ := st.GetOrder(ctx, orderID)
	if payment.Status != model.PaymentCompleted || order.Status != model.OrderConfirmed {
		t.Fatalf("expected coupled completed/confirmed, got payment=%s order=%s", payment.Status, order.Status)
	}

	// Redelivery is a no-op.
	res2 := r.Process(ctx, signedHeader(body, testSecret, r.now()), body)
	if !res2.Success || res2.Message != "already reconciled" {
		t.Fatalf("expected redelivery no-op, got %+v", res2)
	}
}

func TestReconciler_FailedCancelsOrder(t *testing.T) {
	st := store.NewMemoryStore()
	orderID, _ := seedOrderWithPayment(t, st)
	r := newTestReconciler(t, st)
	ctx := context.Background()

	body := eventBody("payment_intent.payment_failed", orderID)
	res := r.Process(ctx, signedHeader(body, testSecret, r.now()), body)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	payment, _ := st.GetPaymentByOrder(ctx, orderID)
	order, _ := st.GetOrder(ctx, orderID)
	if payment.Status != model.PaymentFailed || order.Status != model.OrderCancelled {
		t.Fatalf("expected coupled failed/cancelled, got payment=%s order=%s", payment.Status, order.Status)
	}
}

// spyPaymentStore records the coupled update call without applying it.
type spyPaymentStore struct {
	payment *model.Payment
	calls   []string
}

func (s *spyPaymentStore) GetPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error) {
	if s.payment == nil {
		return nil, store.ErrNotFound
	}
	return s.payment, nil
}

func (s *spyPaymentStore) UpdatePaymentAndOrderStatus(ctx context.Context, paymentID string, ps model.PaymentStatus, orderID string, os model.OrderStatus) error {
	s.calls = append(s.calls, fmt.Sprintf("%s=%s/%s=%s", paymentID, ps, orderID, os))
	return nil
}

func TestReconciler_SingleCoupledWrite(t *testing.T) {
	spy := &spyPaymentStore{payment: &model.Payment{ID: "pay-1", OrderID: "ord-1", Status: model.PaymentPending}}
	r := newTestReconciler(t, spy)

	body := eventBody("payment_intent.succeeded", "ord-1")
	res := r.Process(context.Background(), signedHeader(body, testSecret, r.now()), body)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(spy.calls) != 1 || spy.calls[0] != "pay-1=completed/ord-1=confirmed" {
		t.Fatalf("expected exactly one coupled write, got %+v", spy.calls)
	}
}

func TestReconciler_UnknownEventIgnored(t *testing.T) {
	spy := &spyPaymentStore{}
	r := newTestReconciler(t, spy)

	body := []byte(`{"type":"charge.refund.updated","data":{"object":{"id":"re_1"}}}`)
	res := r.Process(context.Background(), signedHeader(body, testSecret, r.now()), body)
	if !res.Success || !res.Ignored {
		t.Fatalf("expected accepted-and-ignored, got %+v", res)
	}
	if len(spy.calls) != 0 {
		t.Fatal("ignored events must not write")
	}
}

func TestReconciler_BadSignatureHasNoSideEffects(t *testing.T) {
	spy := &spyPaymentStore{payment: &model.Payment{ID: "pay-1", OrderID: "ord-1", Status: model.PaymentPending}}
	r := newTestReconciler(t, spy)

	body := eventBody("payment_intent.succeeded", "ord-1")
	res := r.Process(context.Background(), "t=1,v1=00", body)
	if res.Success {
		t.Fatalf("expected rejection, got %+v", res)
	}
	if len(spy.calls) != 0 {
		t.Fatal("signature failure must not write")
	}

	if !errors.Is(VerifyStripeSignature(body, "t=1,v1=00", testSecret, time.Minute, r.now()), ErrInvalidSignature) {
		t.Fatal("expected invalid signature classification")
	}
}
