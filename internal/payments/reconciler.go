package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chowline/internal/model"
)

// PaymentStore is the slice of the storage contract reconciliation needs.
// UpdatePaymentAndOrderStatus applies both status changes as one logical
// operation.
type PaymentStore interface {
	GetPaymentByOrder(ctx context.Context, orderID string) (*model.Payment, error)
	UpdatePaymentAndOrderStatus(ctx context.Context, paymentID string, ps model.PaymentStatus, orderID string, os model.OrderStatus) error
}

// Result is what reconciliation reports to the HTTP layer. Ignored is set
// for event types this endpoint does not consume; the sender still gets a
// 2xx so it stops retrying.
type Result struct {
	Success bool
	Message string
	OrderID string
	Ignored bool
}

// Reconciler consumes payment-intent webhook events and folds them into
// order state.
type Reconciler struct {
	store     PaymentStore
	secret    string
	tolerance time.Duration
	now       func() time.Time
	logf      func(format string, args ...any)
}

// NewReconciler wires a Reconciler for one webhook endpoint secret.
func NewReconciler(st PaymentStore, secret string, logf func(string, ...any)) *Reconciler {
	if logf == nil {
		logf = log.Printf
	}
	return &Reconciler{
		store:     st,
		secret:    secret,
		tolerance: DefaultTolerance,
		now:       time.Now,
		logf:      logf,
	}
}

// event is the wire shape of the provider's webhook envelope, reduced to the
// fields reconciliation reads.
type event struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string            `json:"id"`
			Amount   int64             `json:"amount"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Process verifies the signature and applies the event. Signature failures
// reject before any state change.
func (r *Reconciler) Process(ctx context.Context, signatureHeader string, raw []byte) Result {
	if err := VerifyStripeSignature(raw, signatureHeader, r.secret, r.tolerance, r.now()); err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("decode event: %v", err)}
	}

	var ps model.PaymentStatus
	var os model.OrderStatus
	switch ev.Type {
	case "payment_intent.succeeded":
		ps, os = model.PaymentCompleted, model.OrderConfirmed
	case "payment_intent.payment_failed":
		ps, os = model.PaymentFailed, model.OrderCancelled
	default:
		return Result{Success: true, Ignored: true, Message: fmt.Sprintf("event %q ignored", ev.Type)}
	}

	orderID := ev.Data.Object.Metadata["order_id"]
	if orderID == "" {
		return Result{Success: false, Message: "event has no order_id metadata"}
	}

	payment, err := r.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		return Result{Success: false, Message: fmt.Sprintf("lookup payment for order %s: %v", orderID, err)}
	}
	if payment.Status == ps {
		// Redelivered event; the coupled write already happened.
		return Result{Success: true, OrderID: orderID, Message: "already reconciled"}
	}

	if err := r.store.UpdatePaymentAndOrderStatus(ctx, payment.ID, ps, orderID, os); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("reconcile order %s: %v", orderID, err)}
	}
	r.logf("payments: order %s reconciled to payment=%s order=%s (intent %s)", orderID, ps, os, ev.Data.Object.ID)
	return Result{Success: true, OrderID: orderID, Message: "reconciled"}
}
