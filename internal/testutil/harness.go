package testutil

import (
	"log/slog"
	"os"

	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/reconcile"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
)

// Harness wires the real services over the in-memory stores.
type Harness struct {
	Logger    *slog.Logger
	Orders    *OrderStore
	Payments  *PaymentStore
	Conflicts *ConflictStore
	Events    *EventLog
	Gateway   *Gateway
	Published *Recorder

	OrderService   *order.Service
	PaymentService *payment.Service
	ReviewService  *review.Service
	Engine         *reconcile.Engine
}

func NewHarness(config reconcile.Config) *Harness {
	h := &Harness{
		Logger:    slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
		Orders:    NewOrderStore(),
		Payments:  NewPaymentStore(),
		Conflicts: NewConflictStore(),
		Events:    NewEventLog(),
		Gateway:   NewGateway(),
		Published: &Recorder{},
	}
	h.OrderService = order.NewService(h.Orders, h.Gateway, []string{"INR"}, h.Logger)
	h.PaymentService = payment.NewService(h.Payments, h.Gateway, h.Published, h.Logger)
	h.ReviewService = review.NewService(h.Conflicts, h.Published, h.Logger)
	h.Engine = reconcile.NewEngine(h.OrderService, h.PaymentService, h.ReviewService, h.Gateway, h.Events, h.Published, config, h.Logger)
	return h
}
