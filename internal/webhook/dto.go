package webhook

import (
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
)

const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventOrderPaid         = "order.paid"
	EventRefundProcessed   = "refund.processed"
)

// Envelope is the provider's webhook body.
type Envelope struct {
	Entity    string   `json:"entity"`
	AccountID string   `json:"account_id"`
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	Payload   Payload  `json:"payload"`
	CreatedAt int64    `json:"created_at"`
}

type Payload struct {
	Payment *PaymentEntity `json:"payment,omitempty"`
	Order   *OrderEntity   `json:"order,omitempty"`
	Refund  *RefundEntity  `json:"refund,omitempty"`
}

type PaymentEntity struct {
	Entity razorpay.Payment `json:"entity"`
}

type OrderEntity struct {
	Entity razorpay.Order `json:"entity"`
}

type RefundEntity struct {
	Entity razorpay.Refund `json:"entity"`
}

func (e Envelope) payment() *razorpay.Payment {
	if e.Payload.Payment == nil || e.Payload.Payment.Entity.ID == "" {
		return nil
	}
	return &e.Payload.Payment.Entity
}

func (e Envelope) refund() *razorpay.Refund {
	if e.Payload.Refund == nil || e.Payload.Refund.Entity.ID == "" {
		return nil
	}
	return &e.Payload.Refund.Entity
}

func (e Envelope) orderID() string {
	if p := e.payment(); p != nil && p.OrderID != "" {
		return p.OrderID
	}
	if e.Payload.Order != nil {
		return e.Payload.Order.Entity.ID
	}
	return ""
}

func (e Envelope) paymentID() string {
	if p := e.payment(); p != nil {
		return p.ID
	}
	if r := e.refund(); r != nil {
		return r.PaymentID
	}
	return ""
}

type AckResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome,omitempty"`
}
