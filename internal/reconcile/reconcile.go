package reconcile

import (
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
)

// Source names the channel a payment report arrived on.
type Source string

const (
	SourceCallback Source = "callback"
	SourceWebhook  Source = "webhook"
	SourceSync     Source = "sync"
)

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeConflict     Outcome = "conflict"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeUnknownOrder Outcome = "unknown_order"
	OutcomeUnhandled    Outcome = "unhandled"
)

// PaymentSnapshot is a payment as one source reported it.
type PaymentSnapshot struct {
	GatewayPaymentID string
	GatewayOrderID   string
	Amount           int64
	Currency         string
	Status           payment.Status
	Method           string
	Bank             string
	Wallet           string
	VPA              string
	CardID           string
	ErrorCode        string
	ErrorDescription string
	Notes            map[string]string
}

func SnapshotFromProvider(p razorpay.Payment) PaymentSnapshot {
	return PaymentSnapshot{
		GatewayPaymentID: p.ID,
		GatewayOrderID:   p.OrderID,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Status:           payment.Status(p.Status),
		Method:           p.Method,
		Bank:             p.Bank,
		Wallet:           p.Wallet,
		VPA:              p.VPA,
		CardID:           p.CardID,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		Notes:            p.Notes,
	}
}

func (s PaymentSnapshot) toPayment() *payment.GatewayPayment {
	return &payment.GatewayPayment{
		GatewayPaymentID: s.GatewayPaymentID,
		GatewayOrderID:   s.GatewayOrderID,
		Amount:           s.Amount,
		Currency:         s.Currency,
		Status:           s.Status,
		Method:           optional(s.Method),
		Bank:             optional(s.Bank),
		Wallet:           optional(s.Wallet),
		VPA:              optional(s.VPA),
		CardID:           optional(s.CardID),
		ErrorCode:        optional(s.ErrorCode),
		ErrorDescription: optional(s.ErrorDescription),
		Notes:            s.Notes,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Delivery is one inbound signal as it is written to the event log.
type Delivery struct {
	Source           Source
	EventType        string
	IdempotencyKey   string
	GatewayOrderID   string
	GatewayPaymentID string
	Payload          []byte
	SignatureValid   bool
}

type Result struct {
	Outcome  Outcome
	Order    *order.GatewayOrder
	Payment  *payment.GatewayPayment
	Conflict *review.Conflict
	// MarkedPaid is set only for the caller whose update moved the order to paid.
	MarkedPaid bool
}

type SyncReport struct {
	GatewayOrderID string        `json:"gateway_order_id"`
	OrderStatus    string        `json:"order_status"`
	ProviderStatus string        `json:"provider_status"`
	Payments       int           `json:"payments"`
	Applied        int           `json:"applied"`
	Ignored        int           `json:"ignored"`
	Conflicts      int           `json:"conflicts"`
	Refunds        int           `json:"refunds"`
	Expired        bool          `json:"expired"`
	Duration       time.Duration `json:"duration_ns"`
}

func (r *SyncReport) count(o Outcome) {
	switch o {
	case OutcomeApplied:
		r.Applied++
	case OutcomeConflict:
		r.Conflicts++
	default:
		r.Ignored++
	}
}
