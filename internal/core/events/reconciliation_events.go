package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCaptured  = "reconciliation.payment_captured"
	EventTypePaymentFailed    = "reconciliation.payment_failed"
	EventTypePaymentRefunded  = "reconciliation.payment_refunded"
	EventTypeStateConflict    = "reconciliation.state_conflict"
	EventTypeLocalOrderLinked = "reconciliation.local_order_linked"
)

// PaymentCapturedEvent is published exactly once per gateway order, by the
// caller that moved the order to paid.
type PaymentCapturedEvent struct {
	BaseEvent
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	LocalOrderRef    string `json:"local_order_ref"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	Source           string `json:"source"`
}

func NewPaymentCapturedEvent(orderID, paymentID, localOrderRef string, amount int64, currency, method, source string) *PaymentCapturedEvent {
	return &PaymentCapturedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCaptured,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway_order_id":   orderID,
				"gateway_payment_id": paymentID,
				"local_order_ref":    localOrderRef,
				"amount":             amount,
				"currency":           currency,
				"method":             method,
				"source":             source,
			},
		},
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		LocalOrderRef:    localOrderRef,
		Amount:           amount,
		Currency:         currency,
		Method:           method,
		Source:           source,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	LocalOrderRef    string `json:"local_order_ref"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	Source           string `json:"source"`
}

func NewPaymentFailedEvent(orderID, paymentID, localOrderRef, errorCode, errorDescription, source string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway_order_id":   orderID,
				"gateway_payment_id": paymentID,
				"local_order_ref":    localOrderRef,
				"error_code":         errorCode,
				"error_description":  errorDescription,
				"source":             source,
			},
		},
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		LocalOrderRef:    localOrderRef,
		ErrorCode:        errorCode,
		ErrorDescription: errorDescription,
		Source:           source,
	}
}

type PaymentRefundedEvent struct {
	BaseEvent
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewayRefundID  string `json:"gateway_refund_id"`
	Amount           int64  `json:"amount"`
	AmountRefunded   int64  `json:"amount_refunded"`
	FullyRefunded    bool   `json:"fully_refunded"`
}

func NewPaymentRefundedEvent(paymentID, refundID string, amount, amountRefunded int64, fully bool) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRefunded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway_payment_id": paymentID,
				"gateway_refund_id":  refundID,
				"amount":             amount,
				"amount_refunded":    amountRefunded,
				"fully_refunded":     fully,
			},
		},
		GatewayPaymentID: paymentID,
		GatewayRefundID:  refundID,
		Amount:           amount,
		AmountRefunded:   amountRefunded,
		FullyRefunded:    fully,
	}
}

type StateConflictEvent struct {
	BaseEvent
	ConflictID       int64  `json:"conflict_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	LocalStatus      string `json:"local_status"`
	ReportedStatus   string `json:"reported_status"`
	Source           string `json:"source"`
}

func NewStateConflictEvent(conflictID int64, orderID, paymentID, localStatus, reportedStatus, source string) *StateConflictEvent {
	return &StateConflictEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeStateConflict,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"conflict_id":        conflictID,
				"gateway_order_id":   orderID,
				"gateway_payment_id": paymentID,
				"local_status":       localStatus,
				"reported_status":    reportedStatus,
				"source":             source,
			},
		},
		ConflictID:       conflictID,
		GatewayOrderID:   orderID,
		GatewayPaymentID: paymentID,
		LocalStatus:      localStatus,
		ReportedStatus:   reportedStatus,
		Source:           source,
	}
}

// LocalOrderLinkedEvent fires when the platform attaches its order to a
// gateway order that was already paid, so the side effect can still run.
type LocalOrderLinkedEvent struct {
	BaseEvent
	GatewayOrderID string `json:"gateway_order_id"`
	LocalOrderRef  string `json:"local_order_ref"`
	OrderStatus    string `json:"order_status"`
}

func NewLocalOrderLinkedEvent(orderID, localOrderRef, orderStatus string) *LocalOrderLinkedEvent {
	return &LocalOrderLinkedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeLocalOrderLinked,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"gateway_order_id": orderID,
				"local_order_ref":  localOrderRef,
				"order_status":     orderStatus,
			},
		},
		GatewayOrderID: orderID,
		LocalOrderRef:  localOrderRef,
		OrderStatus:    orderStatus,
	}
}
