package platform

import "context"

// OrderSnapshot is the host platform's view of one of its orders.
type OrderSnapshot struct {
	Ref      string `json:"id"`
	Status   string `json:"status"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
	Email    string `json:"customer_email,omitempty"`
}

type MarkPaidRequest struct {
	Ref              string `json:"-"`
	OrderStatus      string `json:"status"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Amount           int64  `json:"amount,omitempty"`
	Currency         string `json:"currency,omitempty"`
	Method           string `json:"method,omitempty"`
}

// LocalOrders is the host platform's order API. MarkPaid must be idempotent
// per reference; the reconciler may repeat it after a late attach.
type LocalOrders interface {
	GetOrder(ctx context.Context, ref string) (*OrderSnapshot, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) error
	MarkFailed(ctx context.Context, ref, reason string) error
	GenerateInvoice(ctx context.Context, ref, invoiceStatus string) error
}
