package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/frahmantamala/razorpay-reconciliation/internal"
	"github.com/frahmantamala/razorpay-reconciliation/internal/razorpay"
)

// Gateway is a scriptable stand-in for the provider REST client.
type Gateway struct {
	mu       sync.Mutex
	orders   map[string]*razorpay.Order
	payments map[string]razorpay.Payment
	refunds  map[string][]razorpay.Refund
	seq      int

	Refunds   []razorpay.Refund
	CreateErr error
	FetchErr  error
	RefundErr error
}

func NewGateway() *Gateway {
	return &Gateway{
		orders:   make(map[string]*razorpay.Order),
		payments: make(map[string]razorpay.Payment),
		refunds:  make(map[string][]razorpay.Refund),
	}
}

func (g *Gateway) SetOrder(o razorpay.Order) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.orders[o.ID] = &o
}

func (g *Gateway) SetPayment(p razorpay.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

// AddRefund makes r visible to FetchPaymentRefunds.
func (g *Gateway) AddRefund(r razorpay.Refund) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds[r.PaymentID] = append(g.refunds[r.PaymentID], r)
}

func (g *Gateway) CreateOrder(_ context.Context, req razorpay.OrderRequest) (*razorpay.Order, error) {
	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	o := &razorpay.Order{
		ID:       fmt.Sprintf("order_test%04d", g.seq),
		Entity:   "order",
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
		Status:   razorpay.OrderStatusCreated,
	}
	g.orders[o.ID] = o
	return o, nil
}

func (g *Gateway) FetchOrder(_ context.Context, gatewayOrderID string) (*razorpay.Order, error) {
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	o, ok := g.orders[gatewayOrderID]
	if !ok {
		return nil, internal.ErrProviderRejected.WithMessage("order %s does not exist", gatewayOrderID)
	}
	c := *o
	return &c, nil
}

func (g *Gateway) FetchOrderPayments(_ context.Context, gatewayOrderID string) ([]razorpay.Payment, error) {
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []razorpay.Payment
	for _, p := range g.payments {
		if p.OrderID == gatewayOrderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *Gateway) FetchPayment(_ context.Context, gatewayPaymentID string) (*razorpay.Payment, error) {
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[gatewayPaymentID]
	if !ok {
		return nil, internal.ErrProviderRejected.WithMessage("payment %s does not exist", gatewayPaymentID)
	}
	return &p, nil
}

func (g *Gateway) FetchPaymentRefunds(_ context.Context, gatewayPaymentID string) ([]razorpay.Refund, error) {
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]razorpay.Refund(nil), g.refunds[gatewayPaymentID]...), nil
}

func (g *Gateway) RefundPayment(_ context.Context, gatewayPaymentID string, req razorpay.RefundRequest) (*razorpay.Refund, error) {
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	r := razorpay.Refund{
		ID:        fmt.Sprintf("rfnd_test%04d", g.seq),
		Entity:    "refund",
		Amount:    req.Amount,
		PaymentID: gatewayPaymentID,
		Status:    "processed",
	}
	g.Refunds = append(g.Refunds, r)
	g.refunds[gatewayPaymentID] = append(g.refunds[gatewayPaymentID], r)
	return &r, nil
}
