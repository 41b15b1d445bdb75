package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewaypayment"
	"github.com/frahmantamala/razorpay-reconciliation/internal/payment"
)

type PaymentStore struct {
	mu       sync.Mutex
	payments map[string]*gatewaypayment.GatewayPayment
	refunds  map[string]*gatewaypayment.GatewayRefund
	nextID   int64
	Err      error
}

func NewPaymentStore() *PaymentStore {
	return &PaymentStore{
		payments: make(map[string]*gatewaypayment.GatewayPayment),
		refunds:  make(map[string]*gatewaypayment.GatewayRefund),
	}
}

func clonePayment(p *gatewaypayment.GatewayPayment) *gatewaypayment.GatewayPayment {
	c := *p
	if p.Notes != nil {
		c.Notes = make(map[string]interface{}, len(p.Notes))
		for k, v := range p.Notes {
			c.Notes[k] = v
		}
	}
	return &c
}

func (s *PaymentStore) Seed(p *gatewaypayment.GatewayPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := clonePayment(p)
	c.ID = s.nextID
	if c.Version == 0 {
		c.Version = 1
	}
	s.payments[c.GatewayPaymentID] = c
}

func (s *PaymentStore) Snapshot(gatewayPaymentID string) *gatewaypayment.GatewayPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[gatewayPaymentID]
	if !ok {
		return nil
	}
	return clonePayment(p)
}

func (s *PaymentStore) RefundCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refunds)
}

func (s *PaymentStore) GetByGatewayPaymentID(_ context.Context, gatewayPaymentID string) (*gatewaypayment.GatewayPayment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Snapshot(gatewayPaymentID), nil
}

func (s *PaymentStore) Create(_ context.Context, p *gatewaypayment.GatewayPayment) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.GatewayPaymentID]; exists {
		return false, nil
	}
	s.nextID++
	p.ID = s.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	s.payments[p.GatewayPaymentID] = clonePayment(p)
	return true, nil
}

func (s *PaymentStore) UpdateVersioned(_ context.Context, p *gatewaypayment.GatewayPayment, expectedVersion int) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(p, expectedVersion), nil
}

func (s *PaymentStore) updateLocked(p *gatewaypayment.GatewayPayment, expectedVersion int) bool {
	current, ok := s.payments[p.GatewayPaymentID]
	if !ok || current.Version != expectedVersion {
		return false
	}
	c := clonePayment(p)
	c.ID = current.ID
	c.CreatedAt = current.CreatedAt
	c.UpdatedAt = time.Now()
	s.payments[p.GatewayPaymentID] = c
	return true
}

func (s *PaymentStore) HasCapturedPayment(_ context.Context, gatewayOrderID, excludePaymentID string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.payments {
		if id == excludePaymentID || p.GatewayOrderID != gatewayOrderID {
			continue
		}
		if payment.Status(p.Status).IsCaptured() {
			return true, nil
		}
	}
	return false, nil
}

func (s *PaymentStore) ListByGatewayOrderID(_ context.Context, gatewayOrderID string) ([]*gatewaypayment.GatewayPayment, error) {
	return s.List(context.Background(), payment.ListFilter{GatewayOrderID: gatewayOrderID})
}

func (s *PaymentStore) List(_ context.Context, filter payment.ListFilter) ([]*gatewaypayment.GatewayPayment, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gatewaypayment.GatewayPayment
	for _, p := range s.payments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.GatewayOrderID != "" && p.GatewayOrderID != filter.GatewayOrderID {
			continue
		}
		out = append(out, clonePayment(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *PaymentStore) GetRefund(_ context.Context, gatewayRefundID string) (*gatewaypayment.GatewayRefund, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[gatewayRefundID]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (s *PaymentStore) ApplyRefund(_ context.Context, refund *gatewaypayment.GatewayRefund, p *gatewaypayment.GatewayPayment, expectedVersion int) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.refunds[refund.GatewayRefundID]; exists {
		return false, payment.ErrDuplicateRefund
	}
	if !s.updateLocked(p, expectedVersion) {
		return false, nil
	}
	c := *refund
	c.CreatedAt = time.Now()
	s.refunds[refund.GatewayRefundID] = &c
	return true, nil
}
