// Package testutil holds in-memory repositories shared by service tests.
// Each store guards its state with a mutex so conditional updates behave
// like the SQL ones under concurrent callers.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/gatewayorder"
	"github.com/frahmantamala/razorpay-reconciliation/internal/order"
)

type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*gatewayorder.GatewayOrder
	nextID int64
	Err    error
}

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*gatewayorder.GatewayOrder)}
}

// Seed stores a copy of o as-is, defaulting its status to created.
func (s *OrderStore) Seed(o *gatewayorder.GatewayOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c := *o
	c.ID = s.nextID
	if c.Status == "" {
		c.Status = string(order.StatusCreated)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.orders[c.GatewayOrderID] = &c
}

// Snapshot returns a copy of the stored order or nil.
func (s *OrderStore) Snapshot(gatewayOrderID string) *gatewayorder.GatewayOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[gatewayOrderID]
	if !ok {
		return nil
	}
	c := *o
	return &c
}

func (s *OrderStore) Create(_ context.Context, o *gatewayorder.GatewayOrder) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	c := *o
	s.orders[o.GatewayOrderID] = &c
	return nil
}

func (s *OrderStore) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*gatewayorder.GatewayOrder, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Snapshot(gatewayOrderID), nil
}

func (s *OrderStore) AttachLocalOrder(_ context.Context, gatewayOrderID, localOrderRef string, statuses []string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[gatewayOrderID]
	if !ok || o.LocalOrderRef != nil || !contains(statuses, o.Status) {
		return false, nil
	}
	ref := localOrderRef
	o.LocalOrderRef = &ref
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *OrderStore) MarkPaid(_ context.Context, gatewayOrderID string, from []string, linked bool) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[gatewayOrderID]
	if !ok || !contains(from, o.Status) || (o.LocalOrderRef != nil) != linked {
		return false, nil
	}
	o.Status = "paid"
	o.UpdatedAt = time.Now()
	return true, nil
}

func (s *OrderStore) TransitionStatus(_ context.Context, gatewayOrderID string, from []string, to string) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[gatewayOrderID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			o.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *OrderStore) IncrementAttempts(_ context.Context, gatewayOrderID string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[gatewayOrderID]; ok {
		o.Attempts++
	}
	return nil
}

func (s *OrderStore) List(_ context.Context, filter order.ListFilter) ([]*gatewayorder.GatewayOrder, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gatewayorder.GatewayOrder
	for _, o := range s.orders {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.LocalOrderRef != "" && (o.LocalOrderRef == nil || *o.LocalOrderRef != filter.LocalOrderRef) {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *OrderStore) ListStale(_ context.Context, statuses []string, updatedBefore time.Time, limit int) ([]*gatewayorder.GatewayOrder, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*gatewayorder.GatewayOrder
	for _, o := range s.orders {
		if !contains(statuses, o.Status) || !o.UpdatedAt.Before(updatedBefore) {
			continue
		}
		c := *o
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return page(out, 0, limit), nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
