package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
	"github.com/frahmantamala/razorpay-reconciliation/internal/review"
)

type ConflictStore struct {
	mu        sync.Mutex
	conflicts map[int64]*reconciliation.StateConflict
	nextID    int64
	Err       error
}

func NewConflictStore() *ConflictStore {
	return &ConflictStore{conflicts: make(map[int64]*reconciliation.StateConflict)}
}

// All returns every stored conflict ordered by id.
func (s *ConflictStore) All() []*reconciliation.StateConflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*reconciliation.StateConflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *ConflictStore) Create(_ context.Context, c *reconciliation.StateConflict) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.conflicts[c.ID] = &cp
	return nil
}

func (s *ConflictStore) GetByID(_ context.Context, id int64) (*reconciliation.StateConflict, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *ConflictStore) FindOpen(_ context.Context, gatewayPaymentID, localStatus, reportedStatus string) (*reconciliation.StateConflict, error) {
	for _, c := range s.All() {
		if c.GatewayPaymentID == gatewayPaymentID && c.LocalStatus == localStatus &&
			c.ReportedStatus == reportedStatus && c.Status == string(review.StatusOpen) {
			return c, nil
		}
	}
	return nil, s.Err
}

func (s *ConflictStore) List(_ context.Context, filter review.ListFilter) ([]*reconciliation.StateConflict, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*reconciliation.StateConflict
	for _, c := range s.All() {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.GatewayOrderID != "" && c.GatewayOrderID != filter.GatewayOrderID {
			continue
		}
		out = append(out, c)
	}
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *ConflictStore) Resolve(_ context.Context, id int64, resolution string, resolvedBy int64, at time.Time) (bool, error) {
	if s.Err != nil {
		return false, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conflicts[id]
	if !ok || c.Status != string(review.StatusOpen) {
		return false, nil
	}
	c.Status = string(review.StatusResolved)
	c.Resolution = &resolution
	c.ResolvedBy = &resolvedBy
	c.ResolvedAt = &at
	c.UpdatedAt = time.Now()
	return true, nil
}
