package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/datamodel/reconciliation"
)

type EventLog struct {
	mu     sync.Mutex
	events map[string]*reconciliation.Event
	Err    error
}

func NewEventLog() *EventLog {
	return &EventLog{events: make(map[string]*reconciliation.Event)}
}

func eventKey(source, idempotencyKey string) string {
	return source + "\x00" + idempotencyKey
}

func (l *EventLog) Begin(_ context.Context, e *reconciliation.Event) (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := eventKey(e.Source, e.IdempotencyKey)
	if stored, ok := l.events[key]; ok {
		return stored.ProcessedAt != nil, nil
	}
	c := *e
	l.events[key] = &c
	return false, nil
}

func (l *EventLog) Complete(_ context.Context, source, idempotencyKey, outcome string, at time.Time) error {
	if l.Err != nil {
		return l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.events[eventKey(source, idempotencyKey)]; ok {
		e.Outcome = &outcome
		e.ProcessedAt = &at
	}
	return nil
}

func (l *EventLog) ListByOrder(_ context.Context, gatewayOrderID string, limit int) ([]reconciliation.Event, error) {
	var out []reconciliation.Event
	for _, e := range l.All() {
		if e.GatewayOrderID != nil && *e.GatewayOrderID == gatewayOrderID {
			out = append(out, e)
		}
	}
	return page(out, 0, limit), nil
}

// All returns the recorded events in arrival order.
func (l *EventLog) All() []reconciliation.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]reconciliation.Event, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}
