package testutil

import (
	"context"
	"sync"

	"github.com/frahmantamala/razorpay-reconciliation/internal/core/events"
)

// Recorder captures published events; it serves both publisher shapes.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (r *Recorder) Publish(ctx context.Context, e events.Event) error {
	return r.PublishSync(ctx, e)
}

func (r *Recorder) PublishSync(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []events.Event {
	var out []events.Event
	for _, e := range r.Events() {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
