// Package broadcast carries committed events from the aggregate engines to
// in-process consumers. Delivery is synchronous: handlers for a namespace run
// in registration order, so a single subscriber always observes events for one
// aggregate id in version order.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/snackstand/catalog-services/internal/shared/domain/aggregate"
	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// Handler consumes one committed event. A handler error does not stop
// delivery to the remaining handlers.
type Handler func(ctx context.Context, evt *events.Envelope) error

// Bus is an in-process publisher with per-namespace subscriptions.
// Namespaces mirror the aggregate kinds ("snack", "machine", ...); error
// events travel on "<namespace>.errors".
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

var _ aggregate.Publisher = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for every event published on the namespace.
// Subscriptions made after events were published do not replay them; catch-up
// is the synchronizer's job.
func (b *Bus) Subscribe(namespace string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[namespace] = append(b.handlers[namespace], h)
}

// SubscribeErrors registers a handler for the namespace's error channel.
func (b *Bus) SubscribeErrors(namespace string, h Handler) {
	b.Subscribe(namespace+".errors", h)
}

func (b *Bus) Publish(ctx context.Context, namespace string, evt *events.Envelope) error {
	return b.dispatch(ctx, namespace, evt)
}

func (b *Bus) PublishError(ctx context.Context, namespace string, evt *events.Envelope) error {
	return b.dispatch(ctx, namespace+".errors", evt)
}

func (b *Bus) dispatch(ctx context.Context, channel string, evt *events.Envelope) error {
	b.mu.RLock()
	hs := b.handlers[channel]
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := h(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fanout publishes every event to each wrapped publisher. All publishers are
// attempted even when an earlier one fails.
type Fanout struct {
	publishers []aggregate.Publisher
}

var _ aggregate.Publisher = (*Fanout)(nil)

func NewFanout(publishers ...aggregate.Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

func (f *Fanout) Publish(ctx context.Context, namespace string, evt *events.Envelope) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, namespace, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) PublishError(ctx context.Context, namespace string, evt *events.Envelope) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.PublishError(ctx, namespace, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
