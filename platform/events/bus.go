package events

import (
	"context"
	"sync"

	"advisory_portal_backend/platform/logger"

	"go.uber.org/multierr"
)

// InMemoryBus is a simple in-process implementation of Bus. Handlers are
// keyed by event name; Publish dispatches on a goroutine per event,
// PublishSync runs handlers inline and collects their errors.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Compile-time check that InMemoryBus implements Bus.
var _ Bus = (*InMemoryBus)(nil)

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers asynchronously. Handler
// errors are logged, not returned; fire-and-forget semantics.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	for _, h := range b.snapshot(event.EventName()) {
		go func(h Handler) {
			if err := h.Handle(context.WithoutCancel(ctx), event); err != nil && b.log != nil {
				b.log.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}(h)
	}
}

// PublishSync dispatches the event to all handlers inline and returns the
// combined error. Used where the side effect must complete before the
// request returns.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var errs error
	for _, h := range b.snapshot(event.EventName()) {
		if err := h.Handle(ctx, event); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (b *InMemoryBus) snapshot(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[eventName]))
	copy(handlers, b.handlers[eventName])
	return handlers
}
