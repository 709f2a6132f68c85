package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Handler processes one event. A non-nil error fails the whole emission.
type Handler func(ctx context.Context, event Event) error

// Emitter is what repositories depend on.
type Emitter interface {
	EmitAsync(ctx context.Context, event Event) error
}

// HandlerError reports that at least one handler failed for an event.
type HandlerError struct {
	Kind Kind
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event handler failed for %s: %v", e.Kind, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Bus is an in-process publish/subscribe registry. It has no persistence:
// handlers that need durability write to the store themselves.
type Bus struct {
	handlers map[Kind][]Handler
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

// On registers an untyped handler for kind. Prefer Subscribe.
func (b *Bus) On(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Subscribe registers a handler for the event type E. The kind is taken from
// E's zero value, so a handler can never be bound to the wrong payload.
func Subscribe[E Event](b *Bus, h func(ctx context.Context, event E) error) {
	var zero E
	b.On(zero.Kind(), func(ctx context.Context, event Event) error {
		typed, ok := event.(E)
		if !ok {
			return fmt.Errorf("event %s has payload %T", event.Kind(), event)
		}
		return h(ctx, typed)
	})
}

// EmitAsync runs every handler registered for the event's kind one after
// another, in registration order, and returns once the last has finished.
// A failing handler does not stop the ones after it; all failures are
// joined into a single *HandlerError.
func (b *Bus) EmitAsync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.Kind()]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	eventsEmittedTotal.WithLabelValues(event.Kind().String()).Inc()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		handlerFailuresTotal.WithLabelValues(event.Kind().String()).Inc()
		return &HandlerError{Kind: event.Kind(), Err: err}
	}
	return nil
}

// Emit is fire-and-forget: handlers run in the background, detached from
// ctx's cancellation, and failures are only logged.
func (b *Bus) Emit(ctx context.Context, event Event) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := b.EmitAsync(detached, event); err != nil {
			b.logger.Error("background event handler failed",
				slog.String("event", event.Kind().String()),
				slog.String("error", err.Error()))
		}
	}()
}
