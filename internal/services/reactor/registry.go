package reactor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/snackstand/catalog-services/internal/shared/domain/events"
)

// EventHandler reacts to one committed event.
type EventHandler interface {
	Handle(ctx context.Context, event *events.Envelope) error
}

// HandlerRegistry dispatches events to appropriate handlers based on event_type prefix.
type HandlerRegistry struct {
	handlers map[string]EventHandler
	logger   *slog.Logger
}

// NewHandlerRegistry creates a new handler registry.
func NewHandlerRegistry(logger *slog.Logger) *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]EventHandler),
		logger:   logger.With("component", "handler-registry"),
	}
}

// Register adds a handler for events with the given prefix.
func (r *HandlerRegistry) Register(prefix string, handler EventHandler) {
	r.handlers[prefix] = handler
	r.logger.Info("registered handler", "prefix", prefix)
}

// Dispatch routes an event to the appropriate handler.
func (r *HandlerRegistry) Dispatch(ctx context.Context, event *events.Envelope) error {
	for prefix, handler := range r.handlers {
		if strings.HasPrefix(event.EventType, prefix) {
			return handler.Handle(ctx, event)
		}
	}
	// No handler registered - log and skip (not an error)
	r.logger.Debug("no handler for event type", "event_type", event.EventType)
	return nil
}
