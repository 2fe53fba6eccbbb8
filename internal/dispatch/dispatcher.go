// Package dispatch routes verified webhook events to the handler for their
// event type.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/martincostello/costellobot-sub000/internal/observability"
	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// Handler processes one event type.
type Handler interface {
	Handle(ctx context.Context, event *webhook.Event) error
}

// Dispatcher validates that an event belongs to the configured installation
// and invokes the handler registered for its event type. Event types
// without a handler resolve to a no-op.
type Dispatcher struct {
	installationTargetID string
	handlers             map[string]Handler
	logger               *slog.Logger
}

// New builds a dispatcher over a static handler map.
func New(installationTargetID string, handlers map[string]Handler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		installationTargetID: installationTargetID,
		handlers:             handlers,
		logger:               logger,
	}
}

// Dispatch routes one event. Events for a different installation are logged
// and dropped without error; handler failures are logged with the delivery
// id and returned so the caller can decide redelivery semantics.
func (d *Dispatcher) Dispatch(ctx context.Context, event *webhook.Event) error {
	ctx, span := observability.StartDispatchSpan(ctx, event.Headers.Event, event.Headers.Delivery)
	defer span.End()
	ctx = observability.WithDeliveryID(ctx, event.Headers.Delivery)

	if d.installationTargetID != "" && event.Headers.InstallationTargetID != d.installationTargetID {
		d.logger.InfoContext(ctx, "dropping event for another installation",
			"delivery", event.Headers.Delivery,
			"installation_target_id", event.Headers.InstallationTargetID)
		return nil
	}

	handler, ok := d.handlers[event.Headers.Event]
	if !ok {
		d.logger.DebugContext(ctx, "no handler registered for event type",
			"delivery", event.Headers.Delivery,
			"event", event.Headers.Event)
		return nil
	}

	if err := handler.Handle(ctx, event); err != nil {
		span.RecordError(err)
		d.logger.ErrorContext(ctx, "handler failed",
			"delivery", event.Headers.Delivery,
			"event", event.Headers.Event,
			"action", event.Action,
			"error", err)
		return fmt.Errorf("handling %s delivery %s: %w", event.Headers.Event, event.Headers.Delivery, err)
	}
	return nil
}

// Consume drains the local in-memory queue, dispatching each event in turn.
// Handler failures are logged and the loop continues with the next item;
// the in-memory path has no redelivery.
func (d *Dispatcher) Consume(ctx context.Context, dequeue func(context.Context) (*webhook.Event, bool)) {
	for {
		event, ok := dequeue(ctx)
		if !ok {
			return
		}
		// Dispatch already logged any failure.
		_ = d.Dispatch(ctx, event)
	}
}
