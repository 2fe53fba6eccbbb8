// Package bus is the optional durable hand-off: verified webhook events are
// published to a broker as CloudEvents and consumed by a separate worker
// that feeds the same dispatcher, giving at-least-once, multi-instance
// processing.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

const (
	// EnvelopeType tags every message published by this system.
	EnvelopeType = "com.costellobot.webhook"
	// EnvelopeSubject is the fixed subject tag consumers validate.
	EnvelopeSubject = "github-webhook"
	// EnvelopeContentType is the fixed content type of the envelope body.
	EnvelopeContentType = "application/json"

	// publisherTag identifies the publishing component in the source URI.
	publisherTag = "costellobot/gateway"

	// compressedExtension marks envelopes whose body was gzip-compressed
	// to fit the provider size ceiling.
	compressedExtension = "compressed"

	// maxEnvelopeBytes is the provider's message size ceiling.
	maxEnvelopeBytes = 256 << 10

	publishTimeout = 3 * time.Second
)

// Envelope is the broker wire contract: the delivery's raw headers and the
// body exactly as received.
type Envelope struct {
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body"`
}

// Bridge publishes verified webhook events to the broker.
type Bridge struct {
	client cloudevents.Client
	logger *slog.Logger
}

// NewBridge builds a publisher targeting the broker endpoint.
func NewBridge(endpoint string, logger *slog.Logger) (*Bridge, error) {
	protocol, err := cloudevents.NewHTTP(cloudevents.WithTarget(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create broker transport: %w", err)
	}
	client, err := cloudevents.NewClient(protocol, cloudevents.WithTimeNow())
	if err != nil {
		return nil, fmt.Errorf("failed to create broker client: %w", err)
	}
	return &Bridge{client: client, logger: logger}, nil
}

// Publish serializes the event into the broker envelope and sends it. The
// event's delivery id becomes the message id so consumers can deduplicate
// redeliveries. Oversized bodies are transparently compressed; if still too
// large the publish is skipped with a warning rather than failed, because
// the local queue path already ran. Other publish failures are returned to
// the caller.
func (b *Bridge) Publish(ctx context.Context, event *webhook.Event) error {
	data, err := json.Marshal(Envelope{
		Headers: event.RawHeaders,
		Body:    string(event.RawPayload),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize broker envelope: %w", err)
	}

	message := cloudevents.NewEvent()
	message.SetID(event.Headers.Delivery)
	message.SetType(EnvelopeType)
	message.SetSubject(EnvelopeSubject)
	message.SetSource(publisherTag)

	if len(data) > maxEnvelopeBytes {
		compressed, err := compress(data)
		if err != nil {
			return fmt.Errorf("failed to compress broker envelope: %w", err)
		}
		if len(compressed) > maxEnvelopeBytes {
			b.logger.WarnContext(ctx, "webhook payload exceeds the broker size ceiling even after compression; skipping publish",
				"delivery", event.Headers.Delivery,
				"event", event.Headers.Event,
				"size", len(data),
				"compressed_size", len(compressed))
			return nil
		}
		message.SetExtension(compressedExtension, "gzip")
		data = compressed
	}

	if err := message.SetData(EnvelopeContentType, data); err != nil {
		return fmt.Errorf("failed to attach broker envelope: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if result := b.client.Send(sendCtx, message); cloudevents.IsUndelivered(result) {
		return fmt.Errorf("failed to publish delivery %s: %w", event.Headers.Delivery, result)
	}
	return nil
}
