package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"

	"github.com/martincostello/costellobot-sub000/internal/webhook"
)

// Sink receives deserialized webhook events from the broker.
type Sink interface {
	Dispatch(ctx context.Context, event *webhook.Event) error
}

// Consumer receives broker messages, validates and deserializes the
// envelope and feeds the dispatcher. A message is only completed after the
// dispatcher returns without error, so processing is at-least-once and
// handlers must be idempotent with respect to redelivery.
type Consumer struct {
	port   int
	sink   Sink
	logger *slog.Logger
}

// NewConsumer builds a consumer listening on the given port.
func NewConsumer(port int, sink Sink, logger *slog.Logger) *Consumer {
	return &Consumer{port: port, sink: sink, logger: logger}
}

// Run blocks receiving broker messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	protocol, err := cloudevents.NewHTTP(cloudevents.WithPort(c.port))
	if err != nil {
		return fmt.Errorf("failed to create consumer transport: %w", err)
	}
	client, err := cloudevents.NewClient(protocol)
	if err != nil {
		return fmt.Errorf("failed to create consumer client: %w", err)
	}

	c.logger.InfoContext(ctx, "message bus consumer listening", "port", c.port)
	if err := client.StartReceiver(ctx, c.Receive); err != nil && ctx.Err() == nil {
		return fmt.Errorf("message bus consumer stopped: %w", err)
	}
	return nil
}

// Receive handles one broker message. Malformed messages (wrong type,
// subject or content type) are rejected as fatal and never redelivered;
// dispatch failures leave the message uncompleted for redelivery.
func (c *Consumer) Receive(ctx context.Context, message cloudevents.Event) cloudevents.Result {
	if message.Type() != EnvelopeType || message.Subject() != EnvelopeSubject {
		c.logger.ErrorContext(ctx, "rejecting malformed broker message",
			"id", message.ID(),
			"type", message.Type(),
			"subject", message.Subject())
		return cehttp.NewResult(http.StatusBadRequest, "unexpected message type %q with subject %q", message.Type(), message.Subject())
	}
	if contentType := message.DataContentType(); contentType != EnvelopeContentType {
		c.logger.ErrorContext(ctx, "rejecting broker message with unexpected content type",
			"id", message.ID(),
			"content_type", contentType)
		return cehttp.NewResult(http.StatusBadRequest, "unexpected content type %q", contentType)
	}

	data := message.Data()
	if compressed, ok := message.Extensions()[compressedExtension]; ok && compressed == "gzip" {
		decompressed, err := decompress(data)
		if err != nil {
			c.logger.ErrorContext(ctx, "rejecting broker message with invalid compressed payload",
				"id", message.ID(),
				"error", err)
			return cehttp.NewResult(http.StatusBadRequest, "invalid compressed payload")
		}
		data = decompressed
	}

	event, err := decodeEnvelope(data)
	if err != nil {
		c.logger.ErrorContext(ctx, "rejecting undecodable broker message",
			"id", message.ID(),
			"error", err)
		return cehttp.NewResult(http.StatusBadRequest, "invalid envelope")
	}

	if err := c.sink.Dispatch(ctx, event); err != nil {
		// Not completed; the broker will redeliver.
		return cehttp.NewResult(http.StatusInternalServerError, "dispatch failed: %s", err)
	}
	return cloudevents.ResultACK
}

func decodeEnvelope(data []byte) (*webhook.Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to deserialize broker envelope: %w", err)
	}
	return webhook.NewEvent(http.Header(envelope.Headers), []byte(envelope.Body))
}
