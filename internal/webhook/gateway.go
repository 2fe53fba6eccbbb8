package webhook

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/martincostello/costellobot-sub000/internal/queue"
)

const (
	jsonMediaType   = "application/json"
	maxPayloadBytes = 25 << 20
)

// Publisher advances a verified event onto the durable path.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Gateway terminates webhook HTTP deliveries: it verifies content type and
// signature, parses the delivery, classifies it and hands it to the local
// queue and, for well-known events, the durable path.
type Gateway struct {
	path      string
	secret    string
	queue     *queue.Queue[*Event]
	publisher Publisher
	logger    *slog.Logger
}

// NewGateway builds a gateway. publisher may be nil when the durable path
// is disabled.
func NewGateway(path, secret string, events *queue.Queue[*Event], publisher Publisher, logger *slog.Logger) *Gateway {
	if strings.TrimSpace(path) == "" {
		path = "/github-webhook"
	}
	return &Gateway{
		path:      path,
		secret:    secret,
		queue:     events,
		publisher: publisher,
		logger:    logger,
	}
}

// RegisterRoutes attaches the webhook endpoint.
func (g *Gateway) RegisterRoutes(e *echo.Echo) {
	e.POST(g.path, g.handle)
}

func (g *Gateway) handle(c echo.Context) error {
	request := c.Request()
	ctx := request.Context()

	mediaType, _, err := mime.ParseMediaType(request.Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != jsonMediaType {
		return c.String(http.StatusBadRequest, "unexpected content type")
	}

	body, err := io.ReadAll(io.LimitReader(request.Body, maxPayloadBytes))
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid payload")
	}

	if err := ValidateSignature(body, g.secret, request.Header.Get(SignatureHeader)); err != nil {
		g.logger.WarnContext(ctx, "rejected webhook delivery",
			"delivery", request.Header.Get(DeliveryHeader),
			"error", err)
		return c.String(http.StatusBadRequest, "invalid signature")
	}

	event, err := NewEvent(request.Header, body)
	if err != nil {
		g.logger.WarnContext(ctx, "failed to parse webhook delivery",
			"delivery", request.Header.Get(DeliveryHeader),
			"error", err)
		return c.String(http.StatusBadRequest, "invalid payload")
	}

	// The local queue records every verified delivery, well-known or not,
	// so late observers can replay recent history.
	g.queue.Enqueue(event)

	if g.publisher != nil && IsWellKnown(event.Headers.Event, event.Action) {
		if err := g.publisher.Publish(ctx, event); err != nil {
			g.logger.ErrorContext(ctx, "failed to publish webhook event",
				"delivery", event.Headers.Delivery,
				"event", event.Headers.Event,
				"error", err)
			return echo.NewHTTPError(http.StatusInternalServerError)
		}
	} else if g.publisher != nil {
		g.logger.DebugContext(ctx, "event is not well-known; not advancing to the durable path",
			"delivery", event.Headers.Delivery,
			"event", event.Headers.Event,
			"action", event.Action)
	}

	// Downstream outcomes are asynchronous; the platform only needs the
	// delivery acknowledged.
	return c.NoContent(http.StatusOK)
}
