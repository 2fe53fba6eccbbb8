package webhook

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/martincostello/costellobot-sub000/internal/queue"
)

type capturingPublisher struct {
	events []*Event
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, event *Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGatewayServer(t *testing.T, secret string, publisher Publisher) (*echo.Echo, *queue.Queue[*Event]) {
	t.Helper()

	events := queue.New[*Event](queue.WebhookCapacity)
	gateway := NewGateway("/github-webhook", secret, events, publisher, discardLogger())

	e := echo.New()
	gateway.RegisterRoutes(e)
	return e, events
}

func deliver(e *echo.Echo, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/github-webhook", bytes.NewReader(body))
	for name, values := range header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func pushHeaders(body []byte, secret string) http.Header {
	header := http.Header{}
	header.Set(echo.HeaderContentType, "application/json")
	header.Set(DeliveryHeader, "delivery-1")
	header.Set(EventHeader, "push")
	header.Set(InstallationTargetIDHeader, "12345")
	if secret != "" {
		header.Set(SignatureHeader, Sign(body, secret))
	}
	return header
}

var pushBody = []byte(`{"ref":"refs/heads/main","commits":[]}`)

func TestGatewayAcceptsValidDelivery(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	publisher := &capturingPublisher{}
	e, events := newGatewayServer(t, secret, publisher)

	rec := deliver(e, pushBody, pushHeaders(pushBody, secret))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	history := events.History()
	if len(history) != 1 {
		t.Fatalf("queued %d events, want 1", len(history))
	}
	if history[0].Headers.Delivery != "delivery-1" {
		t.Fatalf("queued delivery = %q", history[0].Headers.Delivery)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(publisher.events))
	}
}

func TestGatewayAcceptsContentTypeWithCharset(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	e, _ := newGatewayServer(t, secret, nil)

	header := pushHeaders(pushBody, secret)
	header.Set(echo.HeaderContentType, "application/json; charset=utf-8")

	if rec := deliver(e, pushBody, header); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestGatewayRejectsWrongContentType(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	e, events := newGatewayServer(t, secret, nil)

	header := pushHeaders(pushBody, secret)
	header.Set(echo.HeaderContentType, "text/plain")

	if rec := deliver(e, pushBody, header); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if history := events.History(); len(history) != 0 {
		t.Fatalf("queued %d events for a rejected delivery", len(history))
	}
}

func TestGatewayRejectsMissingSignature(t *testing.T) {
	t.Parallel()

	e, events := newGatewayServer(t, "webhook-secret", nil)

	if rec := deliver(e, pushBody, pushHeaders(pushBody, "")); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if history := events.History(); len(history) != 0 {
		t.Fatalf("queued %d events for an unsigned delivery", len(history))
	}
}

func TestGatewayRejectsUnexpectedSignature(t *testing.T) {
	t.Parallel()

	e, events := newGatewayServer(t, "", nil)

	if rec := deliver(e, pushBody, pushHeaders(pushBody, "webhook-secret")); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if history := events.History(); len(history) != 0 {
		t.Fatalf("queued %d events for an unexpectedly signed delivery", len(history))
	}
}

func TestGatewayRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	e, events := newGatewayServer(t, "webhook-secret", nil)

	header := pushHeaders(pushBody, "other-secret")
	if rec := deliver(e, pushBody, header); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if history := events.History(); len(history) != 0 {
		t.Fatalf("queued %d events for a tampered delivery", len(history))
	}
}

func TestGatewayRejectsUnparsableEvent(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	e, events := newGatewayServer(t, secret, nil)

	body := []byte(`{"ref": broken`)
	header := pushHeaders(body, secret)

	if rec := deliver(e, body, header); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if history := events.History(); len(history) != 0 {
		t.Fatalf("queued %d events for an unparsable delivery", len(history))
	}
}

func TestGatewayDoesNotPublishUnknownEvents(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	publisher := &capturingPublisher{}
	e, events := newGatewayServer(t, secret, publisher)

	body := []byte(`{"action":"started"}`)
	header := pushHeaders(body, secret)
	header.Set(EventHeader, "watch")

	if rec := deliver(e, body, header); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if history := events.History(); len(history) != 1 {
		t.Fatalf("queued %d events, want 1", len(history))
	}
	if len(publisher.events) != 0 {
		t.Fatalf("published %d events for a non-actionable type", len(publisher.events))
	}
}

func TestGatewayReportsPublishFailure(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	publisher := &capturingPublisher{err: errors.New("broker unavailable")}
	e, _ := newGatewayServer(t, secret, publisher)

	if rec := deliver(e, pushBody, pushHeaders(pushBody, secret)); rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestIsWellKnown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event  string
		action string
		want   bool
	}{
		{"check_suite", "completed", true},
		{"check_suite", "requested", false},
		{"deployment_protection_rule", "requested", true},
		{"deployment_status", "created", true},
		{"issue_comment", "created", true},
		{"pull_request", "opened", true},
		{"pull_request", "labeled", true},
		{"pull_request", "closed", false},
		{"push", "", true},
		{"push", "created", false},
		{"repository_dispatch", "deployment_started", true},
		{"repository_dispatch", "deployment_completed", true},
		{"watch", "started", false},
	}

	for _, tc := range tests {
		if got := IsWellKnown(tc.event, tc.action); got != tc.want {
			t.Errorf("IsWellKnown(%q, %q) = %v, want %v", tc.event, tc.action, got, tc.want)
		}
	}
}

func TestNewEventRequiresEventHeader(t *testing.T) {
	t.Parallel()

	header := http.Header{}
	header.Set(DeliveryHeader, "delivery-1")

	if _, err := NewEvent(header, pushBody); err == nil {
		t.Fatal("NewEvent accepted a delivery without an event header")
	}
}

func TestNewEventExtractsAction(t *testing.T) {
	t.Parallel()

	body := []byte(`{"action":"completed","check_suite":{"id":1}}`)
	header := http.Header{}
	header.Set(DeliveryHeader, "delivery-1")
	header.Set(EventHeader, "check_suite")

	event, err := NewEvent(header, body)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if event.Action != "completed" {
		t.Fatalf("Action = %q, want completed", event.Action)
	}
	if event.Headers.Event != "check_suite" {
		t.Fatalf("Event = %q, want check_suite", event.Headers.Event)
	}
	if !bytes.Equal(event.RawPayload, body) {
		t.Fatal("RawPayload does not round-trip the body")
	}
}
