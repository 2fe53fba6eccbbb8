package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v81/github"
)

// Event is one verified webhook delivery. It is immutable once constructed:
// created by the gateway, consumed by the queue, bus, dispatcher and
// handlers.
type Event struct {
	// Headers is the structured view of the delivery headers.
	Headers Headers

	// Action is the payload's "action" field, empty for events without one.
	Action string

	// Payload is the typed event variant from the platform SDK.
	Payload any

	// RawHeaders preserves the original request headers for pass-through.
	RawHeaders map[string][]string

	// RawPayload is the body as delivered, kept as generic JSON for
	// pass-through and broadcast use.
	RawPayload json.RawMessage
}

// NewEvent parses a verified delivery into an Event.
func NewEvent(header http.Header, body []byte) (*Event, error) {
	headers := ParseHeaders(header)
	if headers.Event == "" {
		return nil, fmt.Errorf("missing %s header", EventHeader)
	}

	payload, err := gh.ParseWebHook(headers.Event, body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", headers.Event, err)
	}

	var envelope struct {
		Action string `json:"action"`
	}
	// The typed variants do not all surface "action" uniformly, so take it
	// from the generic JSON.
	_ = json.Unmarshal(body, &envelope)

	raw := make(map[string][]string, len(header))
	for name, values := range header {
		raw[name] = append([]string(nil), values...)
	}

	return &Event{
		Headers:    headers,
		Action:     envelope.Action,
		Payload:    payload,
		RawHeaders: raw,
		RawPayload: append(json.RawMessage(nil), body...),
	}, nil
}
