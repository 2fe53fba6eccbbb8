// Package webhook is the HTTP-facing entry point of the pipeline. It
// verifies signatures and content types, parses delivery headers and typed
// payloads, classifies events and hands verified events to the queue and,
// when configured, the message bus.
package webhook

import (
	"net/http"
	"strings"
)

// Header names set by the platform on webhook deliveries.
const (
	DeliveryHeader               = "X-GitHub-Delivery"
	EventHeader                  = "X-GitHub-Event"
	HookIDHeader                 = "X-GitHub-Hook-ID"
	InstallationTargetIDHeader   = "X-GitHub-Hook-Installation-Target-ID"
	InstallationTargetTypeHeader = "X-GitHub-Hook-Installation-Target-Type"
	SignatureHeader              = "X-Hub-Signature-256"
)

// Headers is the structured view of one delivery's headers.
type Headers struct {
	Delivery               string
	Event                  string
	HookID                 string
	InstallationTargetID   string
	InstallationTargetType string
}

// ParseHeaders extracts the structured delivery headers.
func ParseHeaders(header http.Header) Headers {
	return Headers{
		Delivery:               strings.TrimSpace(header.Get(DeliveryHeader)),
		Event:                  strings.TrimSpace(header.Get(EventHeader)),
		HookID:                 strings.TrimSpace(header.Get(HookIDHeader)),
		InstallationTargetID:   strings.TrimSpace(header.Get(InstallationTargetIDHeader)),
		InstallationTargetType: strings.TrimSpace(header.Get(InstallationTargetTypeHeader)),
	}
}
