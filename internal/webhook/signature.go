package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrMissingSignature indicates an unsigned payload when a secret is
	// configured.
	ErrMissingSignature = errors.New("payload is not signed")
	// ErrUnexpectedSignature indicates a signed payload when no secret is
	// configured.
	ErrUnexpectedSignature = errors.New("payload is signed but no secret is configured")
	// ErrInvalidSignature indicates a signature mismatch.
	ErrInvalidSignature = errors.New("payload signature is not valid")
)

const signaturePrefix = "sha256="

// ValidateSignature verifies the HMAC-SHA256 signature of the raw payload
// bytes against the shared secret. The signature header carries
// "sha256=<hex>" and is compared in constant time. A signed payload with no
// configured secret and an unsigned payload with one are both rejected.
func ValidateSignature(body []byte, secret, signature string) error {
	signature = strings.TrimSpace(signature)

	if secret == "" {
		if signature != "" {
			return ErrUnexpectedSignature
		}
		return nil
	}
	if signature == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrInvalidSignature
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the "sha256=<hex>" signature for a payload. Used by tests
// and outbound pass-through.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
