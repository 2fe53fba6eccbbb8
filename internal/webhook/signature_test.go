package webhook

import (
	"errors"
	"testing"
)

func TestValidateSignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"ref":"refs/heads/main"}`)
	const secret = "webhook-secret"

	tests := []struct {
		name      string
		secret    string
		signature string
		want      error
	}{
		{
			name:      "valid signature",
			secret:    secret,
			signature: Sign(body, secret),
			want:      nil,
		},
		{
			name:   "no secret and no signature",
			secret: "",
			want:   nil,
		},
		{
			name:   "missing signature with secret",
			secret: secret,
			want:   ErrMissingSignature,
		},
		{
			name:      "signature without secret",
			secret:    "",
			signature: Sign(body, secret),
			want:      ErrUnexpectedSignature,
		},
		{
			name:      "wrong secret",
			secret:    secret,
			signature: Sign(body, "other-secret"),
			want:      ErrInvalidSignature,
		},
		{
			name:      "missing prefix",
			secret:    secret,
			signature: "deadbeef",
			want:      ErrInvalidSignature,
		},
		{
			name:      "not hex",
			secret:    secret,
			signature: "sha256=zzzz",
			want:      ErrInvalidSignature,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateSignature(body, tc.secret, tc.signature)
			if !errors.Is(err, tc.want) {
				t.Fatalf("ValidateSignature() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateSignatureTamperedBody(t *testing.T) {
	t.Parallel()

	const secret = "webhook-secret"
	signature := Sign([]byte(`{"ref":"refs/heads/main"}`), secret)

	err := ValidateSignature([]byte(`{"ref":"refs/heads/evil"}`), secret, signature)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("ValidateSignature() = %v, want %v", err, ErrInvalidSignature)
	}
}
