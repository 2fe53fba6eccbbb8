package trust

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenStore(filepath.Join(t.TempDir(), "trust"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreTrustRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Trust(ctx, EcosystemNuGet, "AWSSDK.S3", "3.7.9.33"); err != nil {
		t.Fatalf("trust: %v", err)
	}

	// Reads must be insensitive to casing and path separator format.
	for _, probe := range []struct{ id, version string }{
		{"AWSSDK.S3", "3.7.9.33"},
		{"awssdk.s3", "3.7.9.33"},
		{"AWSSDK.S3", "3.7.9.33"},
		{"awssdk.S3", "3.7.9.33"},
	} {
		trusted, err := store.IsTrusted(ctx, EcosystemNuGet, probe.id, probe.version)
		if err != nil {
			t.Fatalf("is trusted %q: %v", probe.id, err)
		}
		if !trusted {
			t.Fatalf("%s@%s not trusted after Trust()", probe.id, probe.version)
		}
	}

	trusted, err := store.IsTrusted(ctx, EcosystemNuGet, "AWSSDK.S3", "3.7.9.34")
	if err != nil {
		t.Fatalf("is trusted: %v", err)
	}
	if trusted {
		t.Fatal("different version reported as trusted")
	}
}

func TestStorePathSeparatorNormalization(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Trust(ctx, EcosystemGitHubActions, "actions/checkout", "4.2.0"); err != nil {
		t.Fatalf("trust: %v", err)
	}

	trusted, err := store.IsTrusted(ctx, EcosystemGitHubActions, `ACTIONS\CHECKOUT`, "4.2.0")
	if err != nil {
		t.Fatalf("is trusted: %v", err)
	}
	if !trusted {
		t.Fatal("backslash form of the same id not trusted")
	}
}

func TestStoreTrustIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	for range 3 {
		if err := store.Trust(ctx, EcosystemNpm, "typescript", "5.4.5"); err != nil {
			t.Fatalf("trust: %v", err)
		}
	}

	entries, err := store.GetTrust(ctx, EcosystemNpm)
	if err != nil {
		t.Fatalf("get trust: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("GetTrust() returned %d entries, want 1", len(entries))
	}
}

func TestStoreDistrust(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Trust(ctx, EcosystemNpm, "typescript", "5.4.5"); err != nil {
		t.Fatalf("trust: %v", err)
	}
	if err := store.Distrust(ctx, EcosystemNpm, "TYPESCRIPT", "5.4.5"); err != nil {
		t.Fatalf("distrust: %v", err)
	}
	if err := store.Distrust(ctx, EcosystemNpm, "absent", "0.0.1"); err != nil {
		t.Fatalf("distrust of absent entry: %v", err)
	}

	trusted, err := store.IsTrusted(ctx, EcosystemNpm, "typescript", "5.4.5")
	if err != nil {
		t.Fatalf("is trusted: %v", err)
	}
	if trusted {
		t.Fatal("entry still trusted after Distrust()")
	}
}

func TestStoreDistrustAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Trust(ctx, EcosystemNpm, "typescript", "5.4.5"); err != nil {
		t.Fatalf("trust: %v", err)
	}
	if err := store.Trust(ctx, EcosystemNuGet, "AWSSDK.S3", "3.7.9.33"); err != nil {
		t.Fatalf("trust: %v", err)
	}
	if err := store.DistrustAll(ctx); err != nil {
		t.Fatalf("distrust all: %v", err)
	}

	for _, ecosystem := range []Ecosystem{EcosystemNpm, EcosystemNuGet} {
		entries, err := store.GetTrust(ctx, ecosystem)
		if err != nil {
			t.Fatalf("get trust: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("%s still has %d entries after DistrustAll()", ecosystem, len(entries))
		}
	}
}
