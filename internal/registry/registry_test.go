package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

func newRegistryServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newAPIClient(t *testing.T, handler http.HandlerFunc) *github.Client {
	t.Helper()
	server := newRegistryServer(t, handler)
	client, err := github.NewClientFromHTTP(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNpmGetPackageOwners(t *testing.T) {
	t.Parallel()

	server := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/left-pad/1.3.0" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"maintainers": [{"name": "alice"}, {"name": "bob"}, {"name": ""}]}`))
	})

	registry := NewNpm(server.URL, server.Client())
	if got := registry.Ecosystem(); got != trust.EcosystemNpm {
		t.Fatalf("ecosystem = %v, want %v", got, trust.EcosystemNpm)
	}

	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "left-pad", "1.3.0")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "alice" || owners[1] != "bob" {
		t.Fatalf("owners = %v, want [alice bob]", owners)
	}

	trusted, err := registry.AreOwnersTrusted(context.Background(), owners)
	if err != nil {
		t.Fatalf("are owners trusted: %v", err)
	}
	if trusted {
		t.Fatal("npm owners should never be trusted by the registry itself")
	}
}

func TestNpmLookupFailure(t *testing.T) {
	t.Parallel()

	server := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	registry := NewNpm(server.URL, server.Client())
	if _, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "ghost", "0.0.1"); err == nil {
		t.Fatal("expected an error for a missing package")
	}
}

func TestNuGetGetPackageOwners(t *testing.T) {
	t.Parallel()

	server := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "packageid:Newtonsoft.Json" {
			t.Errorf("query = %q", got)
		}
		_, _ = w.Write([]byte(`{"data": [
			{"id": "Newtonsoft.Json.Bson", "owners": ["someone-else"]},
			{"id": "newtonsoft.json", "owners": ["jamesnk", "dotnetfoundation"], "verified": true}
		]}`))
	})

	registry := NewNuGet(server.URL, server.Client())
	if got := registry.Ecosystem(); got != trust.EcosystemNuGet {
		t.Fatalf("ecosystem = %v, want %v", got, trust.EcosystemNuGet)
	}

	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "Newtonsoft.Json", "13.0.3")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "jamesnk" {
		t.Fatalf("owners = %v, want [jamesnk dotnetfoundation]", owners)
	}
}

func TestNuGetUnknownPackageHasNoOwners(t *testing.T) {
	t.Parallel()

	server := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	})

	registry := NewNuGet(server.URL, server.Client())
	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "Ghost.Package", "1.0.0")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}
	if len(owners) != 0 {
		t.Fatalf("owners = %v, want none", owners)
	}
}

func TestRubyGemsOwnersAndMFA(t *testing.T) {
	t.Parallel()

	server := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/gems/rake/owners.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"handle": "alice", "mfa": true},
			{"handle": "bob", "mfa": true}
		]`))
	})

	registry := NewRubyGems(server.URL, server.Client())
	if got := registry.Ecosystem(); got != trust.EcosystemRuby {
		t.Fatalf("ecosystem = %v, want %v", got, trust.EcosystemRuby)
	}

	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "rake", "13.2.1")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}
	if len(owners) != 2 {
		t.Fatalf("owners = %v, want two", owners)
	}

	trusted, err := registry.AreOwnersTrusted(context.Background(), owners)
	if err != nil {
		t.Fatalf("are owners trusted: %v", err)
	}
	if !trusted {
		t.Fatal("owners with MFA enabled should be trusted")
	}
}

func TestRubyGemsOwnerWithoutMFAIsUntrusted(t *testing.T) {
	t.Parallel()

	server := newRegistryServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"handle": "alice", "mfa": true},
			{"handle": "mallory", "mfa": false}
		]`))
	})

	registry := NewRubyGems(server.URL, server.Client())
	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "rake", "13.2.1")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}

	trusted, err := registry.AreOwnersTrusted(context.Background(), owners)
	if err != nil {
		t.Fatalf("are owners trusted: %v", err)
	}
	if trusted {
		t.Fatal("an owner without MFA should make the set untrusted")
	}

	if ok, _ := registry.AreOwnersTrusted(context.Background(), nil); ok {
		t.Fatal("an empty owner set should be untrusted")
	}
}

func TestGitHubActionsGetPackageOwners(t *testing.T) {
	t.Parallel()

	client := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/actions/checkout/commits/v4" {
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"sha": "abc123"}`))
	})

	registry := NewGitHubActions(client)
	if got := registry.Ecosystem(); got != trust.EcosystemGitHubActions {
		t.Fatalf("ecosystem = %v, want %v", got, trust.EcosystemGitHubActions)
	}

	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "actions/checkout", "v4")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}
	if len(owners) != 1 || owners[0] != "actions" {
		t.Fatalf("owners = %v, want [actions]", owners)
	}
}

func TestGitHubActionsNestedActionPath(t *testing.T) {
	t.Parallel()

	client := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/github/codeql-action/commits/v3" {
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"sha": "def456"}`))
	})

	registry := NewGitHubActions(client)
	owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "github/codeql-action/upload-sarif", "v3")
	if err != nil {
		t.Fatalf("get owners: %v", err)
	}
	if len(owners) != 1 || owners[0] != "github" {
		t.Fatalf("owners = %v, want [github]", owners)
	}
}

func TestGitHubActionsInvalidPath(t *testing.T) {
	t.Parallel()

	registry := NewGitHubActions(nil)
	if _, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, "checkout", "v4"); err == nil {
		t.Fatal("expected an error for an action path with no owner")
	}
}

func TestGitSubmoduleGetPackageOwners(t *testing.T) {
	t.Parallel()

	client := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/repos/octocat/vendored/commits/d892f20" {
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"sha": "d892f20"}`))
	})

	registry := NewGitSubmodule(client)
	if got := registry.Ecosystem(); got != trust.EcosystemGitSubmodule {
		t.Fatalf("ecosystem = %v, want %v", got, trust.EcosystemGitSubmodule)
	}

	for _, id := range []string{
		"octocat/vendored",
		"https://github.com/octocat/vendored.git",
		"https://github.com/octocat/vendored",
	} {
		owners, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, id, "d892f20")
		if err != nil {
			t.Fatalf("get owners for %q: %v", id, err)
		}
		if len(owners) != 1 || owners[0] != "octocat" {
			t.Fatalf("owners for %q = %v, want [octocat]", id, owners)
		}
	}
}

func TestGitSubmoduleInvalidID(t *testing.T) {
	t.Parallel()

	registry := NewGitSubmodule(nil)
	for _, id := range []string{"", "vendored", "https://example.com/"} {
		if _, err := registry.GetPackageOwners(context.Background(), github.RepositoryID{}, id, "d892f20"); err == nil {
			t.Fatalf("expected an error for submodule id %q", id)
		}
	}
}
