package trust

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/martincostello/costellobot-sub000/internal/github"
)

type fakeRegistry struct {
	ecosystem Ecosystem
	owners    map[string][]string
	trusted   bool
	err       error
	lookups   int
}

func (f *fakeRegistry) Ecosystem() Ecosystem {
	return f.ecosystem
}

func (f *fakeRegistry) GetPackageOwners(_ context.Context, _ github.RepositoryID, id, _ string) ([]string, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return f.owners[id], nil
}

func (f *fakeRegistry) AreOwnersTrusted(context.Context, []string) (bool, error) {
	return f.trusted, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const nugetCommit = "Bumps AWSSDK.S3 from 3.7.9.32 to 3.7.9.33.\n" +
	"\n" +
	"---\n" +
	"updated-dependencies:\n" +
	"- dependency-name: AWSSDK.S3\n" +
	"...\n"

func TestEngineTrustedByName(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(newTestStore(t), nil, Options{
		TrustedDependencyPatterns: []string{`^AWSSDK\..*$`},
	}, discardLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	repo := github.RepositoryID{Owner: "octocat", Name: "widgets"}
	if !engine.IsTrustedDependencyUpdate(context.Background(), repo, "dependabot/nuget/AWSSDK.S3-3.7.9.33", nugetCommit) {
		t.Fatal("update not trusted by name")
	}
}

func TestEngineTrustedByOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	registry := &fakeRegistry{
		ecosystem: EcosystemNuGet,
		owners:    map[string][]string{"AWSSDK.S3": {"awsdotnet"}},
	}

	engine, err := NewEngine(store, []PackageRegistry{registry}, Options{
		TrustedPublishers: map[Ecosystem][]string{
			EcosystemNuGet: {"awsdotnet"},
		},
	}, discardLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	repo := github.RepositoryID{Owner: "octocat", Name: "widgets"}
	branch := "dependabot/nuget/AWSSDK.S3-3.7.9.33"
	if !engine.IsTrustedDependencyUpdate(ctx, repo, branch, nugetCommit) {
		t.Fatal("update not trusted by owner")
	}

	// The decision is recorded, so a second evaluation skips the registry.
	trusted, err := store.IsTrusted(ctx, EcosystemNuGet, "AWSSDK.S3", "3.7.9.33")
	if err != nil {
		t.Fatalf("is trusted: %v", err)
	}
	if !trusted {
		t.Fatal("owner-trusted update was not recorded in the store")
	}

	lookups := registry.lookups
	if !engine.IsTrustedDependencyUpdate(ctx, repo, branch, nugetCommit) {
		t.Fatal("recorded update no longer trusted")
	}
	if registry.lookups != lookups {
		t.Fatalf("registry consulted %d more times for a recorded update", registry.lookups-lookups)
	}
}

func TestEngineUntrustedOwner(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		ecosystem: EcosystemNuGet,
		owners:    map[string][]string{"AWSSDK.S3": {"someone-else"}},
	}
	engine, err := NewEngine(newTestStore(t), []PackageRegistry{registry}, Options{
		TrustedPublishers: map[Ecosystem][]string{
			EcosystemNuGet: {"awsdotnet"},
		},
	}, discardLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	repo := github.RepositoryID{Owner: "octocat", Name: "widgets"}
	if engine.IsTrustedDependencyUpdate(context.Background(), repo, "dependabot/nuget/AWSSDK.S3-3.7.9.33", nugetCommit) {
		t.Fatal("update trusted despite unknown owner")
	}
}

func TestEngineRegistryFailureIsUntrusted(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{
		ecosystem: EcosystemNuGet,
		err:       errors.New("registry unavailable"),
	}
	engine, err := NewEngine(newTestStore(t), []PackageRegistry{registry}, Options{}, discardLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	repo := github.RepositoryID{Owner: "octocat", Name: "widgets"}
	if engine.IsTrustedDependencyUpdate(context.Background(), repo, "dependabot/nuget/AWSSDK.S3-3.7.9.33", nugetCommit) {
		t.Fatal("update trusted despite registry failure")
	}
}

func TestEngineNoDependencies(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(newTestStore(t), nil, Options{
		TrustedDependencyPatterns: []string{`.*`},
	}, discardLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	repo := github.RepositoryID{Owner: "octocat", Name: "widgets"}
	if engine.IsTrustedDependencyUpdate(context.Background(), repo, "feature/x", "Do some stuff") {
		t.Fatal("commit without dependencies was trusted")
	}
}

func TestEngineRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(newTestStore(t), nil, Options{
		TrustedDependencyPatterns: []string{`(`},
	}, discardLogger()); err == nil {
		t.Fatal("NewEngine accepted an invalid pattern")
	}
}
