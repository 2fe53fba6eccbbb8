package trust

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/martincostello/costellobot-sub000/internal/github"
)

// PackageRegistry looks up current package ownership for one ecosystem.
type PackageRegistry interface {
	// Ecosystem is the ecosystem this registry serves.
	Ecosystem() Ecosystem

	// GetPackageOwners returns the current owners of a package version.
	GetPackageOwners(ctx context.Context, repository github.RepositoryID, id, version string) ([]string, error)

	// AreOwnersTrusted is the registry's own secondary trust predicate
	// over an owner set, such as verified-publisher or MFA flags.
	AreOwnersTrusted(ctx context.Context, owners []string) (bool, error)
}

// Options configure the trust engine.
type Options struct {
	// TrustedDependencyPatterns are regular expressions matched against
	// dependency names for trust-by-name.
	TrustedDependencyPatterns []string

	// TrustedPublishers maps each ecosystem to the owners whose packages
	// are trusted for trust-by-owner.
	TrustedPublishers map[Ecosystem][]string
}

// Engine decides whether a dependency update commit is trustworthy.
type Engine struct {
	store      *Store
	registries map[Ecosystem]PackageRegistry
	patterns   []*regexp.Regexp
	publishers map[Ecosystem]map[string]struct{}
	logger     *slog.Logger
}

// NewEngine builds a trust engine over the given store and registries.
func NewEngine(store *Store, registries []PackageRegistry, opts Options, logger *slog.Logger) (*Engine, error) {
	patterns := make([]*regexp.Regexp, 0, len(opts.TrustedDependencyPatterns))
	for _, pattern := range opts.TrustedDependencyPatterns {
		expr, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted dependency pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, expr)
	}

	byEcosystem := make(map[Ecosystem]PackageRegistry, len(registries))
	for _, registry := range registries {
		byEcosystem[registry.Ecosystem()] = registry
	}

	publishers := make(map[Ecosystem]map[string]struct{}, len(opts.TrustedPublishers))
	for ecosystem, owners := range opts.TrustedPublishers {
		set := make(map[string]struct{}, len(owners))
		for _, owner := range owners {
			set[strings.ToLower(strings.TrimSpace(owner))] = struct{}{}
		}
		publishers[ecosystem] = set
	}

	return &Engine{
		store:      store,
		registries: byEcosystem,
		patterns:   patterns,
		publishers: publishers,
		logger:     logger,
	}, nil
}

// Store exposes the persisted allow-list for administrative operations.
func (e *Engine) Store() *Store {
	return e.store
}

// IsTrustedDependencyUpdate reports whether every dependency named in the
// commit message is trusted, either by the name allow-list or by current
// package ownership. Registry lookup failures are logged and treated as
// untrusted; they never propagate as errors.
func (e *Engine) IsTrustedDependencyUpdate(ctx context.Context, repository github.RepositoryID, branchRef, commitMessage string) bool {
	dependencies := ParseDependencies(commitMessage)
	if len(dependencies) == 0 {
		e.logger.DebugContext(ctx, "no dependencies found in commit message", "repository", repository.String())
		return false
	}

	if e.trustedByName(ctx, dependencies) {
		e.logger.InfoContext(ctx, "dependencies trusted by name",
			"repository", repository.String(),
			"dependencies", dependencies)
		return true
	}

	return e.trustedByOwner(ctx, repository, branchRef, commitMessage, dependencies)
}

func (e *Engine) trustedByName(ctx context.Context, dependencies []string) bool {
	for _, dependency := range dependencies {
		if !e.nameIsTrusted(dependency) {
			e.logger.DebugContext(ctx, "dependency does not match any trusted name pattern", "dependency", dependency)
			return false
		}
	}
	return true
}

func (e *Engine) nameIsTrusted(dependency string) bool {
	for _, pattern := range e.patterns {
		if pattern.MatchString(dependency) {
			return true
		}
	}
	return false
}

func (e *Engine) trustedByOwner(ctx context.Context, repository github.RepositoryID, branchRef, commitMessage string, dependencies []string) bool {
	ecosystem := ParseEcosystem(branchRef)
	if ecosystem == EcosystemUnknown || ecosystem == EcosystemUnsupported {
		e.logger.DebugContext(ctx, "cannot determine a supported ecosystem from branch",
			"repository", repository.String(),
			"branch", branchRef)
		return false
	}

	registry, ok := e.registries[ecosystem]
	if !ok {
		e.logger.DebugContext(ctx, "no package registry configured for ecosystem",
			"repository", repository.String(),
			"ecosystem", ecosystem.String())
		return false
	}

	publishers := e.publishers[ecosystem]

	for _, dependency := range dependencies {
		version, ok := TryParseVersionNumber(commitMessage, dependency)
		if !ok {
			e.logger.DebugContext(ctx, "cannot parse updated version from commit message",
				"repository", repository.String(),
				"dependency", dependency)
			return false
		}

		if e.previouslyTrusted(ctx, ecosystem, dependency, version) {
			continue
		}

		owners, err := registry.GetPackageOwners(ctx, repository, dependency, version)
		if err != nil {
			e.logger.WarnContext(ctx, "failed to look up package owners; treating as untrusted",
				"repository", repository.String(),
				"ecosystem", ecosystem.String(),
				"dependency", dependency,
				"version", version,
				"error", err)
			return false
		}

		trusted := ownerInSet(owners, publishers)
		if !trusted {
			trusted, err = registry.AreOwnersTrusted(ctx, owners)
			if err != nil {
				e.logger.WarnContext(ctx, "failed to evaluate registry trust predicate; treating as untrusted",
					"repository", repository.String(),
					"dependency", dependency,
					"error", err)
				return false
			}
		}
		if !trusted {
			e.logger.InfoContext(ctx, "dependency owners are not trusted",
				"repository", repository.String(),
				"ecosystem", ecosystem.String(),
				"dependency", dependency,
				"version", version,
				"owners", owners)
			return false
		}

		// Remember the decision so later updates of the same version
		// skip the registry round trip.
		if err := e.store.Trust(ctx, ecosystem, dependency, version); err != nil {
			e.logger.WarnContext(ctx, "failed to record trusted dependency",
				"dependency", dependency,
				"version", version,
				"error", err)
		}
	}

	e.logger.InfoContext(ctx, "dependencies trusted by owner",
		"repository", repository.String(),
		"ecosystem", ecosystem.String(),
		"dependencies", dependencies)
	return true
}

func (e *Engine) previouslyTrusted(ctx context.Context, ecosystem Ecosystem, dependency, version string) bool {
	trusted, err := e.store.IsTrusted(ctx, ecosystem, dependency, version)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to query trust store",
			"dependency", dependency,
			"version", version,
			"error", err)
		return false
	}
	return trusted
}

func ownerInSet(owners []string, set map[string]struct{}) bool {
	for _, owner := range owners {
		if _, ok := set[strings.ToLower(strings.TrimSpace(owner))]; ok {
			return true
		}
	}
	return false
}
