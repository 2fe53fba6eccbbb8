// Package trust decides whether a dependency update is trustworthy, using
// the dependency bot's commit conventions, per-ecosystem registry lookups
// and a persisted allow-list of previously trusted packages.
package trust

import "strings"

// Ecosystem identifies the dependency-management system a package belongs
// to. It is inferred from branch naming conventions, never user-supplied.
type Ecosystem int

const (
	EcosystemUnknown Ecosystem = iota
	EcosystemUnsupported
	EcosystemDocker
	EcosystemGitHubActions
	EcosystemNpm
	EcosystemNuGet
	EcosystemGitSubmodule
	EcosystemRuby
)

// String returns the ecosystem name.
func (e Ecosystem) String() string {
	switch e {
	case EcosystemDocker:
		return "docker"
	case EcosystemGitHubActions:
		return "github-actions"
	case EcosystemNpm:
		return "npm"
	case EcosystemNuGet:
		return "nuget"
	case EcosystemGitSubmodule:
		return "git-submodule"
	case EcosystemRuby:
		return "ruby"
	case EcosystemUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

const (
	dependabotBranchPrefix = "dependabot/"
	dotnetSDKBranchPrefix  = "update-dotnet-sdk-"
)

// ParseEcosystem infers the dependency ecosystem from a branch reference
// following the dependency bot's "dependabot/<kind>/..." convention. Branch
// names starting with the .NET SDK updater prefix map to NuGet. Anything
// outside either convention is EcosystemUnknown.
func ParseEcosystem(branchRef string) Ecosystem {
	branch := strings.TrimPrefix(strings.TrimSpace(branchRef), "refs/heads/")

	if strings.HasPrefix(branch, dotnetSDKBranchPrefix) {
		return EcosystemNuGet
	}
	if !strings.HasPrefix(branch, dependabotBranchPrefix) {
		return EcosystemUnknown
	}

	kind, _, _ := strings.Cut(strings.TrimPrefix(branch, dependabotBranchPrefix), "/")
	switch kind {
	case "bundler":
		return EcosystemRuby
	case "docker":
		return EcosystemDocker
	case "github_actions":
		return EcosystemGitHubActions
	case "npm_and_yarn":
		return EcosystemNpm
	case "nuget":
		return EcosystemNuGet
	case "submodules":
		return EcosystemGitSubmodule
	default:
		return EcosystemUnsupported
	}
}
