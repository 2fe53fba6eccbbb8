package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

// GitHubActions resolves action ownership from the repository hosting the
// action. The "package" identity is the action path, e.g.
// "actions/checkout" or "github/codeql-action/upload-sarif".
type GitHubActions struct {
	client *github.Client
}

// NewGitHubActions builds a GitHub Actions registry over the platform API.
func NewGitHubActions(client *github.Client) *GitHubActions {
	return &GitHubActions{client: client}
}

// Ecosystem returns the GitHub Actions ecosystem.
func (r *GitHubActions) Ecosystem() trust.Ecosystem {
	return trust.EcosystemGitHubActions
}

// GetPackageOwners verifies the pinned version exists in the action's
// repository and returns the repository owner.
func (r *GitHubActions) GetPackageOwners(ctx context.Context, _ github.RepositoryID, id, version string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(id), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%q is not a valid action path", id)
	}
	owner, repo := parts[0], parts[1]

	// A version that does not resolve to a commit, tag or branch in the
	// action's repository cannot be attributed to the owner.
	_, _, err := r.client.REST.Repositories.GetCommit(ctx, owner, repo, version, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s@%s: %w", id, version, err)
	}

	return []string{owner}, nil
}

// AreOwnersTrusted always abstains; trust comes from the publisher
// allow-list alone.
func (r *GitHubActions) AreOwnersTrusted(context.Context, []string) (bool, error) {
	return false, nil
}
