package registry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

// GitSubmodule attributes a submodule hash update to the owner of the
// repository the submodule points at. The "package" identity is the
// submodule URL or an "owner/name" path.
type GitSubmodule struct {
	client *github.Client
}

// NewGitSubmodule builds a git submodule registry over the platform API.
func NewGitSubmodule(client *github.Client) *GitSubmodule {
	return &GitSubmodule{client: client}
}

// Ecosystem returns the git submodule ecosystem.
func (r *GitSubmodule) Ecosystem() trust.Ecosystem {
	return trust.EcosystemGitSubmodule
}

// GetPackageOwners verifies the target commit exists in the submodule's
// repository and returns that repository's owner.
func (r *GitSubmodule) GetPackageOwners(ctx context.Context, _ github.RepositoryID, id, version string) ([]string, error) {
	owner, repo, err := parseSubmoduleID(id)
	if err != nil {
		return nil, err
	}

	_, _, err = r.client.REST.Repositories.GetCommit(ctx, owner, repo, version, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve submodule %s/%s@%s: %w", owner, repo, version, err)
	}

	return []string{owner}, nil
}

// AreOwnersTrusted always abstains; trust comes from the publisher
// allow-list alone.
func (r *GitSubmodule) AreOwnersTrusted(context.Context, []string) (bool, error) {
	return false, nil
}

func parseSubmoduleID(id string) (owner, repo string, err error) {
	id = strings.TrimSpace(id)
	if strings.Contains(id, "://") {
		parsed, parseErr := url.Parse(id)
		if parseErr != nil {
			return "", "", fmt.Errorf("%q is not a valid submodule url: %w", id, parseErr)
		}
		id = strings.Trim(parsed.Path, "/")
	}
	id = strings.TrimSuffix(id, ".git")

	parts := strings.Split(id, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%q is not a valid submodule path", id)
	}
	return parts[0], parts[1], nil
}
