package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/martincostello/costellobot-sub000/internal/github"
	"github.com/martincostello/costellobot-sub000/internal/trust"
)

const defaultNpmBaseURL = "https://registry.npmjs.org"

// Npm looks up package maintainers in the npm registry.
type Npm struct {
	baseURL string
	client  *http.Client
}

// NewNpm builds an npm registry. An empty baseURL uses registry.npmjs.org.
func NewNpm(baseURL string, client *http.Client) *Npm {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultNpmBaseURL
	}
	return &Npm{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  defaultHTTPClient(client),
	}
}

// Ecosystem returns the npm ecosystem.
func (r *Npm) Ecosystem() trust.Ecosystem {
	return trust.EcosystemNpm
}

type npmVersion struct {
	Maintainers []struct {
		Name string `json:"name"`
	} `json:"maintainers"`
}

// GetPackageOwners returns the maintainers of the package version.
func (r *Npm) GetPackageOwners(ctx context.Context, _ github.RepositoryID, id, version string) ([]string, error) {
	requestURL := fmt.Sprintf("%s/%s/%s", r.baseURL, url.PathEscape(id), url.PathEscape(version))

	var payload npmVersion
	if err := getJSON(ctx, r.client, requestURL, &payload); err != nil {
		return nil, fmt.Errorf("npm lookup for %s@%s: %w", id, version, err)
	}

	owners := make([]string, 0, len(payload.Maintainers))
	for _, maintainer := range payload.Maintainers {
		if maintainer.Name != "" {
			owners = append(owners, maintainer.Name)
		}
	}
	return owners, nil
}

// AreOwnersTrusted always abstains; npm exposes no verification signal.
func (r *Npm) AreOwnersTrusted(context.Context, []string) (bool, error) {
	return false, nil
}
